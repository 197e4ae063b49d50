package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/uplguard/internal/channel"
	"github.com/triage-ai/uplguard/internal/chread"
	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/ruleset"
	"github.com/triage-ai/uplguard/internal/storage"
	"github.com/triage-ai/uplguard/internal/store"
)

// ChannelStore is the channel policy CRUD surface. *store.Store implements it.
type ChannelStore interface {
	ListChannelPolicies(ctx context.Context) ([]*store.ChannelPolicy, error)
	GetChannelPolicy(ctx context.Context, channelID string) (*store.ChannelPolicy, error)
	UpsertChannelPolicy(ctx context.Context, channelID string, params store.UpsertChannelPolicyParams) (*store.ChannelPolicy, error)
	DeleteChannelPolicy(ctx context.Context, channelID string) error
}

// AnalyticsReader serves ClickHouse aggregates. *chread.Reader implements it.
type AnalyticsReader interface {
	GetAnalytics(ctx context.Context, channelID string, days int) (*chread.AnalyticsResult, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Registry *ruleset.Registry
	Pipeline *engine.Pipeline
	Channels *channel.Resolver
	Store    ChannelStore    // nil if Postgres unavailable
	Reader   AnalyticsReader // nil if ClickHouse unavailable
	Writer   storage.EventWriter
	Tally    *storage.Tally
	// RulesetPath is re-read on reload. Empty reloads the embedded table.
	RulesetPath string
	Logger      *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/compliance/process", deps.handleProcess)

	// Rule table
	mux.HandleFunc("GET /api/compliance/ruleset", deps.handleGetRuleset)
	mux.HandleFunc("POST /api/compliance/ruleset/reload", deps.handleReloadRuleset)

	// Channel policy CRUD
	mux.HandleFunc("GET /api/compliance/channels", deps.handleListChannels)
	mux.HandleFunc("GET /api/compliance/channels/{channel_id}", deps.handleGetChannel)
	mux.HandleFunc("PUT /api/compliance/channels/{channel_id}", deps.handlePutChannel)
	mux.HandleFunc("DELETE /api/compliance/channels/{channel_id}", deps.handleDeleteChannel)

	// Stats & Analytics
	mux.HandleFunc("GET /api/compliance/stats", deps.handleStats)
	mux.HandleFunc("GET /api/compliance/analytics", deps.handleGetAnalytics)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":          "ok",
			"ruleset_version": deps.Registry.Current().Version,
		})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
