package api

import (
	"time"

	"github.com/triage-ai/uplguard/internal/engine"
)

// --- POST /v1/compliance/process request/response ---

// ProcessRequest is the JSON body for POST /v1/compliance/process.
type ProcessRequest struct {
	Text       string            `json:"text"`
	ChannelID  string            `json:"channel_id,omitempty"`
	OutputType string            `json:"output_type,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ProcessResponse is the annotated, client-safe result.
type ProcessResponse struct {
	Text               string                  `json:"text"`
	RiskLevel          string                  `json:"risk_level"`
	Modified           bool                    `json:"modified"`
	DisclaimerInjected bool                    `json:"disclaimer_injected"`
	MinimizeAllowed    bool                    `json:"minimize_allowed"`
	Outcome            string                  `json:"outcome"`
	Gated              bool                    `json:"gated"`
	Reason             *string                 `json:"reason"`
	Violations         []engine.ViolationMatch `json:"violations"`
	RulesetVersion     string                  `json:"ruleset_version"`
	RequestID          string                  `json:"request_id"`
	LatencyMs          float64                 `json:"latency_ms"`
}

// --- Rule table ---

// RulesetResp describes the active rule table.
type RulesetResp struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	Digest            string   `json:"digest"`
	Rules             int      `json:"rules"`
	Violations        int      `json:"violations"`
	Channels          []string `json:"channels"`
	FallbackMessage   string   `json:"fallback_message"`
	MinimizeBlockedAt string   `json:"minimize_blocked_at"`
}

// ReloadResp is returned by POST /api/compliance/ruleset/reload.
type ReloadResp struct {
	Previous string      `json:"previous_version"`
	Active   RulesetResp `json:"active"`
}

// --- Channel policy CRUD ---

// ChannelPolicyReq is the JSON body for PUT /api/compliance/channels/{id}.
type ChannelPolicyReq struct {
	Mode              string   `json:"mode"`
	ForbiddenPhrases  []string `json:"forbidden_phrases"`
	ForbiddenPatterns []string `json:"forbidden_patterns"`
	RedirectMessage   string   `json:"redirect_message"`
}

// ChannelPolicyResp is a stored channel policy.
type ChannelPolicyResp struct {
	ChannelID         string    `json:"channel_id"`
	Mode              string    `json:"mode"`
	ForbiddenPhrases  []string  `json:"forbidden_phrases"`
	ForbiddenPatterns []string  `json:"forbidden_patterns"`
	RedirectMessage   string    `json:"redirect_message"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ChannelListResp lists stored policies and the channels the active table
// defines.
type ChannelListResp struct {
	Channels      []ChannelPolicyResp `json:"channels"`
	TableChannels []string            `json:"table_channels"`
}

// ErrorResp is the standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
