package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/uplguard/internal/ruleset"
	"github.com/triage-ai/uplguard/internal/store"
)

// PolicyStore abstracts the channel policy lookup for testability.
type PolicyStore interface {
	GetChannelPolicy(ctx context.Context, channelID string) (*store.ChannelPolicy, error)
}

// errUncompilable marks a stored policy that no longer compiles.
var errUncompilable = errors.New("stored policy does not compile")

// Resolver maps a channel id to its compiled gate policy. Policies stored
// in Postgres override the rule table's channels, and a channel with no
// stored row resolves to the table.
//
// When the stored policy cannot be read or compiled, a channel the table
// defines keeps the table's policy. Any other id may name a STRICT_GATE
// channel that exists only in Postgres, so it resolves to the table's
// lockdown policy instead of the open default.
type Resolver struct {
	store  PolicyStore
	cache  *Cache
	logger *zap.Logger
}

// Config configures a Resolver.
type Config struct {
	Store    PolicyStore // nil resolves from the rule table only
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewResolver creates a Resolver. CacheTTL defaults to 30s.
func NewResolver(cfg Config) *Resolver {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		store:  cfg.Store,
		cache:  NewCache(ttl),
		logger: cfg.Logger,
	}
}

// Resolve returns the policy for channelID under tbl. It never fails; a
// cached policy keeps serving through a store outage.
func (r *Resolver) Resolve(ctx context.Context, channelID string, tbl *ruleset.Table) *ruleset.ChannelPolicy {
	if r.store == nil || channelID == "" {
		return tbl.Channel(channelID)
	}

	result := r.cache.Get(channelID)
	if result.Hit {
		if result.NeedsRefresh {
			go r.backgroundRefresh(channelID, result.Policy)
		}
		return orTable(result.Policy, channelID, tbl)
	}

	policy, err := r.load(ctx, channelID)
	if err != nil {
		return r.unresolved(channelID, tbl, err)
	}
	r.cache.Set(channelID, policy)
	return orTable(policy, channelID, tbl)
}

func (r *Resolver) unresolved(channelID string, tbl *ruleset.Table, err error) *ruleset.ChannelPolicy {
	if p, ok := tbl.LookupChannel(channelID); ok {
		r.logger.Warn("channel policy unavailable, using rule table",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return p
	}
	r.logger.Error("channel policy unavailable, gating all text",
		zap.String("channel_id", channelID),
		zap.Error(err),
	)
	return tbl.Lockdown(channelID)
}

// Invalidate drops the cached policy so the next request reads the store.
func (r *Resolver) Invalidate(channelID string) {
	r.cache.Delete(channelID)
}

// backgroundRefresh reloads a stale entry. On failure the last known policy
// is kept for another TTL and the refresh is retried after it.
func (r *Resolver) backgroundRefresh(channelID string, last *ruleset.ChannelPolicy) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	policy, err := r.load(ctx, channelID)
	if err != nil {
		r.logger.Warn("background channel refresh failed, keeping last known policy",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		r.cache.Set(channelID, last)
		return
	}
	r.cache.Set(channelID, policy)
}

// load fetches and compiles the stored policy. A missing row yields
// (nil, nil). A row that does not compile is an error wrapping
// errUncompilable and is never cached.
func (r *Resolver) load(ctx context.Context, channelID string) (*ruleset.ChannelPolicy, error) {
	row, err := r.store.GetChannelPolicy(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	policy, err := ruleset.CompileChannel(row.Spec())
	if err != nil {
		return nil, fmt.Errorf("load: %w: %w", errUncompilable, err)
	}
	return policy, nil
}

func orTable(p *ruleset.ChannelPolicy, channelID string, tbl *ruleset.Table) *ruleset.ChannelPolicy {
	if p != nil {
		return p
	}
	return tbl.Channel(channelID)
}
