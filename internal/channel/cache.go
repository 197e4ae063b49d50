package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// Cache is a TTL-based in-memory cache of compiled channel policies.
// Uses sync.Map for lock-free reads on the hot path.
//
// Stale-while-revalidate: an expired entry is still returned immediately,
// and exactly one caller is told to refresh it in the background.
type Cache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	// policy is nil when the store has no row for the channel; the
	// negative result is cached like a positive one.
	policy     *ruleset.ChannelPolicy
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Policy       *ruleset.ChannelPolicy
	Hit          bool // a value was found, fresh or stale
	NeedsRefresh bool // the entry expired and this caller should refresh it
}

// Get looks up a channel.
//
//   - Fresh hit:  {Policy, Hit=true,  NeedsRefresh=false}
//   - Stale hit:  {Policy, Hit=true,  NeedsRefresh=true} for exactly one caller
//   - Miss:       {nil,    Hit=false, NeedsRefresh=false}
func (c *Cache) Get(channelID string) GetResult {
	val, ok := c.store.Load(channelID)
	if !ok {
		return GetResult{}
	}
	entry := val.(*cacheEntry)

	if time.Now().Before(entry.expiresAt) {
		return GetResult{Policy: entry.policy, Hit: true}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return GetResult{
		Policy:       entry.policy,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores a policy, or a known absence when policy is nil.
func (c *Cache) Set(channelID string, policy *ruleset.ChannelPolicy) {
	c.store.Store(channelID, &cacheEntry{
		policy:    policy,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes an entry.
func (c *Cache) Delete(channelID string) {
	c.store.Delete(channelID)
}
