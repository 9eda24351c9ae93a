package fabricmcp

import (
	"context"
	"sync"

	"pkt.systems/fabricmcp/client"
)

// TapestryCache remembers the tapestry ID resolved for each bearer token so
// repeat tool calls skip the tapestry listing round-trip.
//
// Concurrency: an RWMutex guards a map[string]string. Lookups take the read
// lock, stores the write lock, and the upstream fetch between them runs
// unlocked, so concurrent misses for one token may each list tapestries
// upstream; the last store wins. Fabric returns a stable first tapestry per
// account, so duplicate fetches converge on the same value. No TTL, no
// eviction: one small entry per distinct token for the process lifetime.
type TapestryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewTapestryCache returns an empty cache.
func NewTapestryCache() *TapestryCache {
	return &TapestryCache{entries: make(map[string]string)}
}

// Lookup returns the cached tapestry ID for token.
func (c *TapestryCache) Lookup(token string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[token]
	return id, ok
}

// Store records the tapestry ID resolved for token.
func (c *TapestryCache) Store(token, tapestryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = tapestryID
}

// Invalidate drops the entry for token, forcing the next resolution to hit
// upstream again.
func (c *TapestryCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

// Len reports the number of cached tokens.
func (c *TapestryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// resolveTapestry maps a bearer token to the account's tapestry ID, listing
// tapestries upstream on cache miss. The first tapestry wins. Errors and
// empty listings are never cached.
func (s *server) resolveTapestry(ctx context.Context, token string) (string, error) {
	if id, ok := s.cache.Lookup(token); ok {
		s.cacheLog.Trace("fabric.tapestry.cache_hit")
		return id, nil
	}
	tapestries, err := s.fabric.ListTapestries(ctx, token)
	if err != nil {
		return "", err
	}
	if len(tapestries) == 0 {
		return "", &client.NotFoundError{Resource: "tapestry"}
	}
	id := tapestries[0].ID
	s.cache.Store(token, id)
	s.cacheLog.Trace("fabric.tapestry.cache_store", "tapestry_id", id)
	return id, nil
}
