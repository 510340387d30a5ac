// Package upstream talks to the third-party JSON-RPC monitoring API: it
// unseals stored credentials, caches session tokens per connection and
// restricts calls to a fixed set of read methods.
package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/timex"
)

// SessionCache stores upstream session tokens keyed by connection id.
type SessionCache interface {
	Get(ctx context.Context, connID string) (string, bool, error)
	Set(ctx context.Context, connID, token string, ttl time.Duration) error
	Delete(ctx context.Context, connID string) error
	// Purge drops every cached session.
	Purge(ctx context.Context) error
}

type memoryEntry struct {
	token    string
	cachedAt time.Time
	ttl      time.Duration
}

// MemorySessionCache is a process-local SessionCache. It is not shared
// between gateway instances.
type MemorySessionCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     timex.Clock
}

func NewMemorySessionCache(now timex.Clock) *MemorySessionCache {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionCache{entries: make(map[string]memoryEntry), now: now}
}

// Get returns the token while now < cachedAt+ttl.
func (c *MemorySessionCache) Get(_ context.Context, connID string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[connID]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.cachedAt.Add(e.ttl)) {
		c.mu.Lock()
		if cur, ok := c.entries[connID]; ok && cur == e {
			delete(c.entries, connID)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return e.token, true, nil
}

func (c *MemorySessionCache) Set(_ context.Context, connID, token string, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[connID] = memoryEntry{token: token, cachedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
	return nil
}

func (c *MemorySessionCache) Delete(_ context.Context, connID string) error {
	c.mu.Lock()
	delete(c.entries, connID)
	c.mu.Unlock()
	return nil
}

func (c *MemorySessionCache) Purge(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemorySessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
