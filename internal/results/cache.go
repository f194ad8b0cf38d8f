package results

import (
	"context"
	"sync"

	"prep/internal/interview"
)

// Cache is the fast read-after-write tier in front of the durable store.
// Misses are reported as interview.ErrNotFound.
type Cache interface {
	Get(ctx context.Context, callID string) (*interview.Result, error)
	Put(ctx context.Context, r interview.Result) error
	Delete(ctx context.Context, callID string) error
	LatestForOwner(ctx context.Context, ownerID string) (*interview.Result, error)
}

// MemoryCache is a process-lifetime Cache. Entries live until Delete or
// process exit.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]interview.Result
	byOwner map[string]map[string]struct{}
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items:   make(map[string]interview.Result),
		byOwner: make(map[string]map[string]struct{}),
	}
}

func (c *MemoryCache) Get(_ context.Context, callID string) (*interview.Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.items[callID]
	if !ok {
		return nil, interview.ErrNotFound
	}
	return &r, nil
}

func (c *MemoryCache) Put(_ context.Context, r interview.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.items[r.CallID]; ok && prev.OwnerID != r.OwnerID {
		c.unindex(prev.OwnerID, prev.CallID)
	}
	c.items[r.CallID] = r
	if r.OwnerID != "" {
		set, ok := c.byOwner[r.OwnerID]
		if !ok {
			set = make(map[string]struct{})
			c.byOwner[r.OwnerID] = set
		}
		set[r.CallID] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.items[callID]; ok {
		c.unindex(prev.OwnerID, callID)
		delete(c.items, callID)
	}
	return nil
}

func (c *MemoryCache) LatestForOwner(_ context.Context, ownerID string) (*interview.Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var latest *interview.Result
	for callID := range c.byOwner[ownerID] {
		r := c.items[callID]
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, interview.ErrNotFound
	}
	return latest, nil
}

// Len reports the number of cached results.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) unindex(ownerID, callID string) {
	if ownerID == "" {
		return
	}
	set := c.byOwner[ownerID]
	delete(set, callID)
	if len(set) == 0 {
		delete(c.byOwner, ownerID)
	}
}

var _ Cache = (*MemoryCache)(nil)
