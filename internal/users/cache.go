// internal/users/cache.go
// Short-TTL memoizing decorator over Provider

package users

import (
    "context"
    "sync"
    "time"
)

type cacheEntry struct {
    profile   *Profile
    fetchedAt time.Time
}

// CachedProvider memoizes profile lookups for a short TTL so a single
// matcher tick does not hammer the users table. Staleness is bounded by
// the TTL; safety checks intentionally bypass this cache.
type CachedProvider struct {
    inner Provider
    ttl   time.Duration

    mu      sync.RWMutex
    entries map[int64]cacheEntry
}

// NewCachedProvider wraps inner with a TTL cache.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
    return &CachedProvider{
        inner:   inner,
        ttl:     ttl,
        entries: make(map[int64]cacheEntry),
    }
}

func (c *CachedProvider) lookup(userID int64, now time.Time) (*Profile, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    e, ok := c.entries[userID]
    if !ok || now.Sub(e.fetchedAt) > c.ttl {
        return nil, false
    }
    return e.profile, true
}

func (c *CachedProvider) store(profiles map[int64]*Profile, now time.Time) {
    c.mu.Lock()
    defer c.mu.Unlock()
    for id, p := range profiles {
        c.entries[id] = cacheEntry{profile: p, fetchedAt: now}
    }
}

func (c *CachedProvider) Get(ctx context.Context, userID int64) (*Profile, error) {
    now := time.Now()
    if p, ok := c.lookup(userID, now); ok {
        return p, nil
    }

    p, err := c.inner.Get(ctx, userID)
    if err != nil {
        return nil, err
    }
    c.store(map[int64]*Profile{userID: p}, now)
    return p, nil
}

func (c *CachedProvider) List(ctx context.Context, userIDs []int64) (map[int64]*Profile, error) {
    now := time.Now()
    result := make(map[int64]*Profile, len(userIDs))
    var missing []int64
    for _, id := range userIDs {
        if p, ok := c.lookup(id, now); ok {
            result[id] = p
        } else {
            missing = append(missing, id)
        }
    }

    if len(missing) > 0 {
        fetched, err := c.inner.List(ctx, missing)
        if err != nil {
            return nil, err
        }
        c.store(fetched, now)
        for id, p := range fetched {
            result[id] = p
        }
    }
    return result, nil
}

// Invalidate drops a user from the cache, e.g. after a profile update event.
func (c *CachedProvider) Invalidate(userID int64) {
    c.mu.Lock()
    defer c.mu.Unlock()
    delete(c.entries, userID)
}
