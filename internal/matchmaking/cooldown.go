// internal/matchmaking/cooldown.go
// Per-pair cool-down: after a terminal match attempt the same two users are
// not re-proposed until the configured window elapses. Disabled when the
// window is zero.

package matchmaking

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/go-redis/redis/v8"
)

// CooldownStore tracks pairs under cool-down.
type CooldownStore interface {
    // Mark starts the cool-down window for the pair.
    Mark(ctx context.Context, a, b int64) error
    // Active reports whether the pair is still cooling down.
    Active(ctx context.Context, a, b int64) (bool, error)
}

func pairKey(a, b int64) string {
    if a > b {
        a, b = b, a
    }
    return fmt.Sprintf("match:cooldown:%d:%d", a, b)
}

type redisCooldown struct {
    client *redis.Client
    window time.Duration
}

// NewRedisCooldown stores cool-down marks in Redis with the window as TTL.
func NewRedisCooldown(client *redis.Client, window time.Duration) CooldownStore {
    return &redisCooldown{client: client, window: window}
}

func (c *redisCooldown) Mark(ctx context.Context, a, b int64) error {
    if c.window <= 0 {
        return nil
    }
    return c.client.Set(ctx, pairKey(a, b), time.Now().Unix(), c.window).Err()
}

func (c *redisCooldown) Active(ctx context.Context, a, b int64) (bool, error) {
    if c.window <= 0 {
        return false, nil
    }
    n, err := c.client.Exists(ctx, pairKey(a, b)).Result()
    if err != nil {
        return false, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
    }
    return n > 0, nil
}

type memoryCooldown struct {
    window time.Duration
    mu     sync.Mutex
    marks  map[string]time.Time
}

// NewMemoryCooldown is the in-process fallback used when Redis is not
// configured, and in tests.
func NewMemoryCooldown(window time.Duration) CooldownStore {
    return &memoryCooldown{window: window, marks: make(map[string]time.Time)}
}

func (c *memoryCooldown) Mark(ctx context.Context, a, b int64) error {
    if c.window <= 0 {
        return nil
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    c.marks[pairKey(a, b)] = time.Now()
    return nil
}

func (c *memoryCooldown) Active(ctx context.Context, a, b int64) (bool, error) {
    if c.window <= 0 {
        return false, nil
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    marked, ok := c.marks[pairKey(a, b)]
    if !ok {
        return false, nil
    }
    if time.Since(marked) > c.window {
        delete(c.marks, pairKey(a, b))
        return false, nil
    }
    return true, nil
}
