// internal/matchmaking/memory.go
// In-memory Repository used by unit tests and local development without a
// database. Mirrors the Postgres implementation's observable behavior.

package matchmaking

import (
    "context"
    "sort"
    "sync"
    "time"
)

type memoryRepository struct {
    mu       sync.RWMutex
    entries  map[int64]QueueEntry
    attempts map[string]MatchAttempt
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() Repository {
    return &memoryRepository{
        entries:  make(map[int64]QueueEntry),
        attempts: make(map[string]MatchAttempt),
    }
}

func (r *memoryRepository) UpsertQueueEntry(ctx context.Context, entry *QueueEntry) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.entries[entry.UserID] = *entry
    return nil
}

func (r *memoryRepository) SetQueueEntryStatus(ctx context.Context, userID int64, status EntryStatus) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if e, ok := r.entries[userID]; ok {
        e.Status = status
        r.entries[userID] = e
    }
    return nil
}

func (r *memoryRepository) SetQueueEntryStatusPair(ctx context.Context, a, b int64, status EntryStatus) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    for _, id := range []int64{a, b} {
        if e, ok := r.entries[id]; ok {
            e.Status = status
            r.entries[id] = e
        }
    }
    return nil
}

func (r *memoryRepository) DeleteQueueEntry(ctx context.Context, userID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    delete(r.entries, userID)
    return nil
}

func (r *memoryRepository) ListQueueEntries(ctx context.Context, statuses []EntryStatus) ([]QueueEntry, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    var out []QueueEntry
    for _, e := range r.entries {
        for _, s := range statuses {
            if e.Status == s {
                out = append(out, e)
                break
            }
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
    return out, nil
}

func (r *memoryRepository) PurgeLeftEntries(ctx context.Context, cutoff time.Time) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    for id, e := range r.entries {
        if e.Status == StatusLeft && e.JoinedAt.Before(cutoff) {
            delete(r.entries, id)
        }
    }
    return nil
}

func (r *memoryRepository) CreateAttempt(ctx context.Context, a *MatchAttempt) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.attempts[a.ID] = *a
    return nil
}

func (r *memoryRepository) UpdateAttempt(ctx context.Context, a *MatchAttempt) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if _, ok := r.attempts[a.ID]; !ok {
        return ErrNotFound
    }
    r.attempts[a.ID] = *a
    return nil
}

func (r *memoryRepository) GetAttempt(ctx context.Context, id string) (*MatchAttempt, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    a, ok := r.attempts[id]
    if !ok {
        return nil, ErrNotFound
    }
    return &a, nil
}

func (r *memoryRepository) ListAttemptsForUser(ctx context.Context, userID int64, states []AttemptState) ([]MatchAttempt, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    var out []MatchAttempt
    for _, a := range r.attempts {
        if a.User1ID != userID && a.User2ID != userID {
            continue
        }
        for _, s := range states {
            if a.State == s {
                out = append(out, a)
                break
            }
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
    return out, nil
}

func (r *memoryRepository) ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]MatchAttempt, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    var out []MatchAttempt
    for _, a := range r.attempts {
        if (a.State == StateProposed || a.State == StatePartiallyAccepted) && a.ExpiresAt.Before(now) {
            out = append(out, a)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
    if len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (r *memoryRepository) ListStalledMaterializations(ctx context.Context, updatedBefore time.Time, limit int) ([]MatchAttempt, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    var out []MatchAttempt
    for _, a := range r.attempts {
        if a.State == StateMutuallyAccepted && a.UpdatedAt.Before(updatedBefore) {
            out = append(out, a)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
    if len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (r *memoryRepository) HasActiveAttempt(ctx context.Context, userID int64) (bool, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    for _, a := range r.attempts {
        if (a.User1ID == userID || a.User2ID == userID) && !a.State.IsTerminal() {
            return true, nil
        }
    }
    return false, nil
}

func (r *memoryRepository) PurgeTerminalAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    var n int64
    for id, a := range r.attempts {
        if a.State.IsTerminal() && a.UpdatedAt.Before(cutoff) {
            delete(r.attempts, id)
            n++
        }
    }
    return n, nil
}
