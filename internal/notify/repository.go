// internal/notify/repository.go

package notify

import (
    "context"
    "database/sql"
    "fmt"
    "sync"

    "github.com/jmoiron/sqlx"
)

// Repository persists the in-app feed and device tokens.
type Repository interface {
    // CreateOnce inserts the notification unless one with the same
    // (user, match, kind) already exists; reports whether a row was
    // written. This is what makes NEW_MATCH exactly-once.
    CreateOnce(ctx context.Context, n *Notification) (bool, error)
    ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error)
    MarkRead(ctx context.Context, userID, notificationID int64) error
    MarkActedUpon(ctx context.Context, userID int64, matchID string) error

    GetPushTokens(ctx context.Context, userID int64) ([]string, error)
    RegisterPushToken(ctx context.Context, userID int64, platform, token string) error
}

type postgresRepository struct {
    db *sqlx.DB
}

// NewPostgresRepository creates the production repository.
func NewPostgresRepository(db *sqlx.DB) Repository {
    return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOnce(ctx context.Context, n *Notification) (bool, error) {
    query := `
        INSERT INTO match_notifications (user_id, kind, title, body, data, match_id, acted_upon, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, false, false, $7)
        ON CONFLICT (user_id, match_id, kind) WHERE match_id IS NOT NULL
        DO NOTHING
        RETURNING id`

    var id int64
    err := r.db.QueryRowContext(ctx, query,
        n.UserID, n.Kind, n.Title, n.Body, n.Data, n.MatchID, n.CreatedAt).Scan(&id)
    if err == sql.ErrNoRows {
        // Conflict: already sent for this (user, match, kind).
        return false, nil
    }
    if err != nil {
        return false, fmt.Errorf("failed to create notification: %w", err)
    }
    n.ID = id
    return true, nil
}

func (r *postgresRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error) {
    var out []*Notification
    err := r.db.SelectContext(ctx, &out, `
        SELECT id, user_id, kind, title, body, data, match_id, acted_upon, is_read, created_at
        FROM match_notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`, userID, limit, offset)
    if err != nil {
        return nil, fmt.Errorf("failed to list notifications: %w", err)
    }
    return out, nil
}

func (r *postgresRepository) MarkRead(ctx context.Context, userID, notificationID int64) error {
    _, err := r.db.ExecContext(ctx, `
        UPDATE match_notifications SET is_read = true
        WHERE id = $1 AND user_id = $2`, notificationID, userID)
    if err != nil {
        return fmt.Errorf("failed to mark notification read: %w", err)
    }
    return nil
}

func (r *postgresRepository) MarkActedUpon(ctx context.Context, userID int64, matchID string) error {
    _, err := r.db.ExecContext(ctx, `
        UPDATE match_notifications SET acted_upon = true
        WHERE user_id = $1 AND match_id = $2`, userID, matchID)
    if err != nil {
        return fmt.Errorf("failed to mark notifications acted upon: %w", err)
    }
    return nil
}

func (r *postgresRepository) GetPushTokens(ctx context.Context, userID int64) ([]string, error) {
    var tokens []string
    err := r.db.SelectContext(ctx, &tokens, `
        SELECT token FROM push_tokens
        WHERE user_id = $1 AND is_active = true`, userID)
    if err != nil {
        return nil, fmt.Errorf("failed to get push tokens: %w", err)
    }
    return tokens, nil
}

func (r *postgresRepository) RegisterPushToken(ctx context.Context, userID int64, platform, token string) error {
    _, err := r.db.ExecContext(ctx, `
        INSERT INTO push_tokens (user_id, platform, token, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, true, NOW(), NOW())
        ON CONFLICT (token)
        DO UPDATE SET user_id = $1, platform = $2, is_active = true, updated_at = NOW()`,
        userID, platform, token)
    if err != nil {
        return fmt.Errorf("failed to register push token: %w", err)
    }
    return nil
}

type memoryRepository struct {
    mu     sync.Mutex
    nextID int64
    rows   []*Notification
    tokens map[int64][]string
}

// NewMemoryRepository backs unit tests.
func NewMemoryRepository() Repository {
    return &memoryRepository{tokens: make(map[int64][]string)}
}

func (r *memoryRepository) CreateOnce(ctx context.Context, n *Notification) (bool, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if n.MatchID != nil {
        for _, row := range r.rows {
            if row.UserID == n.UserID && row.Kind == n.Kind &&
                row.MatchID != nil && *row.MatchID == *n.MatchID {
                return false, nil
            }
        }
    }
    r.nextID++
    n.ID = r.nextID
    clone := *n
    r.rows = append(r.rows, &clone)
    return true, nil
}

func (r *memoryRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    var out []*Notification
    for i := len(r.rows) - 1; i >= 0; i-- {
        if r.rows[i].UserID == userID {
            clone := *r.rows[i]
            out = append(out, &clone)
        }
    }
    if offset > len(out) {
        offset = len(out)
    }
    out = out[offset:]
    if len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (r *memoryRepository) MarkRead(ctx context.Context, userID, notificationID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    for _, row := range r.rows {
        if row.ID == notificationID && row.UserID == userID {
            row.IsRead = true
        }
    }
    return nil
}

func (r *memoryRepository) MarkActedUpon(ctx context.Context, userID int64, matchID string) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    for _, row := range r.rows {
        if row.UserID == userID && row.MatchID != nil && *row.MatchID == matchID {
            row.ActedUpon = true
        }
    }
    return nil
}

func (r *memoryRepository) GetPushTokens(ctx context.Context, userID int64) ([]string, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    return append([]string(nil), r.tokens[userID]...), nil
}

func (r *memoryRepository) RegisterPushToken(ctx context.Context, userID int64, platform, token string) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.tokens[userID] = append(r.tokens[userID], token)
    return nil
}
