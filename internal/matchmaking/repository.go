// internal/matchmaking/repository.go
// Persistence for queue entries and match attempts

package matchmaking

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    "github.com/jmoiron/sqlx"
)

// Repository persists pool state and the match attempt store. The pool and
// pending-match manager own all mutation; the repository is their
// write-through backend.
type Repository interface {
    UpsertQueueEntry(ctx context.Context, entry *QueueEntry) error
    SetQueueEntryStatus(ctx context.Context, userID int64, status EntryStatus) error
    // SetQueueEntryStatusPair updates both entries in one transaction.
    SetQueueEntryStatusPair(ctx context.Context, a, b int64, status EntryStatus) error
    DeleteQueueEntry(ctx context.Context, userID int64) error
    ListQueueEntries(ctx context.Context, statuses []EntryStatus) ([]QueueEntry, error)
    PurgeLeftEntries(ctx context.Context, cutoff time.Time) error

    CreateAttempt(ctx context.Context, attempt *MatchAttempt) error
    UpdateAttempt(ctx context.Context, attempt *MatchAttempt) error
    GetAttempt(ctx context.Context, id string) (*MatchAttempt, error)
    ListAttemptsForUser(ctx context.Context, userID int64, states []AttemptState) ([]MatchAttempt, error)
    ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]MatchAttempt, error)
    // ListStalledMaterializations returns MUTUALLY_ACCEPTED attempts whose
    // last update predates updatedBefore. Their in-process retry loop is
    // gone (crash, restart, transient repo error); the sweeper re-drives
    // them to MATERIALIZED or FAILED.
    ListStalledMaterializations(ctx context.Context, updatedBefore time.Time, limit int) ([]MatchAttempt, error)
    HasActiveAttempt(ctx context.Context, userID int64) (bool, error)
    PurgeTerminalAttempts(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresRepository struct {
    db *sqlx.DB
}

// NewPostgresRepository creates the production repository.
func NewPostgresRepository(db *sqlx.DB) Repository {
    return &postgresRepository{db: db}
}

var nonTerminalStates = []AttemptState{StateProposed, StatePartiallyAccepted, StateMutuallyAccepted}

func (r *postgresRepository) UpsertQueueEntry(ctx context.Context, entry *QueueEntry) error {
    query := `
        INSERT INTO queue_entries (user_id, joined_at, effective_prefs, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id)
        DO UPDATE SET joined_at = $2, effective_prefs = $3, status = $4`

    _, err := r.db.ExecContext(ctx, query,
        entry.UserID, entry.JoinedAt, entry.EffectivePrefs, entry.Status)
    if err != nil {
        return fmt.Errorf("failed to upsert queue entry: %w", err)
    }
    return nil
}

func (r *postgresRepository) SetQueueEntryStatus(ctx context.Context, userID int64, status EntryStatus) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE queue_entries SET status = $2 WHERE user_id = $1`, userID, status)
    if err != nil {
        return fmt.Errorf("failed to update queue entry status: %w", err)
    }
    return nil
}

func (r *postgresRepository) SetQueueEntryStatusPair(ctx context.Context, a, b int64, status EntryStatus) error {
    tx, err := r.db.BeginTxx(ctx, nil)
    if err != nil {
        return fmt.Errorf("failed to begin transaction: %w", err)
    }
    defer tx.Rollback()

    res, err := tx.ExecContext(ctx,
        `UPDATE queue_entries SET status = $3 WHERE user_id IN ($1, $2)`, a, b, status)
    if err != nil {
        return fmt.Errorf("failed to update entry pair: %w", err)
    }
    if n, _ := res.RowsAffected(); n != 2 {
        return fmt.Errorf("expected 2 entries updated, got %d", n)
    }
    return tx.Commit()
}

func (r *postgresRepository) DeleteQueueEntry(ctx context.Context, userID int64) error {
    _, err := r.db.ExecContext(ctx,
        `DELETE FROM queue_entries WHERE user_id = $1`, userID)
    if err != nil {
        return fmt.Errorf("failed to delete queue entry: %w", err)
    }
    return nil
}

func (r *postgresRepository) ListQueueEntries(ctx context.Context, statuses []EntryStatus) ([]QueueEntry, error) {
    query, args, err := sqlx.In(`
        SELECT user_id, joined_at, effective_prefs, status
        FROM queue_entries
        WHERE status IN (?)
        ORDER BY joined_at ASC`, statuses)
    if err != nil {
        return nil, fmt.Errorf("failed to build entry query: %w", err)
    }

    var entries []QueueEntry
    if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
        return nil, fmt.Errorf("failed to list queue entries: %w", err)
    }
    return entries, nil
}

func (r *postgresRepository) PurgeLeftEntries(ctx context.Context, cutoff time.Time) error {
    _, err := r.db.ExecContext(ctx,
        `DELETE FROM queue_entries WHERE status = 'LEFT' AND joined_at < $1`, cutoff)
    if err != nil {
        return fmt.Errorf("failed to purge left entries: %w", err)
    }
    return nil
}

const attemptColumns = `
    id, user1_id, user2_id, score, components, state, created_at, expires_at,
    accepted_by, declined_by, chat_room_id, materialize_attempts, updated_at`

func (r *postgresRepository) CreateAttempt(ctx context.Context, a *MatchAttempt) error {
    query := `
        INSERT INTO match_attempts (` + attemptColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

    _, err := r.db.ExecContext(ctx, query,
        a.ID, a.User1ID, a.User2ID, a.Score, a.Components, a.State,
        a.CreatedAt, a.ExpiresAt, a.AcceptedBy, a.DeclinedBy,
        a.ChatRoomID, a.MaterializeAttempts, a.UpdatedAt)
    if err != nil {
        return fmt.Errorf("failed to create match attempt: %w", err)
    }
    return nil
}

func (r *postgresRepository) UpdateAttempt(ctx context.Context, a *MatchAttempt) error {
    query := `
        UPDATE match_attempts
        SET score = $2, components = $3, state = $4, expires_at = $5,
            accepted_by = $6, declined_by = $7, chat_room_id = $8,
            materialize_attempts = $9, updated_at = $10
        WHERE id = $1`

    res, err := r.db.ExecContext(ctx, query,
        a.ID, a.Score, a.Components, a.State, a.ExpiresAt,
        a.AcceptedBy, a.DeclinedBy, a.ChatRoomID,
        a.MaterializeAttempts, a.UpdatedAt)
    if err != nil {
        return fmt.Errorf("failed to update match attempt: %w", err)
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func (r *postgresRepository) GetAttempt(ctx context.Context, id string) (*MatchAttempt, error) {
    var a MatchAttempt
    err := r.db.GetContext(ctx, &a,
        `SELECT `+attemptColumns+` FROM match_attempts WHERE id = $1`, id)
    if err == sql.ErrNoRows {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, fmt.Errorf("failed to get match attempt: %w", err)
    }
    return &a, nil
}

func (r *postgresRepository) ListAttemptsForUser(ctx context.Context, userID int64, states []AttemptState) ([]MatchAttempt, error) {
    query, args, err := sqlx.In(`
        SELECT `+attemptColumns+`
        FROM match_attempts
        WHERE (user1_id = ? OR user2_id = ?) AND state IN (?)
        ORDER BY created_at DESC`, userID, userID, states)
    if err != nil {
        return nil, fmt.Errorf("failed to build attempt query: %w", err)
    }

    var attempts []MatchAttempt
    if err := r.db.SelectContext(ctx, &attempts, r.db.Rebind(query), args...); err != nil {
        return nil, fmt.Errorf("failed to list match attempts: %w", err)
    }
    return attempts, nil
}

func (r *postgresRepository) ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]MatchAttempt, error) {
    var attempts []MatchAttempt
    err := r.db.SelectContext(ctx, &attempts, `
        SELECT `+attemptColumns+`
        FROM match_attempts
        WHERE state IN ('PROPOSED', 'PARTIALLY_ACCEPTED') AND expires_at < $1
        ORDER BY expires_at ASC
        LIMIT $2`, now, limit)
    if err != nil {
        return nil, fmt.Errorf("failed to list expired attempts: %w", err)
    }
    return attempts, nil
}

func (r *postgresRepository) ListStalledMaterializations(ctx context.Context, updatedBefore time.Time, limit int) ([]MatchAttempt, error) {
    var attempts []MatchAttempt
    err := r.db.SelectContext(ctx, &attempts, `
        SELECT `+attemptColumns+`
        FROM match_attempts
        WHERE state = 'MUTUALLY_ACCEPTED' AND updated_at < $1
        ORDER BY updated_at ASC
        LIMIT $2`, updatedBefore, limit)
    if err != nil {
        return nil, fmt.Errorf("failed to list stalled materializations: %w", err)
    }
    return attempts, nil
}

func (r *postgresRepository) HasActiveAttempt(ctx context.Context, userID int64) (bool, error) {
    query, args, err := sqlx.In(`
        SELECT EXISTS(
            SELECT 1 FROM match_attempts
            WHERE (user1_id = ? OR user2_id = ?) AND state IN (?)
        )`, userID, userID, nonTerminalStates)
    if err != nil {
        return false, fmt.Errorf("failed to build active attempt query: %w", err)
    }

    var active bool
    if err := r.db.GetContext(ctx, &active, r.db.Rebind(query), args...); err != nil {
        return false, fmt.Errorf("failed to check active attempt: %w", err)
    }
    return active, nil
}

func (r *postgresRepository) PurgeTerminalAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx, `
        DELETE FROM match_attempts
        WHERE state IN ('DECLINED', 'EXPIRED', 'CANCELLED', 'MATERIALIZED', 'FAILED')
          AND updated_at < $1`, cutoff)
    if err != nil {
        return 0, fmt.Errorf("failed to purge terminal attempts: %w", err)
    }
    n, _ := res.RowsAffected()
    return n, nil
}
