// internal/matchmaking/service.go
// Service orchestrates the inbound operations across the pool, the
// pending-match manager and the user collaborators.

package matchmaking

import (
    "context"
    "fmt"
    "time"

    "github.com/lumera-app/match-service/internal/users"
)

// Service is the inbound surface of the match pipeline.
type Service interface {
    JoinQueue(ctx context.Context, userID int64, filters *users.Preferences) (*QueueStatus, error)
    LeaveQueue(ctx context.Context, userID int64) error
    GetQueueStatus(ctx context.Context, userID int64) (*QueueStatus, error)
    GetPendingMatches(ctx context.Context, userID int64) ([]*MatchAttemptView, error)
    AcceptMatch(ctx context.Context, userID int64, matchID string) (*MatchAttemptView, error)
    DeclineMatch(ctx context.Context, userID int64, matchID string) (*MatchAttemptView, error)
    CancelMatch(ctx context.Context, matchID, reason string) (*MatchAttemptView, error)
}

type service struct {
    provider     users.Provider
    safety       users.SafetyProvider
    pool         *Pool
    pending      *PendingMatchManager
    attempts     AttemptChecker
    tickInterval time.Duration
}

// NewService wires the service.
func NewService(provider users.Provider, safety users.SafetyProvider, pool *Pool, pending *PendingMatchManager, attempts AttemptChecker, tickInterval time.Duration) Service {
    return &service{
        provider:     provider,
        safety:       safety,
        pool:         pool,
        pending:      pending,
        attempts:     attempts,
        tickInterval: tickInterval,
    }
}

func validateFilters(f *users.Preferences) error {
    if f == nil {
        return nil
    }
    if f.PreferredMinAge != nil && *f.PreferredMinAge < 18 {
        return fmt.Errorf("%w: minimum age must be at least 18", ErrValidation)
    }
    if f.HasAgeRange() && *f.PreferredMinAge > *f.PreferredMaxAge {
        return fmt.Errorf("%w: age range is inverted", ErrValidation)
    }
    if d := f.EffectiveMaxDistance(); d != nil && *d <= 0 {
        return fmt.Errorf("%w: max distance must be positive", ErrValidation)
    }
    return nil
}

func (s *service) JoinQueue(ctx context.Context, userID int64, filters *users.Preferences) (*QueueStatus, error) {
    if err := validateFilters(filters); err != nil {
        return nil, err
    }

    profile, err := s.provider.Get(ctx, userID)
    if err != nil {
        if err == users.ErrNotFound {
            return nil, ErrNotFound
        }
        return nil, err
    }

    restricted, err := s.safety.IsRestricted(ctx, userID)
    if err != nil {
        return nil, err
    }
    if restricted || !profile.IsActive {
        return nil, ErrUserBlockedByPolicy
    }

    active, err := s.attempts.HasActiveAttempt(ctx, userID)
    if err != nil {
        return nil, err
    }
    if active {
        return nil, ErrAlreadyLocked
    }

    prefs := MergePreferences(profile.Preferences, filters)
    if _, err := s.pool.Join(ctx, profile, prefs); err != nil {
        return nil, err
    }
    return s.GetQueueStatus(ctx, userID)
}

func (s *service) LeaveQueue(ctx context.Context, userID int64) error {
    return s.pool.Leave(ctx, userID)
}

func (s *service) GetQueueStatus(ctx context.Context, userID int64) (*QueueStatus, error) {
    entry, ok := s.pool.Get(userID)
    if !ok {
        return &QueueStatus{Status: QueueNotInQueue}, nil
    }

    status := &QueueStatus{JoinedAt: &entry.JoinedAt}
    switch entry.Status {
    case StatusLocked:
        status.Status = QueueLocked
    default:
        status.Status = QueueWaiting
        if pos, ok := s.pool.Position(userID); ok {
            wait := int(float64(pos) * s.tickInterval.Seconds())
            status.Position = &pos
            status.EstimatedWaitSeconds = &wait
        }
    }
    return status, nil
}

func (s *service) GetPendingMatches(ctx context.Context, userID int64) ([]*MatchAttemptView, error) {
    attempts, err := s.pending.ListPending(ctx, userID)
    if err != nil {
        return nil, err
    }
    views := make([]*MatchAttemptView, 0, len(attempts))
    for i := range attempts {
        views = append(views, attemptView(&attempts[i], userID))
    }
    return views, nil
}

func (s *service) AcceptMatch(ctx context.Context, userID int64, matchID string) (*MatchAttemptView, error) {
    attempt, err := s.pending.Accept(ctx, matchID, userID)
    if err != nil {
        return nil, err
    }
    return attemptView(attempt, userID), nil
}

func (s *service) DeclineMatch(ctx context.Context, userID int64, matchID string) (*MatchAttemptView, error) {
    attempt, err := s.pending.Decline(ctx, matchID, userID)
    if err != nil {
        return nil, err
    }
    return attemptView(attempt, userID), nil
}

func (s *service) CancelMatch(ctx context.Context, matchID, reason string) (*MatchAttemptView, error) {
    attempt, err := s.pending.Cancel(ctx, matchID, reason)
    if err != nil {
        return nil, err
    }
    return attemptView(attempt, attempt.User1ID), nil
}
