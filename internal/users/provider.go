// internal/users/provider.go
// Collaborator interfaces the match pipeline consumes

package users

import (
    "context"
    "errors"
)

var ErrNotFound = errors.New("user not found")

// Provider looks up user profiles. Implementations may be backed by the
// users database directly or by a remote service; callers are expected to
// tolerate short staleness (see CachedProvider).
type Provider interface {
    Get(ctx context.Context, userID int64) (*Profile, error)
    List(ctx context.Context, userIDs []int64) (map[int64]*Profile, error)
}

// SafetyProvider answers moderation questions consulted during eligibility.
type SafetyProvider interface {
    // IsActive reports whether the account is neither banned, suspended
    // nor deactivated.
    IsActive(ctx context.Context, userID int64) (bool, error)
    // HasBlocked reports whether a has blocked b (one direction only;
    // callers check both).
    HasBlocked(ctx context.Context, a, b int64) (bool, error)
    // IsRestricted reports whether a moderation restriction prevents the
    // user from entering the match queue.
    IsRestricted(ctx context.Context, userID int64) (bool, error)
}
