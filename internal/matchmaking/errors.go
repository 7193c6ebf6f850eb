// internal/matchmaking/errors.go
// Error kinds surfaced by the match pipeline

package matchmaking

import "errors"

var (
    // ErrValidation indicates bad caller input.
    ErrValidation = errors.New("invalid input")

    // ErrNotFound indicates the queue entry or match attempt does not exist.
    ErrNotFound = errors.New("not found")

    // ErrAlreadyLocked indicates the user is currently in a non-terminal
    // match attempt and cannot re-enter the queue.
    ErrAlreadyLocked = errors.New("user is already in a pending match")

    // ErrAlreadyPending indicates a propose raced another proposal for the
    // same user. Defense-in-depth behind the pool lock.
    ErrAlreadyPending = errors.New("user already has a pending match attempt")

    // ErrAttemptNotActive indicates an accept/decline against a terminal or
    // expired attempt.
    ErrAttemptNotActive = errors.New("match attempt is no longer active")

    // ErrNotAvailable indicates a transient race: one of the two entries was
    // not WAITING at lock time. The matcher retries with the next candidate.
    ErrNotAvailable = errors.New("entry not available for locking")

    // ErrUserBlockedByPolicy indicates a moderation restriction prevents
    // queue entry.
    ErrUserBlockedByPolicy = errors.New("user is blocked from matchmaking by policy")

    // ErrDependencyTimeout indicates an external collaborator did not answer
    // within its budget.
    ErrDependencyTimeout = errors.New("dependency timed out")

    // ErrDependencyUnavailable indicates an external collaborator is down.
    ErrDependencyUnavailable = errors.New("dependency unavailable")

    // ErrInvariantViolated indicates internal state corruption. Fatal for
    // the handling task; never retried.
    ErrInvariantViolated = errors.New("internal invariant violated")
)
