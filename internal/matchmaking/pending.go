// internal/matchmaking/pending.go
// PendingMatchManager: the two-sided accept/decline state machine.
//
// Transitions on one attempt are serialized by a per-match mutex. A state
// transition commits to the repository before any notification goes out, so
// caller cancellation can never strand an attempt between states.

package matchmaking

import (
    "context"
    "errors"
    "log"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/lib/pq"

    "github.com/lumera-app/match-service/internal/config"
)

// NotificationKind enumerates the events the manager emits.
type NotificationKind string

const (
    KindNewMatch      NotificationKind = "NEW_MATCH"
    KindMatchAccepted NotificationKind = "MATCH_ACCEPTED"
    KindMatchDeclined NotificationKind = "MATCH_DECLINED"
    KindMatchExpired  NotificationKind = "MATCH_EXPIRED"
)

// NotificationPayload is the minimal payload sent to the Notifier. No
// profile data crosses this boundary.
type NotificationPayload struct {
    MatchID     string `json:"match_id"`
    OtherUserID int64  `json:"other_user_id"`
}

// Notifier is the outbound notification collaborator.
type Notifier interface {
    Send(ctx context.Context, userID int64, kind NotificationKind, payload NotificationPayload) error
    MarkActedUpon(ctx context.Context, userID int64, matchID string) error
}

// Conversations materializes chat rooms. CreateRoom is idempotent on the
// pair: repeated calls return the same room id.
type Conversations interface {
    CreateRoom(ctx context.Context, user1ID, user2ID int64) (string, error)
}

// PendingConfig carries the manager's knobs.
type PendingConfig struct {
    ProposalTTL            time.Duration
    RejoinPolicy           config.RejoinPolicy
    MaterializeMaxAttempts int
    MaterializeBackoff     time.Duration
    DependencyTimeout      time.Duration
}

// PendingMatchManager owns the MatchAttempt store.
type PendingMatchManager struct {
    repo          Repository
    pool          *Pool
    notifier      Notifier
    conversations Conversations
    cooldown      CooldownStore
    cfg           PendingConfig

    mmu        sync.Mutex
    matchLocks map[string]*sync.Mutex

    now func() time.Time
}

// NewPendingMatchManager wires the manager.
func NewPendingMatchManager(repo Repository, pool *Pool, notifier Notifier, conversations Conversations, cooldown CooldownStore, cfg PendingConfig) *PendingMatchManager {
    return &PendingMatchManager{
        repo:          repo,
        pool:          pool,
        notifier:      notifier,
        conversations: conversations,
        cooldown:      cooldown,
        cfg:           cfg,
        matchLocks:    make(map[string]*sync.Mutex),
        now:           time.Now,
    }
}

func (m *PendingMatchManager) matchMutex(id string) *sync.Mutex {
    m.mmu.Lock()
    defer m.mmu.Unlock()
    mu, ok := m.matchLocks[id]
    if !ok {
        mu = &sync.Mutex{}
        m.matchLocks[id] = mu
    }
    return mu
}

// Propose creates a PROPOSED attempt for a locked pair and notifies both
// users. Fails with ErrAlreadyPending if either user already has a
// non-terminal attempt; the caller unlocks the pair on that path.
func (m *PendingMatchManager) Propose(ctx context.Context, a, b int64, score float64, components ComponentScores) (*MatchAttempt, error) {
    if a == b {
        return nil, ErrValidation
    }
    for _, id := range []int64{a, b} {
        active, err := m.repo.HasActiveAttempt(ctx, id)
        if err != nil {
            return nil, err
        }
        if active {
            return nil, ErrAlreadyPending
        }
    }

    now := m.now().UTC()
    attempt := &MatchAttempt{
        ID:         uuid.NewString(),
        User1ID:    a,
        User2ID:    b,
        Score:      score,
        Components: components,
        State:      StateProposed,
        CreatedAt:  now,
        ExpiresAt:  now.Add(m.cfg.ProposalTTL),
        // Empty, not nil: a nil pq.Int64Array binds as SQL NULL and the
        // columns are NOT NULL.
        AcceptedBy: pq.Int64Array{},
        DeclinedBy: pq.Int64Array{},
        UpdatedAt:  now,
    }
    if err := m.repo.CreateAttempt(ctx, attempt); err != nil {
        return nil, err
    }
    RecordProposal(score)

    // Exactly one NEW_MATCH per participant per attempt: sent only here,
    // once, right after the attempt is created.
    m.notifyAsync(attempt.User1ID, KindNewMatch, NotificationPayload{MatchID: attempt.ID, OtherUserID: attempt.User2ID})
    m.notifyAsync(attempt.User2ID, KindNewMatch, NotificationPayload{MatchID: attempt.ID, OtherUserID: attempt.User1ID})

    snapshot := *attempt
    return &snapshot, nil
}

// Accept records userID's acceptance. On mutual accept the attempt is
// materialized: a chat room is requested, both users leave the pool and
// acceptance events go out. Accept on a terminal attempt returns the
// terminal state so clients can reconcile.
func (m *PendingMatchManager) Accept(ctx context.Context, matchID string, userID int64) (*MatchAttempt, error) {
    mu := m.matchMutex(matchID)
    mu.Lock()
    defer mu.Unlock()

    attempt, err := m.repo.GetAttempt(ctx, matchID)
    if err != nil {
        return nil, err
    }
    if !attempt.IsParticipant(userID) {
        return nil, ErrValidation
    }
    if attempt.State.IsTerminal() {
        return attempt, nil
    }

    // The expiry sweeper may lag; re-check the clock under the mutex.
    if expired, err := m.expireIfDue(ctx, attempt); err != nil {
        return nil, err
    } else if expired {
        return attempt, nil
    }

    if attempt.State == StateMutuallyAccepted {
        // Both sides already accepted; a retry while materialization is
        // pending changes nothing.
        return attempt, nil
    }
    if attempt.HasAccepted(userID) {
        return attempt, nil
    }
    if attempt.HasDeclined(userID) {
        return nil, ErrAttemptNotActive
    }

    attempt.AcceptedBy = append(attempt.AcceptedBy, userID)
    if attempt.BothAccepted() {
        attempt.State = StateMutuallyAccepted
    } else {
        attempt.State = StatePartiallyAccepted
    }
    attempt.UpdatedAt = m.now().UTC()
    if err := m.repo.UpdateAttempt(ctx, attempt); err != nil {
        return nil, err
    }

    if attempt.State == StateMutuallyAccepted {
        if err := m.materialize(ctx, attempt); err != nil {
            log.Printf("Materialization of attempt %s deferred: %v", attempt.ID, err)
            go m.retryMaterialize(attempt.ID)
        }
    }

    snapshot := *attempt
    return &snapshot, nil
}

// Decline records userID's decline; immediately terminal. A user may change
// their mind after their own accept, up until mutual accept.
func (m *PendingMatchManager) Decline(ctx context.Context, matchID string, userID int64) (*MatchAttempt, error) {
    mu := m.matchMutex(matchID)
    mu.Lock()
    defer mu.Unlock()

    attempt, err := m.repo.GetAttempt(ctx, matchID)
    if err != nil {
        return nil, err
    }
    if !attempt.IsParticipant(userID) {
        return nil, ErrValidation
    }
    if attempt.State.IsTerminal() {
        return attempt, nil
    }
    if expired, err := m.expireIfDue(ctx, attempt); err != nil {
        return nil, err
    } else if expired {
        return attempt, nil
    }
    if attempt.State == StateMutuallyAccepted {
        // Mutual accept is the point of no return.
        return nil, ErrAttemptNotActive
    }

    attempt.DeclinedBy = append(attempt.DeclinedBy, userID)
    attempt.State = StateDeclined
    attempt.UpdatedAt = m.now().UTC()
    if err := m.repo.UpdateAttempt(ctx, attempt); err != nil {
        return nil, err
    }
    RecordResolution(StateDeclined)

    m.cleanupTerminal(ctx, attempt)
    m.notifyAsync(attempt.OtherUser(userID), KindMatchDeclined,
        NotificationPayload{MatchID: attempt.ID, OtherUserID: userID})

    snapshot := *attempt
    return &snapshot, nil
}

// Expire is driven by the sweeper once expiresAt has passed.
func (m *PendingMatchManager) Expire(ctx context.Context, matchID string) error {
    mu := m.matchMutex(matchID)
    mu.Lock()
    defer mu.Unlock()

    attempt, err := m.repo.GetAttempt(ctx, matchID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil
        }
        return err
    }
    if attempt.State != StateProposed && attempt.State != StatePartiallyAccepted {
        return nil
    }
    if m.now().Before(attempt.ExpiresAt) {
        return nil
    }
    return m.transitionExpired(ctx, attempt)
}

// Cancel is administrative; valid from any non-terminal state.
func (m *PendingMatchManager) Cancel(ctx context.Context, matchID, reason string) (*MatchAttempt, error) {
    mu := m.matchMutex(matchID)
    mu.Lock()
    defer mu.Unlock()

    attempt, err := m.repo.GetAttempt(ctx, matchID)
    if err != nil {
        return nil, err
    }
    if attempt.State.IsTerminal() {
        return attempt, nil
    }

    attempt.State = StateCancelled
    attempt.UpdatedAt = m.now().UTC()
    if err := m.repo.UpdateAttempt(ctx, attempt); err != nil {
        return nil, err
    }
    RecordResolution(StateCancelled)
    log.Printf("Match attempt %s cancelled: %s", matchID, reason)

    m.cleanupTerminal(ctx, attempt)

    snapshot := *attempt
    return &snapshot, nil
}

// ListPending returns the user's non-terminal attempts.
func (m *PendingMatchManager) ListPending(ctx context.Context, userID int64) ([]MatchAttempt, error) {
    return m.repo.ListAttemptsForUser(ctx, userID, nonTerminalStates)
}

// Get returns one attempt.
func (m *PendingMatchManager) Get(ctx context.Context, matchID string) (*MatchAttempt, error) {
    return m.repo.GetAttempt(ctx, matchID)
}

// expireIfDue transitions a due attempt under the already-held match mutex.
func (m *PendingMatchManager) expireIfDue(ctx context.Context, attempt *MatchAttempt) (bool, error) {
    if m.now().Before(attempt.ExpiresAt) {
        return false, nil
    }
    if err := m.transitionExpired(ctx, attempt); err != nil {
        return false, err
    }
    return true, nil
}

func (m *PendingMatchManager) transitionExpired(ctx context.Context, attempt *MatchAttempt) error {
    attempt.State = StateExpired
    attempt.UpdatedAt = m.now().UTC()
    if err := m.repo.UpdateAttempt(ctx, attempt); err != nil {
        return err
    }
    RecordResolution(StateExpired)

    m.cleanupTerminal(ctx, attempt)
    m.notifyAsync(attempt.User1ID, KindMatchExpired,
        NotificationPayload{MatchID: attempt.ID, OtherUserID: attempt.User2ID})
    m.notifyAsync(attempt.User2ID, KindMatchExpired,
        NotificationPayload{MatchID: attempt.ID, OtherUserID: attempt.User1ID})
    return nil
}

// materialize requests the chat room and completes the attempt. Called with
// the match mutex held.
func (m *PendingMatchManager) materialize(ctx context.Context, attempt *MatchAttempt) error {
    callCtx, cancel := context.WithTimeout(context.Background(), m.cfg.DependencyTimeout)
    defer cancel()

    attempt.MaterializeAttempts++
    roomID, err := m.conversations.CreateRoom(callCtx, attempt.User1ID, attempt.User2ID)
    if err != nil {
        attempt.UpdatedAt = m.now().UTC()
        if uerr := m.repo.UpdateAttempt(ctx, attempt); uerr != nil {
            log.Printf("Failed to record materialization attempt on %s: %v", attempt.ID, uerr)
        }
        return err
    }

    attempt.ChatRoomID = &roomID
    attempt.State = StateMaterialized
    attempt.UpdatedAt = m.now().UTC()
    if err := m.repo.UpdateAttempt(ctx, attempt); err != nil {
        return err
    }
    RecordResolution(StateMaterialized)

    // A materialized pair always leaves the pool, regardless of policy.
    bg := context.Background()
    if err := m.pool.Remove(bg, attempt.User1ID, "matched"); err != nil {
        log.Printf("Failed to remove user %d from pool: %v", attempt.User1ID, err)
    }
    if err := m.pool.Remove(bg, attempt.User2ID, "matched"); err != nil {
        log.Printf("Failed to remove user %d from pool: %v", attempt.User2ID, err)
    }
    if err := m.cooldown.Mark(bg, attempt.User1ID, attempt.User2ID); err != nil {
        log.Printf("Failed to mark cooldown for attempt %s: %v", attempt.ID, err)
    }

    m.notifyAsync(attempt.User1ID, KindMatchAccepted,
        NotificationPayload{MatchID: attempt.ID, OtherUserID: attempt.User2ID})
    m.notifyAsync(attempt.User2ID, KindMatchAccepted,
        NotificationPayload{MatchID: attempt.ID, OtherUserID: attempt.User1ID})
    m.markActedUpon(attempt)
    return nil
}

// ResumeMaterialization re-drives a MUTUALLY_ACCEPTED attempt whose retry
// goroutine no longer exists, e.g. after a restart. One materialization try
// per call; the sweeper calls again until the attempt resolves, so failures
// here do not spawn another retry loop. Exhausted attempts go FAILED.
func (m *PendingMatchManager) ResumeMaterialization(ctx context.Context, matchID string) error {
    mu := m.matchMutex(matchID)
    mu.Lock()
    defer mu.Unlock()

    attempt, err := m.repo.GetAttempt(ctx, matchID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil
        }
        return err
    }
    if attempt.State != StateMutuallyAccepted {
        return nil
    }

    if attempt.MaterializeAttempts >= m.cfg.MaterializeMaxAttempts {
        attempt.State = StateFailed
        attempt.UpdatedAt = m.now().UTC()
        if err := m.repo.UpdateAttempt(ctx, attempt); err != nil {
            return err
        }
        RecordResolution(StateFailed)
        m.cleanupTerminal(ctx, attempt)
        return nil
    }
    return m.materialize(ctx, attempt)
}

// retryMaterialize drives the bounded materialization retry after a failed
// synchronous attempt. Runs in its own goroutine.
func (m *PendingMatchManager) retryMaterialize(matchID string) {
    backoff := m.cfg.MaterializeBackoff
    for {
        time.Sleep(backoff)

        mu := m.matchMutex(matchID)
        mu.Lock()
        attempt, err := m.repo.GetAttempt(context.Background(), matchID)
        if err != nil || attempt.State != StateMutuallyAccepted {
            mu.Unlock()
            return
        }

        if attempt.MaterializeAttempts >= m.cfg.MaterializeMaxAttempts {
            attempt.State = StateFailed
            attempt.UpdatedAt = m.now().UTC()
            if err := m.repo.UpdateAttempt(context.Background(), attempt); err != nil {
                log.Printf("Failed to mark attempt %s FAILED: %v", matchID, err)
            } else {
                RecordResolution(StateFailed)
                m.cleanupTerminal(context.Background(), attempt)
            }
            mu.Unlock()
            return
        }

        err = m.materialize(context.Background(), attempt)
        mu.Unlock()
        if err == nil {
            return
        }
        log.Printf("Materialization retry %d for attempt %s failed: %v",
            attempt.MaterializeAttempts, matchID, err)
        backoff *= 2
    }
}

// cleanupTerminal restores or removes both pool entries per the rejoin
// policy, starts the pair cool-down and marks the NEW_MATCH notifications
// acted-upon. Called exactly once per terminal transition, under the match
// mutex.
func (m *PendingMatchManager) cleanupTerminal(ctx context.Context, attempt *MatchAttempt) {
    bg := context.Background()
    for _, id := range []int64{attempt.User1ID, attempt.User2ID} {
        var err error
        if m.cfg.RejoinPolicy == config.RejoinRequeue {
            err = m.pool.Unlock(bg, id)
        } else {
            err = m.pool.Remove(bg, id, "attempt "+string(attempt.State))
        }
        if err != nil {
            log.Printf("Pool cleanup for user %d on attempt %s failed: %v", id, attempt.ID, err)
        }
    }
    if err := m.cooldown.Mark(bg, attempt.User1ID, attempt.User2ID); err != nil {
        log.Printf("Failed to mark cooldown for attempt %s: %v", attempt.ID, err)
    }
    m.markActedUpon(attempt)
}

func (m *PendingMatchManager) markActedUpon(attempt *MatchAttempt) {
    for _, id := range []int64{attempt.User1ID, attempt.User2ID} {
        userID := id
        go func() {
            ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DependencyTimeout)
            defer cancel()
            if err := m.notifier.MarkActedUpon(ctx, userID, attempt.ID); err != nil {
                log.Printf("Failed to mark notifications acted-upon for user %d: %v", userID, err)
            }
        }()
    }
}

// notifyAsync fires a notification without holding up the state machine.
// Uses a background context so request cancellation cannot drop the event.
func (m *PendingMatchManager) notifyAsync(userID int64, kind NotificationKind, payload NotificationPayload) {
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DependencyTimeout)
        defer cancel()
        if err := m.notifier.Send(ctx, userID, kind, payload); err != nil {
            log.Printf("Failed to send %s to user %d: %v", kind, userID, err)
        }
    }()
}
