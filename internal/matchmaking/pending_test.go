// internal/matchmaking/pending_test.go

package matchmaking

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lumera-app/match-service/internal/config"
    "github.com/lumera-app/match-service/internal/conversations"
)

type pendingHarness struct {
    repo     Repository
    pool     *Pool
    notifier *recordingNotifier
    convs    *conversations.MemoryService
    cooldown CooldownStore
    manager  *PendingMatchManager
}

func newPendingHarness(t *testing.T, policy config.RejoinPolicy) *pendingHarness {
    t.Helper()
    repo := NewMemoryRepository()
    pool := NewPool(repo, 10, time.Hour)
    notifier := newRecordingNotifier()
    convs := conversations.NewMemoryService()
    cooldown := NewMemoryCooldown(time.Hour)

    manager := NewPendingMatchManager(repo, pool, notifier, convs, cooldown, PendingConfig{
        ProposalTTL:            time.Minute,
        RejoinPolicy:           policy,
        MaterializeMaxAttempts: 3,
        MaterializeBackoff:     time.Millisecond,
        DependencyTimeout:      time.Second,
    })
    return &pendingHarness{
        repo:     repo,
        pool:     pool,
        notifier: notifier,
        convs:    convs,
        cooldown: cooldown,
        manager:  manager,
    }
}

// lockPair joins both users and locks them, as the matcher would before
// proposing.
func (h *pendingHarness) lockPair(t *testing.T, a, b int64) {
    t.Helper()
    ctx := context.Background()
    _, err := h.pool.Join(ctx, profileFixture(a, 30, "male"), EffectivePreferences{})
    require.NoError(t, err)
    _, err = h.pool.Join(ctx, profileFixture(b, 28, "female"), EffectivePreferences{})
    require.NoError(t, err)
    require.NoError(t, h.pool.Lock(ctx, a, b))
}

func (h *pendingHarness) propose(t *testing.T, a, b int64) *MatchAttempt {
    t.Helper()
    h.lockPair(t, a, b)
    attempt, err := h.manager.Propose(context.Background(), a, b, 0.8, ComponentScores{"age": 1})
    require.NoError(t, err)
    return attempt
}

func TestProposeCreatesAttemptAndNotifiesBoth(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)

    attempt := h.propose(t, 1, 2)

    assert.Equal(t, StateProposed, attempt.State)
    assert.NotEmpty(t, attempt.ID)
    assert.True(t, attempt.ExpiresAt.After(attempt.CreatedAt))

    require.Eventually(t, func() bool {
        return h.notifier.count(1, KindNewMatch) == 1 && h.notifier.count(2, KindNewMatch) == 1
    }, time.Second, 10*time.Millisecond)
}

func TestProposeBindsNonNullParticipantArrays(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)

    attempt := h.propose(t, 1, 2)

    // accepted_by/declined_by are NOT NULL columns; a nil pq.Int64Array
    // binds as SQL NULL and every insert would fail against Postgres. The
    // in-memory repository cannot catch that, so pin the driver value.
    require.NotNil(t, attempt.AcceptedBy)
    require.NotNil(t, attempt.DeclinedBy)
    accepted, err := attempt.AcceptedBy.Value()
    require.NoError(t, err)
    assert.NotNil(t, accepted)
    declined, err := attempt.DeclinedBy.Value()
    require.NoError(t, err)
    assert.NotNil(t, declined)
}

func TestProposeRejectsUserWithPendingAttempt(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    h.propose(t, 1, 2)

    _, err := h.manager.Propose(context.Background(), 2, 3, 0.7, nil)
    assert.ErrorIs(t, err, ErrAlreadyPending)

    _, err = h.manager.Propose(context.Background(), 4, 4, 0.7, nil)
    assert.ErrorIs(t, err, ErrValidation)
}

func TestAcceptFirstSidePartial(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)

    got, err := h.manager.Accept(context.Background(), attempt.ID, 1)
    require.NoError(t, err)

    assert.Equal(t, StatePartiallyAccepted, got.State)
    assert.True(t, got.HasAccepted(1))
    assert.False(t, got.HasAccepted(2))
}

func TestAcceptDuplicateIdempotent(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)

    first, err := h.manager.Accept(context.Background(), attempt.ID, 1)
    require.NoError(t, err)
    second, err := h.manager.Accept(context.Background(), attempt.ID, 1)
    require.NoError(t, err)

    assert.Equal(t, first.State, second.State)
    assert.Len(t, second.AcceptedBy, 1)
}

func TestMutualAcceptMaterializes(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    _, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)
    final, err := h.manager.Accept(ctx, attempt.ID, 2)
    require.NoError(t, err)

    assert.Equal(t, StateMaterialized, final.State)
    require.NotNil(t, final.ChatRoomID)
    room, err := h.convs.GetRoom(ctx, 1, 2)
    require.NoError(t, err)
    assert.Equal(t, room, *final.ChatRoomID)

    _, ok := h.pool.Get(1)
    assert.False(t, ok)
    _, ok = h.pool.Get(2)
    assert.False(t, ok)

    require.Eventually(t, func() bool {
        return h.notifier.count(1, KindMatchAccepted) == 1 &&
            h.notifier.count(2, KindMatchAccepted) == 1 &&
            h.notifier.actedUpon(attempt.ID)
    }, time.Second, 10*time.Millisecond)
}

func TestAcceptByNonParticipant(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)

    _, err := h.manager.Accept(context.Background(), attempt.ID, 99)
    assert.ErrorIs(t, err, ErrValidation)
    _, err = h.manager.Accept(context.Background(), "no-such-attempt", 1)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeclineTerminatesAndNotifiesOther(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)

    got, err := h.manager.Decline(context.Background(), attempt.ID, 1)
    require.NoError(t, err)

    assert.Equal(t, StateDeclined, got.State)
    assert.True(t, got.HasDeclined(1))

    // Remove policy: both entries leave the pool.
    _, ok := h.pool.Get(1)
    assert.False(t, ok)
    _, ok = h.pool.Get(2)
    assert.False(t, ok)

    // Only the counterpart hears about it.
    require.Eventually(t, func() bool {
        return h.notifier.count(2, KindMatchDeclined) == 1
    }, time.Second, 10*time.Millisecond)
    assert.Equal(t, 0, h.notifier.count(1, KindMatchDeclined))

    cooling, err := h.cooldown.Active(context.Background(), 1, 2)
    require.NoError(t, err)
    assert.True(t, cooling)
}

func TestDeclineRequeuesUnderRequeuePolicy(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRequeue)
    attempt := h.propose(t, 1, 2)

    _, err := h.manager.Decline(context.Background(), attempt.ID, 2)
    require.NoError(t, err)

    a, ok := h.pool.Get(1)
    require.True(t, ok)
    assert.Equal(t, StatusWaiting, a.Status)
    b, ok := h.pool.Get(2)
    require.True(t, ok)
    assert.Equal(t, StatusWaiting, b.Status)
}

func TestDeclineAfterOwnAcceptAllowed(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    _, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)

    // Changing your mind is allowed until the other side accepts too.
    got, err := h.manager.Decline(ctx, attempt.ID, 1)
    require.NoError(t, err)
    assert.Equal(t, StateDeclined, got.State)
}

func TestDeclineAfterMutualAcceptRejected(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    // Keep the attempt stuck in MUTUALLY_ACCEPTED by failing room creation;
    // the long backoff keeps the retry out of the way.
    h.manager.cfg.MaterializeBackoff = time.Minute
    h.convs.FailCreates = 100

    attempt := h.propose(t, 1, 2)
    ctx := context.Background()
    _, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)
    _, err = h.manager.Accept(ctx, attempt.ID, 2)
    require.NoError(t, err)

    stored, err := h.manager.Get(ctx, attempt.ID)
    require.NoError(t, err)
    require.Equal(t, StateMutuallyAccepted, stored.State)

    _, err = h.manager.Decline(ctx, attempt.ID, 1)
    assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestAcceptAfterDeclineRejected(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    _, err := h.manager.Decline(ctx, attempt.ID, 1)
    require.NoError(t, err)

    // Terminal state is simply reported back.
    got, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)
    assert.Equal(t, StateDeclined, got.State)
}

func TestAcceptPastExpiryExpires(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)

    h.manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

    got, err := h.manager.Accept(context.Background(), attempt.ID, 1)
    require.NoError(t, err)
    assert.Equal(t, StateExpired, got.State)

    require.Eventually(t, func() bool {
        return h.notifier.count(1, KindMatchExpired) == 1 &&
            h.notifier.count(2, KindMatchExpired) == 1
    }, time.Second, 10*time.Millisecond)
}

func TestExpireSweepsDueAttempts(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRequeue)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    // Not due yet: no transition.
    require.NoError(t, h.manager.Expire(ctx, attempt.ID))
    got, err := h.manager.Get(ctx, attempt.ID)
    require.NoError(t, err)
    assert.Equal(t, StateProposed, got.State)

    h.manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
    require.NoError(t, h.manager.Expire(ctx, attempt.ID))

    got, err = h.manager.Get(ctx, attempt.ID)
    require.NoError(t, err)
    assert.Equal(t, StateExpired, got.State)

    // Requeue policy puts both back in the queue.
    a, ok := h.pool.Get(1)
    require.True(t, ok)
    assert.Equal(t, StatusWaiting, a.Status)

    // Sweeping an already-terminal or unknown attempt is a no-op.
    require.NoError(t, h.manager.Expire(ctx, attempt.ID))
    require.NoError(t, h.manager.Expire(ctx, "no-such-attempt"))
}

func TestMaterializeRetriesThenSucceeds(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    h.convs.FailCreates = 1

    attempt := h.propose(t, 1, 2)
    ctx := context.Background()
    _, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)
    _, err = h.manager.Accept(ctx, attempt.ID, 2)
    require.NoError(t, err)

    require.Eventually(t, func() bool {
        got, err := h.manager.Get(ctx, attempt.ID)
        return err == nil && got.State == StateMaterialized && got.ChatRoomID != nil
    }, time.Second, 5*time.Millisecond)
}

func TestMaterializeExhaustsRetriesAndFails(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRequeue)
    h.convs.FailCreates = 100

    attempt := h.propose(t, 1, 2)
    ctx := context.Background()
    _, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)
    _, err = h.manager.Accept(ctx, attempt.ID, 2)
    require.NoError(t, err)

    require.Eventually(t, func() bool {
        got, err := h.manager.Get(ctx, attempt.ID)
        return err == nil && got.State == StateFailed
    }, 2*time.Second, 5*time.Millisecond)

    // Failed pairs rejoin the queue under the requeue policy.
    require.Eventually(t, func() bool {
        a, ok := h.pool.Get(1)
        return ok && a.Status == StatusWaiting
    }, time.Second, 5*time.Millisecond)
}

// mutuallyAcceptStuck drives an attempt into MUTUALLY_ACCEPTED with room
// creation failing and the retry goroutine parked on a long backoff.
func mutuallyAcceptStuck(t *testing.T, h *pendingHarness) *MatchAttempt {
    t.Helper()
    h.manager.cfg.MaterializeBackoff = time.Minute
    h.convs.FailCreates = 100

    attempt := h.propose(t, 1, 2)
    ctx := context.Background()
    _, err := h.manager.Accept(ctx, attempt.ID, 1)
    require.NoError(t, err)
    _, err = h.manager.Accept(ctx, attempt.ID, 2)
    require.NoError(t, err)

    stored, err := h.manager.Get(ctx, attempt.ID)
    require.NoError(t, err)
    require.Equal(t, StateMutuallyAccepted, stored.State)
    return stored
}

func TestResumeMaterializationAfterRestart(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := mutuallyAcceptStuck(t, h)
    ctx := context.Background()

    // The sweeper finds the stuck attempt by its stale updated_at.
    stalled, err := h.repo.ListStalledMaterializations(ctx, time.Now().Add(time.Second), 10)
    require.NoError(t, err)
    require.Len(t, stalled, 1)
    assert.Equal(t, attempt.ID, stalled[0].ID)

    // A fresh manager over the same store stands in for the restarted
    // process; the original retry goroutine is gone with it.
    h.convs.FailCreates = 0
    restarted := NewPendingMatchManager(h.repo, h.pool, h.notifier, h.convs, h.cooldown, h.manager.cfg)
    require.NoError(t, restarted.ResumeMaterialization(ctx, attempt.ID))

    got, err := restarted.Get(ctx, attempt.ID)
    require.NoError(t, err)
    assert.Equal(t, StateMaterialized, got.State)
    require.NotNil(t, got.ChatRoomID)

    // Resuming a resolved or unknown attempt is a no-op.
    require.NoError(t, restarted.ResumeMaterialization(ctx, attempt.ID))
    require.NoError(t, restarted.ResumeMaterialization(ctx, "no-such-attempt"))
}

func TestResumeMaterializationExhaustsBudgetAndFails(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRequeue)
    attempt := mutuallyAcceptStuck(t, h)
    ctx := context.Background()

    restarted := NewPendingMatchManager(h.repo, h.pool, h.notifier, h.convs, h.cooldown, h.manager.cfg)

    // One failed try already happened on mutual accept; two more sweeps
    // spend the budget of three, and the next one marks the attempt FAILED.
    for i := 0; i < 2; i++ {
        assert.Error(t, restarted.ResumeMaterialization(ctx, attempt.ID))
    }
    require.NoError(t, restarted.ResumeMaterialization(ctx, attempt.ID))

    got, err := restarted.Get(ctx, attempt.ID)
    require.NoError(t, err)
    assert.Equal(t, StateFailed, got.State)

    // Requeue policy puts both users back in the queue.
    a, ok := h.pool.Get(1)
    require.True(t, ok)
    assert.Equal(t, StatusWaiting, a.Status)
    b, ok := h.pool.Get(2)
    require.True(t, ok)
    assert.Equal(t, StatusWaiting, b.Status)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    got, err := h.manager.Cancel(ctx, attempt.ID, "moderation takedown")
    require.NoError(t, err)
    assert.Equal(t, StateCancelled, got.State)

    // Cancelling again reports the terminal state unchanged.
    again, err := h.manager.Cancel(ctx, attempt.ID, "duplicate")
    require.NoError(t, err)
    assert.Equal(t, StateCancelled, again.State)
}

func TestListPendingReturnsNonTerminalOnly(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    pending, err := h.manager.ListPending(ctx, 1)
    require.NoError(t, err)
    require.Len(t, pending, 1)
    assert.Equal(t, attempt.ID, pending[0].ID)

    _, err = h.manager.Decline(ctx, attempt.ID, 2)
    require.NoError(t, err)

    pending, err = h.manager.ListPending(ctx, 1)
    require.NoError(t, err)
    assert.Empty(t, pending)
}

func TestTerminalAttemptsNeverMutate(t *testing.T) {
    h := newPendingHarness(t, config.RejoinRemove)
    attempt := h.propose(t, 1, 2)
    ctx := context.Background()

    _, err := h.manager.Decline(ctx, attempt.ID, 1)
    require.NoError(t, err)
    before, err := h.manager.Get(ctx, attempt.ID)
    require.NoError(t, err)

    _, err = h.manager.Accept(ctx, attempt.ID, 2)
    require.NoError(t, err)
    _, err = h.manager.Decline(ctx, attempt.ID, 2)
    require.NoError(t, err)
    _, err = h.manager.Cancel(ctx, attempt.ID, "late")
    require.NoError(t, err)

    after, err := h.manager.Get(ctx, attempt.ID)
    require.NoError(t, err)
    assert.Equal(t, before.State, after.State)
    assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
    assert.Equal(t, before.DeclinedBy, after.DeclinedBy)
}
