// internal/matchmaking/matcher.go
// Periodic pairing engine.
//
// Each shard owns a disjoint slice of the user id space (fnv32 hash) and
// runs one tick at a time. A tick walks WAITING entries oldest-first,
// pre-filters candidates through the pool indexes, scores them and locks
// the best available pair greedy-best-first.

package matchmaking

import (
    "context"
    "hash/fnv"
    "log"
    "sort"
    "strconv"
    "sync"
    "time"

    "github.com/lumera-app/match-service/internal/users"
)

// MatcherConfig carries the matcher's knobs.
type MatcherConfig struct {
    TickInterval      time.Duration
    SnapshotSize      int
    CandidateCap      int
    MinScoreThreshold float64
    Shards            int
    MaxInflight       int
    RelaxAfterRounds  int
    RelaxStep         float64
    RelaxFloor        float64
}

// Matcher consumes the pool and emits pair proposals.
type Matcher struct {
    pool     *Pool
    scorer   *Scorer
    pending  *PendingMatchManager
    provider users.Provider
    cfg      MatcherConfig

    // Bounds in-flight proposals so the notifier is never overrun.
    sem chan struct{}
}

// NewMatcher wires the matcher.
func NewMatcher(pool *Pool, scorer *Scorer, pending *PendingMatchManager, provider users.Provider, cfg MatcherConfig) *Matcher {
    if cfg.Shards < 1 {
        cfg.Shards = 1
    }
    if cfg.MaxInflight < 1 {
        cfg.MaxInflight = 1
    }
    return &Matcher{
        pool:     pool,
        scorer:   scorer,
        pending:  pending,
        provider: provider,
        cfg:      cfg,
        sem:      make(chan struct{}, cfg.MaxInflight),
    }
}

func shardOf(userID int64, shards int) int {
    h := fnv.New32a()
    h.Write([]byte(strconv.FormatInt(userID, 10)))
    return int(h.Sum32() % uint32(shards))
}

// Run starts one goroutine per shard and blocks until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) {
    var wg sync.WaitGroup
    for shard := 0; shard < m.cfg.Shards; shard++ {
        wg.Add(1)
        go func(shard int) {
            defer wg.Done()
            ticker := time.NewTicker(m.cfg.TickInterval)
            defer ticker.Stop()
            for {
                select {
                case <-ctx.Done():
                    return
                case <-ticker.C:
                    m.Tick(ctx, shard)
                }
            }
        }(shard)
    }
    log.Printf("Matcher running with %d shard(s), tick interval %s", m.cfg.Shards, m.cfg.TickInterval)
    wg.Wait()
}

// Tick runs one matching round for a shard and returns the number of
// proposals emitted. Exported for tests and the admin trigger.
func (m *Matcher) Tick(ctx context.Context, shard int) int {
    start := time.Now()
    defer func() {
        RecordTickDuration(time.Since(start).Seconds())
        RecordQueueDepth(m.pool.WaitingCount())
    }()

    snapshot := m.pool.Snapshot(m.cfg.SnapshotSize)
    proposals := 0
    pairedThisTick := make(map[int64]bool)

    for _, seeker := range snapshot {
        if ctx.Err() != nil {
            return proposals
        }
        if shardOf(seeker.Entry.UserID, m.cfg.Shards) != shard {
            continue
        }
        if pairedThisTick[seeker.Entry.UserID] {
            continue
        }

        proposed, err := m.matchOne(ctx, seeker, pairedThisTick)
        if err != nil {
            log.Printf("Matching round for user %d failed: %v", seeker.Entry.UserID, err)
            continue
        }
        if proposed {
            proposals++
        } else {
            m.pool.NoteUnsuccessfulRound(seeker.Entry.UserID)
        }
    }
    return proposals
}

type scoredCandidate struct {
    candidate Candidate
    result    *ScoreResult
}

// matchOne evaluates one seeker: at most one proposal per entry per tick.
func (m *Matcher) matchOne(ctx context.Context, seeker Candidate, pairedThisTick map[int64]bool) (bool, error) {
    threshold := m.relaxedThreshold(seeker.Entry.UnsuccessfulRounds)

    candidates := m.pool.CandidatesFor(seeker, m.cfg.CandidateCap)
    if len(candidates) == 0 {
        return false, nil
    }

    ids := make([]int64, 0, len(candidates)+1)
    ids = append(ids, seeker.Entry.UserID)
    for _, c := range candidates {
        ids = append(ids, c.Entry.UserID)
    }
    profiles, err := m.provider.List(ctx, ids)
    if err != nil {
        return false, err
    }
    seekerProfile, ok := profiles[seeker.Entry.UserID]
    if !ok {
        return false, users.ErrNotFound
    }

    var scored []scoredCandidate
    for _, c := range candidates {
        if pairedThisTick[c.Entry.UserID] {
            continue
        }
        profile, ok := profiles[c.Entry.UserID]
        if !ok {
            continue
        }
        result, err := m.scorer.Score(ctx, seekerProfile, profile, seeker.Entry.EffectivePrefs, c.Entry.EffectivePrefs)
        if err != nil {
            // One bad pair never stalls the tick.
            log.Printf("Scoring %d/%d failed: %v", seeker.Entry.UserID, c.Entry.UserID, err)
            continue
        }
        if !result.Eligible || result.Total < threshold {
            continue
        }
        scored = append(scored, scoredCandidate{candidate: c, result: result})
    }
    if len(scored) == 0 {
        return false, nil
    }

    // Deterministic given the snapshot: score desc, then candidate joinedAt
    // asc, then user id.
    sort.Slice(scored, func(i, j int) bool {
        if scored[i].result.Total != scored[j].result.Total {
            return scored[i].result.Total > scored[j].result.Total
        }
        ji, jj := scored[i].candidate.Entry.JoinedAt, scored[j].candidate.Entry.JoinedAt
        if !ji.Equal(jj) {
            return ji.Before(jj)
        }
        return scored[i].candidate.Entry.UserID < scored[j].candidate.Entry.UserID
    })

    for _, sc := range scored {
        other := sc.candidate.Entry.UserID
        if err := m.pool.Lock(ctx, seeker.Entry.UserID, other); err != nil {
            if err == ErrNotAvailable {
                // Lost to a concurrent shard; try the next candidate.
                RecordLockRaceLost()
                continue
            }
            return false, err
        }

        if ok := m.emitProposal(ctx, seeker.Entry.UserID, other, sc.result); ok {
            pairedThisTick[seeker.Entry.UserID] = true
            pairedThisTick[other] = true
            return true, nil
        }
    }
    return false, nil
}

// emitProposal hands the locked pair to the pending-match manager, bounded
// by the in-flight semaphore. On failure both entries go back to WAITING.
func (m *Matcher) emitProposal(ctx context.Context, a, b int64, result *ScoreResult) bool {
    select {
    case m.sem <- struct{}{}:
    case <-ctx.Done():
        m.unlockPair(a, b)
        return false
    }
    TrackInflightProposal(1)
    defer func() {
        <-m.sem
        TrackInflightProposal(-1)
    }()

    if _, err := m.pending.Propose(ctx, a, b, result.Total, result.Components); err != nil {
        log.Printf("Proposal for pair %d/%d rejected: %v", a, b, err)
        m.unlockPair(a, b)
        return false
    }
    return true
}

func (m *Matcher) unlockPair(a, b int64) {
    bg := context.Background()
    if err := m.pool.Unlock(bg, a); err != nil {
        log.Printf("Failed to unlock user %d: %v", a, err)
    }
    if err := m.pool.Unlock(bg, b); err != nil {
        log.Printf("Failed to unlock user %d: %v", b, err)
    }
}

// relaxedThreshold lowers the score floor for entries that sat through many
// unsuccessful rounds, down to the configured floor.
func (m *Matcher) relaxedThreshold(unsuccessfulRounds int) float64 {
    if m.cfg.RelaxAfterRounds <= 0 {
        return m.cfg.MinScoreThreshold
    }
    steps := unsuccessfulRounds / m.cfg.RelaxAfterRounds
    t := m.cfg.MinScoreThreshold - float64(steps)*m.cfg.RelaxStep
    if t < m.cfg.RelaxFloor {
        t = m.cfg.RelaxFloor
    }
    return t
}
