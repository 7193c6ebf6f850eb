// internal/matchmaking/pool.go
// In-memory candidate pool with write-through persistence.
//
// The pool is the authority on who is currently seeking a match. Entries are
// indexed by geo cell so the matcher's pre-filter does not scan the world.
// Mutations go through per-user mutexes; the two-user Lock acquires them in
// ascending id order so concurrent shards cannot deadlock.

package matchmaking

import (
    "context"
    "fmt"
    "log"
    "math"
    "sort"
    "sync"
    "time"

    "github.com/lumera-app/match-service/internal/users"
)

// Candidate pairs a queue entry with the profile attributes the pre-filter
// and scorer need. Values are snapshots; the pool retains ownership of the
// live entry.
type Candidate struct {
    Entry     QueueEntry
    Age       int
    Gender    string
    Latitude  *float64
    Longitude *float64
}

type poolMember struct {
    entry     *QueueEntry
    age       int
    gender    string
    latitude  *float64
    longitude *float64
    cell      string
}

// Pool implements the candidate pool.
type Pool struct {
    repo          Repository
    geoCellSizeKm float64
    tombstoneTTL  time.Duration

    mu         sync.RWMutex
    members    map[int64]*poolMember
    byCell     map[string]map[int64]struct{}
    tombstones map[int64]time.Time

    lmu   sync.Mutex
    locks map[int64]*sync.Mutex
}

// NewPool creates an empty pool writing through to repo.
func NewPool(repo Repository, geoCellSizeKm float64, tombstoneTTL time.Duration) *Pool {
    return &Pool{
        repo:          repo,
        geoCellSizeKm: geoCellSizeKm,
        tombstoneTTL:  tombstoneTTL,
        members:       make(map[int64]*poolMember),
        byCell:        make(map[string]map[int64]struct{}),
        tombstones:    make(map[int64]time.Time),
        locks:         make(map[int64]*sync.Mutex),
    }
}

// Load restores WAITING entries from the repository after a restart.
// LOCKED entries are restored too; their attempts drive the next transition.
func (p *Pool) Load(ctx context.Context, provider users.Provider) error {
    entries, err := p.repo.ListQueueEntries(ctx, []EntryStatus{StatusWaiting, StatusLocked})
    if err != nil {
        return fmt.Errorf("failed to load queue entries: %w", err)
    }
    if len(entries) == 0 {
        return nil
    }

    ids := make([]int64, 0, len(entries))
    for _, e := range entries {
        ids = append(ids, e.UserID)
    }
    profiles, err := provider.List(ctx, ids)
    if err != nil {
        return fmt.Errorf("failed to load profiles for queue entries: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    for _, e := range entries {
        profile, ok := profiles[e.UserID]
        if !ok {
            log.Printf("Queue entry for unknown user %d dropped on reload", e.UserID)
            continue
        }
        entry := e
        p.insertLocked(&entry, profile)
    }
    log.Printf("Candidate pool restored with %d entries", len(p.members))
    return nil
}

// userMutex returns the per-user mutex, creating it on first use.
func (p *Pool) userMutex(userID int64) *sync.Mutex {
    p.lmu.Lock()
    defer p.lmu.Unlock()
    m, ok := p.locks[userID]
    if !ok {
        m = &sync.Mutex{}
        p.locks[userID] = m
    }
    return m
}

func (p *Pool) cellFor(lat, lng *float64) string {
    if lat == nil || lng == nil {
        return "nowhere"
    }
    deg := p.geoCellSizeKm / kmPerDegree
    return fmt.Sprintf("%d:%d", int(math.Floor(*lat/deg)), int(math.Floor(*lng/deg)))
}

// insertLocked adds or replaces a member. Caller holds p.mu.
func (p *Pool) insertLocked(entry *QueueEntry, profile *users.Profile) {
    if old, ok := p.members[entry.UserID]; ok {
        delete(p.byCell[old.cell], entry.UserID)
    }
    m := &poolMember{
        entry:     entry,
        age:       profile.Age,
        gender:    profile.Gender,
        latitude:  profile.Latitude,
        longitude: profile.Longitude,
        cell:      p.cellFor(profile.Latitude, profile.Longitude),
    }
    p.members[entry.UserID] = m
    if p.byCell[m.cell] == nil {
        p.byCell[m.cell] = make(map[int64]struct{})
    }
    p.byCell[m.cell][entry.UserID] = struct{}{}
    delete(p.tombstones, entry.UserID)
}

func (p *Pool) removeLocked(userID int64, tombstone bool) {
    if m, ok := p.members[userID]; ok {
        delete(p.byCell[m.cell], userID)
        delete(p.members, userID)
    }
    if tombstone {
        p.tombstones[userID] = time.Now()
    }
}

// Join upserts the user's entry. Idempotent: a repeat join refreshes
// effectivePrefs and joinedAt. Fails with ErrAlreadyLocked while the user
// is locked into a pending attempt.
func (p *Pool) Join(ctx context.Context, profile *users.Profile, prefs EffectivePreferences) (*QueueEntry, error) {
    mu := p.userMutex(profile.ID)
    mu.Lock()
    defer mu.Unlock()

    p.mu.Lock()
    if m, ok := p.members[profile.ID]; ok && m.entry.Status == StatusLocked {
        p.mu.Unlock()
        return nil, ErrAlreadyLocked
    }
    entry := &QueueEntry{
        UserID:         profile.ID,
        JoinedAt:       time.Now().UTC(),
        EffectivePrefs: prefs,
        Status:         StatusWaiting,
    }
    p.insertLocked(entry, profile)
    p.mu.Unlock()

    if err := p.repo.UpsertQueueEntry(ctx, entry); err != nil {
        p.mu.Lock()
        p.removeLocked(profile.ID, false)
        p.mu.Unlock()
        return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
    }

    snapshot := *entry
    return &snapshot, nil
}

// Leave removes the user's entry, leaving a tombstone. Idempotent.
func (p *Pool) Leave(ctx context.Context, userID int64) error {
    mu := p.userMutex(userID)
    mu.Lock()
    defer mu.Unlock()

    p.mu.Lock()
    _, present := p.members[userID]
    p.removeLocked(userID, present)
    p.mu.Unlock()

    if !present {
        return nil
    }
    if err := p.repo.SetQueueEntryStatus(ctx, userID, StatusLeft); err != nil {
        return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
    }
    return nil
}

// Lock atomically transitions both entries WAITING → LOCKED, or fails with
// ErrNotAvailable leaving both untouched. Per-user mutexes are taken in
// ascending id order.
func (p *Pool) Lock(ctx context.Context, a, b int64) error {
    if a == b {
        return ErrValidation
    }
    lo, hi := a, b
    if lo > hi {
        lo, hi = hi, lo
    }
    loMu, hiMu := p.userMutex(lo), p.userMutex(hi)
    loMu.Lock()
    defer loMu.Unlock()
    hiMu.Lock()
    defer hiMu.Unlock()

    p.mu.Lock()
    ma, okA := p.members[a]
    mb, okB := p.members[b]
    if !okA || !okB || ma.entry.Status != StatusWaiting || mb.entry.Status != StatusWaiting {
        p.mu.Unlock()
        return ErrNotAvailable
    }
    ma.entry.Status = StatusLocked
    mb.entry.Status = StatusLocked
    p.mu.Unlock()

    if err := p.repo.SetQueueEntryStatusPair(ctx, a, b, StatusLocked); err != nil {
        p.mu.Lock()
        if m, ok := p.members[a]; ok {
            m.entry.Status = StatusWaiting
        }
        if m, ok := p.members[b]; ok {
            m.entry.Status = StatusWaiting
        }
        p.mu.Unlock()
        return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
    }
    return nil
}

// Unlock returns a LOCKED entry to WAITING. Used when an attempt ends
// without materializing and the rejoin policy re-queues.
func (p *Pool) Unlock(ctx context.Context, userID int64) error {
    mu := p.userMutex(userID)
    mu.Lock()
    defer mu.Unlock()

    p.mu.Lock()
    m, ok := p.members[userID]
    if !ok || m.entry.Status != StatusLocked {
        p.mu.Unlock()
        return nil
    }
    m.entry.Status = StatusWaiting
    m.entry.UnsuccessfulRounds = 0
    p.mu.Unlock()

    if err := p.repo.SetQueueEntryStatus(ctx, userID, StatusWaiting); err != nil {
        return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
    }
    return nil
}

// Remove destroys the entry. Used on successful pairing and on terminal
// attempt resolution under the remove policy.
func (p *Pool) Remove(ctx context.Context, userID int64, reason string) error {
    mu := p.userMutex(userID)
    mu.Lock()
    defer mu.Unlock()

    p.mu.Lock()
    _, present := p.members[userID]
    p.removeLocked(userID, false)
    p.mu.Unlock()

    if !present {
        return nil
    }
    log.Printf("Queue entry for user %d removed: %s", userID, reason)
    if err := p.repo.DeleteQueueEntry(ctx, userID); err != nil {
        return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
    }
    return nil
}

// Get returns a snapshot of the user's entry.
func (p *Pool) Get(userID int64) (*QueueEntry, bool) {
    p.mu.RLock()
    defer p.mu.RUnlock()
    m, ok := p.members[userID]
    if !ok {
        return nil, false
    }
    e := *m.entry
    return &e, true
}

// Position returns the user's 1-based rank among WAITING entries by joinedAt.
func (p *Pool) Position(userID int64) (int, bool) {
    p.mu.RLock()
    defer p.mu.RUnlock()
    me, ok := p.members[userID]
    if !ok || me.entry.Status != StatusWaiting {
        return 0, false
    }
    pos := 1
    for id, m := range p.members {
        if id == userID || m.entry.Status != StatusWaiting {
            continue
        }
        if m.entry.JoinedAt.Before(me.entry.JoinedAt) {
            pos++
        }
    }
    return pos, true
}

// WaitingCount returns the number of WAITING entries.
func (p *Pool) WaitingCount() int {
    p.mu.RLock()
    defer p.mu.RUnlock()
    n := 0
    for _, m := range p.members {
        if m.entry.Status == StatusWaiting {
            n++
        }
    }
    return n
}

func candidateOf(m *poolMember) Candidate {
    return Candidate{
        Entry:     *m.entry,
        Age:       m.age,
        Gender:    m.gender,
        Latitude:  m.latitude,
        Longitude: m.longitude,
    }
}

// Snapshot returns up to limit WAITING entries ordered by joinedAt ascending.
func (p *Pool) Snapshot(limit int) []Candidate {
    p.mu.RLock()
    out := make([]Candidate, 0, limit)
    for _, m := range p.members {
        if m.entry.Status == StatusWaiting {
            out = append(out, candidateOf(m))
        }
    }
    p.mu.RUnlock()

    sort.Slice(out, func(i, j int) bool {
        if !out[i].Entry.JoinedAt.Equal(out[j].Entry.JoinedAt) {
            return out[i].Entry.JoinedAt.Before(out[j].Entry.JoinedAt)
        }
        return out[i].Entry.UserID < out[j].Entry.UserID
    })
    if len(out) > limit {
        out = out[:limit]
    }
    return out
}

// CandidatesFor returns up to limit WAITING entries passing the coarse
// pre-filter for the seeker: age range, geo cell distance bucket and mutual
// gender compatibility. Fine-grained eligibility stays with the scorer.
func (p *Pool) CandidatesFor(seeker Candidate, limit int) []Candidate {
    p.mu.RLock()
    defer p.mu.RUnlock()

    candidateIDs := p.cellCandidatesLocked(seeker)
    out := make([]Candidate, 0, limit)
    for _, id := range candidateIDs {
        if id == seeker.Entry.UserID {
            continue
        }
        m, ok := p.members[id]
        if !ok || m.entry.Status != StatusWaiting {
            continue
        }
        if !seeker.Entry.EffectivePrefs.ContainsAge(m.age) ||
            !m.entry.EffectivePrefs.ContainsAge(seeker.Age) {
            continue
        }
        if !seeker.Entry.EffectivePrefs.AcceptsGender(m.gender) ||
            !m.entry.EffectivePrefs.AcceptsGender(seeker.Gender) {
            continue
        }
        out = append(out, candidateOf(m))
        if len(out) == limit {
            break
        }
    }
    return out
}

// cellCandidatesLocked collects member ids from the geo cells the seeker's
// distance constraint can reach, ordered by joinedAt so older entries are
// considered first. An unconstrained or location-less seeker sees everyone.
func (p *Pool) cellCandidatesLocked(seeker Candidate) []int64 {
    maxDist := seeker.Entry.EffectivePrefs.MaxDistanceKm
    var ids []int64
    if maxDist == nil || seeker.Latitude == nil || seeker.Longitude == nil {
        for id := range p.members {
            ids = append(ids, id)
        }
    } else {
        deg := p.geoCellSizeKm / kmPerDegree
        radiusLat := int(math.Ceil(*maxDist/p.geoCellSizeKm)) + 1
        // A longitude degree spans kmPerDegree km only at the equator and
        // shrinks by cos(lat) toward the poles, so the lng radius widens
        // accordingly; capped at a full circle of cells.
        radiusLng := radiusLat
        if kmPerLng := kmPerDegree * math.Cos(*seeker.Latitude*math.Pi/180); kmPerLng > 0 {
            radiusLng = int(math.Ceil(*maxDist/(deg*kmPerLng))) + 1
        }
        if full := int(math.Ceil(360 / deg)); radiusLng > full {
            radiusLng = full
        }
        baseX := int(math.Floor(*seeker.Latitude / deg))
        baseY := int(math.Floor(*seeker.Longitude / deg))
        for dx := -radiusLat; dx <= radiusLat; dx++ {
            for dy := -radiusLng; dy <= radiusLng; dy++ {
                cell := fmt.Sprintf("%d:%d", baseX+dx, baseY+dy)
                for id := range p.byCell[cell] {
                    ids = append(ids, id)
                }
            }
        }
        // Location-less members are only reachable by unconstrained seekers.
    }

    sort.Slice(ids, func(i, j int) bool {
        mi, mj := p.members[ids[i]], p.members[ids[j]]
        if !mi.entry.JoinedAt.Equal(mj.entry.JoinedAt) {
            return mi.entry.JoinedAt.Before(mj.entry.JoinedAt)
        }
        return ids[i] < ids[j]
    })
    return ids
}

// NoteUnsuccessfulRound bumps the starvation counter on a WAITING entry.
func (p *Pool) NoteUnsuccessfulRound(userID int64) int {
    p.mu.Lock()
    defer p.mu.Unlock()
    m, ok := p.members[userID]
    if !ok {
        return 0
    }
    m.entry.UnsuccessfulRounds++
    return m.entry.UnsuccessfulRounds
}

// PurgeTombstones drops LEFT tombstones older than the configured TTL and
// mirrors the purge to the repository.
func (p *Pool) PurgeTombstones(ctx context.Context) {
    cutoff := time.Now().Add(-p.tombstoneTTL)

    p.mu.Lock()
    for id, left := range p.tombstones {
        if left.Before(cutoff) {
            delete(p.tombstones, id)
        }
    }
    p.mu.Unlock()

    if err := p.repo.PurgeLeftEntries(ctx, cutoff); err != nil {
        log.Printf("Failed to purge left queue entries: %v", err)
    }
}
