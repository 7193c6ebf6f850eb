// internal/matchmaking/helpers_test.go
// Shared fixtures and in-memory collaborators for the matchmaking tests.

package matchmaking

import (
    "context"
    "sync"

    "github.com/lumera-app/match-service/internal/users"
)

func strPtr(v string) *string { return &v }

// profileFixture builds a complete, mutually compatible profile. Tests
// override individual fields.
func profileFixture(id int64, age int, gender string) *users.Profile {
    return &users.Profile{
        ID:        id,
        Username:  "user",
        Age:       age,
        Gender:    gender,
        IsActive:  true,
        Languages: []string{"english"},
        Interests: []string{"hiking", "cooking", "music"},
    }
}

func located(p *users.Profile, lat, lng float64) *users.Profile {
    p.Latitude = floatPtr(lat)
    p.Longitude = floatPtr(lng)
    return p
}

type stubProvider struct {
    mu       sync.Mutex
    profiles map[int64]*users.Profile
}

func newStubProvider(profiles ...*users.Profile) *stubProvider {
    s := &stubProvider{profiles: make(map[int64]*users.Profile)}
    for _, p := range profiles {
        s.profiles[p.ID] = p
    }
    return s
}

func (s *stubProvider) Get(ctx context.Context, userID int64) (*users.Profile, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.profiles[userID]
    if !ok {
        return nil, users.ErrNotFound
    }
    return p, nil
}

func (s *stubProvider) List(ctx context.Context, userIDs []int64) (map[int64]*users.Profile, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make(map[int64]*users.Profile, len(userIDs))
    for _, id := range userIDs {
        if p, ok := s.profiles[id]; ok {
            out[id] = p
        }
    }
    return out, nil
}

type stubSafety struct {
    mu         sync.Mutex
    inactive   map[int64]bool
    restricted map[int64]bool
    blocked    map[[2]int64]bool
}

func newStubSafety() *stubSafety {
    return &stubSafety{
        inactive:   make(map[int64]bool),
        restricted: make(map[int64]bool),
        blocked:    make(map[[2]int64]bool),
    }
}

func (s *stubSafety) IsActive(ctx context.Context, userID int64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return !s.inactive[userID], nil
}

func (s *stubSafety) HasBlocked(ctx context.Context, a, b int64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.blocked[[2]int64{a, b}], nil
}

func (s *stubSafety) IsRestricted(ctx context.Context, userID int64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.restricted[userID], nil
}

type sentNotification struct {
    UserID  int64
    Kind    NotificationKind
    Payload NotificationPayload
}

// recordingNotifier captures everything the state machine emits. Safe for
// the async delivery goroutines.
type recordingNotifier struct {
    mu    sync.Mutex
    sent  []sentNotification
    acted map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
    return &recordingNotifier{acted: make(map[string]bool)}
}

func (n *recordingNotifier) Send(ctx context.Context, userID int64, kind NotificationKind, payload NotificationPayload) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.sent = append(n.sent, sentNotification{UserID: userID, Kind: kind, Payload: payload})
    return nil
}

func (n *recordingNotifier) MarkActedUpon(ctx context.Context, userID int64, matchID string) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.acted[matchID] = true
    return nil
}

func (n *recordingNotifier) count(userID int64, kind NotificationKind) int {
    n.mu.Lock()
    defer n.mu.Unlock()
    c := 0
    for _, s := range n.sent {
        if s.UserID == userID && s.Kind == kind {
            c++
        }
    }
    return c
}

func (n *recordingNotifier) actedUpon(matchID string) bool {
    n.mu.Lock()
    defer n.mu.Unlock()
    return n.acted[matchID]
}
