// internal/matchmaking/models.go

package matchmaking

import (
    "database/sql/driver"
    "encoding/json"
    "fmt"
    "time"

    "github.com/lib/pq"
)

// EntryStatus is the state of a queue entry.
type EntryStatus string

const (
    StatusWaiting EntryStatus = "WAITING"
    StatusLocked  EntryStatus = "LOCKED"
    // StatusLeft is a tombstone kept for observability until it ages out.
    StatusLeft EntryStatus = "LEFT"
)

// QueueEntry is one user's presence in the candidate pool.
// At most one active entry exists per user.
type QueueEntry struct {
    UserID         int64                `json:"user_id" db:"user_id"`
    JoinedAt       time.Time            `json:"joined_at" db:"joined_at"`
    EffectivePrefs EffectivePreferences `json:"effective_prefs" db:"effective_prefs"`
    Status         EntryStatus          `json:"status" db:"status"`

    // UnsuccessfulRounds counts matcher rounds that produced no proposal
    // for this entry; drives starvation relaxation. Not persisted.
    UnsuccessfulRounds int `json:"-" db:"-"`
}

// AttemptState is the state of a match attempt.
type AttemptState string

const (
    StateProposed          AttemptState = "PROPOSED"
    StatePartiallyAccepted AttemptState = "PARTIALLY_ACCEPTED"
    StateMutuallyAccepted  AttemptState = "MUTUALLY_ACCEPTED"
    StateMaterialized      AttemptState = "MATERIALIZED"
    StateDeclined          AttemptState = "DECLINED"
    StateExpired           AttemptState = "EXPIRED"
    StateCancelled         AttemptState = "CANCELLED"
    StateFailed            AttemptState = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s AttemptState) IsTerminal() bool {
    switch s {
    case StateMaterialized, StateDeclined, StateExpired, StateCancelled, StateFailed:
        return true
    }
    return false
}

// ComponentScores maps scoring dimension to its [0, 1] value.
// Stored as JSONB.
type ComponentScores map[string]float64

func (c ComponentScores) Value() (driver.Value, error) {
    if c == nil {
        return nil, nil
    }
    return json.Marshal(c)
}

func (c *ComponentScores) Scan(value interface{}) error {
    if value == nil {
        *c = nil
        return nil
    }
    b, ok := value.([]byte)
    if !ok {
        return fmt.Errorf("unsupported component scores type %T", value)
    }
    return json.Unmarshal(b, c)
}

// MatchAttempt is a proposed pair tracked through the two-sided
// accept/decline state machine. Never mutated after a terminal state.
type MatchAttempt struct {
    ID         string          `json:"id" db:"id"`
    User1ID    int64           `json:"user1_id" db:"user1_id"`
    User2ID    int64           `json:"user2_id" db:"user2_id"`
    Score      float64         `json:"score" db:"score"`
    Components ComponentScores `json:"components" db:"components"`
    State      AttemptState    `json:"state" db:"state"`
    CreatedAt  time.Time       `json:"created_at" db:"created_at"`
    ExpiresAt  time.Time       `json:"expires_at" db:"expires_at"`
    AcceptedBy pq.Int64Array   `json:"accepted_by" db:"accepted_by"`
    DeclinedBy pq.Int64Array   `json:"declined_by" db:"declined_by"`
    ChatRoomID *string         `json:"chat_room_id,omitempty" db:"chat_room_id"`
    UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`

    // MaterializeAttempts counts conversation-creation tries after mutual
    // accept.
    MaterializeAttempts int `json:"-" db:"materialize_attempts"`
}

// IsParticipant reports whether userID is one of the two sides.
func (m *MatchAttempt) IsParticipant(userID int64) bool {
    return userID == m.User1ID || userID == m.User2ID
}

// OtherUser returns the counterpart of userID.
func (m *MatchAttempt) OtherUser(userID int64) int64 {
    if userID == m.User1ID {
        return m.User2ID
    }
    return m.User1ID
}

func contains(ids pq.Int64Array, userID int64) bool {
    for _, id := range ids {
        if id == userID {
            return true
        }
    }
    return false
}

// HasAccepted reports whether userID is in the accepted set.
func (m *MatchAttempt) HasAccepted(userID int64) bool {
    return contains(m.AcceptedBy, userID)
}

// HasDeclined reports whether userID is in the declined set.
func (m *MatchAttempt) HasDeclined(userID int64) bool {
    return contains(m.DeclinedBy, userID)
}

// BothAccepted reports whether both participants accepted.
func (m *MatchAttempt) BothAccepted() bool {
    return m.HasAccepted(m.User1ID) && m.HasAccepted(m.User2ID)
}
