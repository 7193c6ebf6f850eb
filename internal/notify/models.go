// internal/notify/models.go

package notify

import (
    "database/sql/driver"
    "encoding/json"
    "time"
)

// Kind enumerates notification kinds handled by this service. Match
// lifecycle kinds come from the pipeline; NEW_MESSAGE events originate in
// the chat service and pass through the privacy sanitizer.
const (
    KindNewMatch      = "NEW_MATCH"
    KindMatchAccepted = "MATCH_ACCEPTED"
    KindMatchDeclined = "MATCH_DECLINED"
    KindMatchExpired  = "MATCH_EXPIRED"
    KindNewMessage    = "NEW_MESSAGE"
)

// Data is the free-form payload blob. Stored as JSONB.
type Data map[string]interface{}

func (d *Data) Scan(value interface{}) error {
    if value == nil {
        *d = make(Data)
        return nil
    }
    b, ok := value.([]byte)
    if !ok {
        return nil
    }
    return json.Unmarshal(b, d)
}

func (d Data) Value() (driver.Value, error) {
    if d == nil {
        return "{}", nil
    }
    return json.Marshal(d)
}

// Notification is one in-app feed row.
type Notification struct {
    ID        int64     `json:"id" db:"id"`
    UserID    int64     `json:"user_id" db:"user_id"`
    Kind      string    `json:"kind" db:"kind"`
    Title     string    `json:"title" db:"title"`
    Body      string    `json:"body" db:"body"`
    Data      Data      `json:"data" db:"data"`
    MatchID   *string   `json:"match_id,omitempty" db:"match_id"`
    ActedUpon bool      `json:"acted_upon" db:"acted_upon"`
    IsRead    bool      `json:"is_read" db:"is_read"`
    CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PushToken is a registered device token.
type PushToken struct {
    ID       int64  `json:"id" db:"id"`
    UserID   int64  `json:"user_id" db:"user_id"`
    Platform string `json:"platform" db:"platform"`
    Token    string `json:"token" db:"token"`
    IsActive bool   `json:"is_active" db:"is_active"`
}

// RegisterPushTokenRequest registers a device token.
type RegisterPushTokenRequest struct {
    Platform string `json:"platform" validate:"required,oneof=ios android web"`
    Token    string `json:"token" validate:"required"`
}

// Event is what the WebSocket hub streams to a connected user.
type Event struct {
    Kind      string    `json:"kind"`
    Title     string    `json:"title"`
    Body      string    `json:"body"`
    Data      Data      `json:"data,omitempty"`
    CreatedAt time.Time `json:"created_at"`
}
