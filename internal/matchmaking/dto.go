// internal/matchmaking/dto.go
// Request/response shapes for the match API

package matchmaking

import (
    "time"

    "github.com/lumera-app/match-service/internal/users"
)

// JoinQueueRequest optionally overrides the user's stored preferences for
// this queue session.
type JoinQueueRequest struct {
    Filters *users.Preferences `json:"filters,omitempty"`
}

// QueueStatusValue is the queue membership state surfaced to the caller.
type QueueStatusValue string

const (
    QueueWaiting    QueueStatusValue = "WAITING"
    QueueLocked     QueueStatusValue = "LOCKED"
    QueueNotInQueue QueueStatusValue = "NOT_IN_QUEUE"
)

// QueueStatus answers "where am I in the queue".
type QueueStatus struct {
    Status               QueueStatusValue `json:"status"`
    Position             *int             `json:"position,omitempty"`
    EstimatedWaitSeconds *int             `json:"estimated_wait_seconds,omitempty"`
    JoinedAt             *time.Time       `json:"joined_at,omitempty"`
}

// MatchAttemptView is the caller-facing projection of an attempt. It never
// exposes the other user's block list or safety flags.
type MatchAttemptView struct {
    ID          string          `json:"id"`
    OtherUserID int64           `json:"other_user_id"`
    Score       float64         `json:"score"`
    Components  ComponentScores `json:"components"`
    State       AttemptState    `json:"state"`
    CreatedAt   time.Time       `json:"created_at"`
    ExpiresAt   time.Time       `json:"expires_at"`
    ChatRoomID  *string         `json:"chat_room_id,omitempty"`
}

func attemptView(a *MatchAttempt, viewerID int64) *MatchAttemptView {
    return &MatchAttemptView{
        ID:          a.ID,
        OtherUserID: a.OtherUser(viewerID),
        Score:       a.Score,
        Components:  a.Components,
        State:       a.State,
        CreatedAt:   a.CreatedAt,
        ExpiresAt:   a.ExpiresAt,
        ChatRoomID:  a.ChatRoomID,
    }
}

// CancelMatchRequest is the admin cancellation body.
type CancelMatchRequest struct {
    Reason string `json:"reason" validate:"required,min=3,max=200"`
}
