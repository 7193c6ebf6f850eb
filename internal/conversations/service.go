// internal/conversations/service.go
// Chat-room materialization for mutually-accepted matches. CreateRoom is
// idempotent on the user pair: repeated calls return the same room.

package conversations

import (
    "context"
    "database/sql"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/jmoiron/sqlx"
)

// Service creates and looks up direct conversations.
type Service interface {
    CreateRoom(ctx context.Context, user1ID, user2ID int64) (string, error)
    GetRoom(ctx context.Context, user1ID, user2ID int64) (string, error)
}

// Conversation is a direct chat room between two users.
type Conversation struct {
    ID        string    `json:"id" db:"id"`
    User1ID   int64     `json:"user1_id" db:"user1_id"`
    User2ID   int64     `json:"user2_id" db:"user2_id"`
    CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// orderPair normalizes the pair so (a, b) and (b, a) address the same room.
func orderPair(a, b int64) (int64, int64) {
    if a > b {
        return b, a
    }
    return a, b
}

type postgresService struct {
    db *sqlx.DB
}

// NewPostgresService creates the production implementation.
func NewPostgresService(db *sqlx.DB) Service {
    return &postgresService{db: db}
}

func (s *postgresService) CreateRoom(ctx context.Context, user1ID, user2ID int64) (string, error) {
    lo, hi := orderPair(user1ID, user2ID)

    // Insert-or-return in one statement; the unique (user1_id, user2_id)
    // constraint makes concurrent calls converge on one row.
    query := `
        INSERT INTO conversations (id, user1_id, user2_id, created_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (user1_id, user2_id)
        DO UPDATE SET user1_id = conversations.user1_id
        RETURNING id`

    var roomID string
    err := s.db.QueryRowContext(ctx, query, uuid.NewString(), lo, hi).Scan(&roomID)
    if err != nil {
        return "", fmt.Errorf("failed to create conversation: %w", err)
    }
    return roomID, nil
}

func (s *postgresService) GetRoom(ctx context.Context, user1ID, user2ID int64) (string, error) {
    lo, hi := orderPair(user1ID, user2ID)

    var roomID string
    err := s.db.GetContext(ctx, &roomID, `
        SELECT id FROM conversations
        WHERE user1_id = $1 AND user2_id = $2`, lo, hi)
    if err == sql.ErrNoRows {
        return "", nil
    }
    if err != nil {
        return "", fmt.Errorf("failed to get conversation: %w", err)
    }
    return roomID, nil
}

type MemoryService struct {
    mu    sync.Mutex
    rooms map[[2]int64]string

    // FailCreates makes the next N CreateRoom calls fail; used to exercise
    // materialization retries in tests.
    FailCreates int
}

// NewMemoryService backs unit tests.
func NewMemoryService() *MemoryService {
    return &MemoryService{rooms: make(map[[2]int64]string)}
}

func (s *MemoryService) CreateRoom(ctx context.Context, user1ID, user2ID int64) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.FailCreates > 0 {
        s.FailCreates--
        return "", fmt.Errorf("conversation backend unavailable")
    }
    lo, hi := orderPair(user1ID, user2ID)
    key := [2]int64{lo, hi}
    if id, ok := s.rooms[key]; ok {
        return id, nil
    }
    id := uuid.NewString()
    s.rooms[key] = id
    return id, nil
}

func (s *MemoryService) GetRoom(ctx context.Context, user1ID, user2ID int64) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    lo, hi := orderPair(user1ID, user2ID)
    return s.rooms[[2]int64{lo, hi}], nil
}
