// internal/notify/hub.go
// WebSocket hub streaming match lifecycle events to connected users.

package notify

import (
    "log"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "github.com/lumera-app/match-service/internal/common/utils"
)

const (
    writeWait      = 10 * time.Second
    pongWait       = 60 * time.Second
    pingPeriod     = 54 * time.Second
    clientBuffer   = 16
    maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
    ReadBufferSize:  1024,
    WriteBufferSize: 1024,
    CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
    userID int64
    conn   *websocket.Conn
    send   chan Event
}

// Hub tracks connected clients per user.
type Hub struct {
    mu      sync.RWMutex
    clients map[int64]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
    return &Hub{clients: make(map[int64]map[*client]struct{})}
}

// HandleWS upgrades the connection for the authenticated user and starts
// the read/write pumps. Registered on GET /ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
    userID, ok := r.Context().Value("userID").(int64)
    if !ok {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
        return
    }

    c := &client{userID: userID, conn: conn, send: make(chan Event, clientBuffer)}
    h.register(c)

    go c.writePump()
    go func() {
        defer h.unregister(c)
        c.readPump()
    }()
}

// Publish delivers an event to every connection of the user. Slow clients
// are dropped rather than blocking the caller.
func (h *Hub) Publish(userID int64, event Event) {
    h.mu.RLock()
    defer h.mu.RUnlock()
    for c := range h.clients[userID] {
        select {
        case c.send <- event:
        default:
            log.Printf("Dropping event for slow client of user %d", userID)
        }
    }
}

func (h *Hub) register(c *client) {
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.clients[c.userID] == nil {
        h.clients[c.userID] = make(map[*client]struct{})
    }
    h.clients[c.userID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
    h.mu.Lock()
    defer h.mu.Unlock()
    if conns, ok := h.clients[c.userID]; ok {
        if _, ok := conns[c]; ok {
            delete(conns, c)
            close(c.send)
            if len(conns) == 0 {
                delete(h.clients, c.userID)
            }
        }
    }
}

// readPump discards inbound frames; the socket is one-directional but we
// still need the read loop for pong handling and close detection.
func (c *client) readPump() {
    defer c.conn.Close()
    c.conn.SetReadLimit(maxMessageSize)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })
    for {
        if _, _, err := c.conn.ReadMessage(); err != nil {
            return
        }
    }
}

func (c *client) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        c.conn.Close()
    }()
    for {
        select {
        case event, ok := <-c.send:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                c.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }
            if err := c.conn.WriteJSON(event); err != nil {
                return
            }
        case <-ticker.C:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}
