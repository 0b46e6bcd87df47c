package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Socket is the minimal transport surface the hub needs from a
// connection, so tests can substitute a fake without a real WebSocket.
type Socket interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// wsSocket adapts *websocket.Conn to Socket.
type wsSocket struct {
	conn *websocket.Conn
}

func (s wsSocket) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s wsSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// NewSocket wraps a coder/websocket connection for use with the hub.
func NewSocket(conn *websocket.Conn) Socket {
	return wsSocket{conn: conn}
}

// client holds one connected WebSocket client's registry state.
type client struct {
	id            string
	sessionID     string
	socket        Socket
	connectedAt   time.Time
	lastHeartbeat time.Time
	mu            sync.Mutex
}

func (c *client) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

func (c *client) heartbeatAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastHeartbeat)
}

// Hub is the process-wide WebSocket fan-out: a single lock guards the
// client registry and the session-room index together, and broadcasts
// snapshot room membership under that lock before sending without it —
// so a slow or blocked client write never stalls connect/disconnect.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*client
	sessions     map[string]map[string]bool // session-id -> set of client-ids
	log          *slog.Logger
	writeTimeout time.Duration
}

// New returns an empty Hub.
func New(log *slog.Logger, writeTimeout time.Duration) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*client),
		sessions:     make(map[string]map[string]bool),
		log:          log,
		writeTimeout: writeTimeout,
	}
}

// Connect registers a new client in sessionID's room and returns its
// assigned client id.
func (h *Hub) Connect(sessionID string, socket Socket) string {
	id := uuid.New().String()
	now := time.Now()
	c := &client{id: id, sessionID: sessionID, socket: socket, connectedAt: now, lastHeartbeat: now}

	h.mu.Lock()
	h.clients[id] = c
	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][id] = true
	h.mu.Unlock()

	// Notify the room's other members, not the connecting client itself.
	h.BroadcastSession(sessionID, Envelope{Type: MessageJoinSession, Timestamp: now, MessageID: uuid.New().String()}, id)
	return id
}

// Disconnect removes a client from the registry and its session room,
// closing its socket, then broadcasts LEAVE_SESSION to whoever remains in
// the room. Disconnecting does not affect the pipeline the session
// belongs to — a broadcast to an emptied room is simply a no-op.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, clientID)
	sessionID := c.sessionID
	if room, ok := h.sessions[sessionID]; ok {
		delete(room, clientID)
		if len(room) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()

	_ = c.socket.Close()
	h.BroadcastSession(sessionID, Envelope{Type: MessageLeaveSession, Timestamp: time.Now(), MessageID: uuid.New().String()})
}

// Send delivers an envelope to a single client by id. Failures are
// logged and treated as a disconnect, never surfaced as an error — per
// the hub's "all send failures are disconnects" policy.
func (h *Hub) Send(clientID string, env Envelope) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(c, env)
}

func (h *Hub) deliver(c *client, env Envelope) {
	if env.MessageID == "" {
		env.MessageID = uuid.New().String()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Warn("hub: failed to marshal envelope", "client_id", c.id, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := c.socket.Write(ctx, payload); err != nil {
		h.log.Warn("hub: send failed, treating as disconnect", "client_id", c.id, "error", err)
		h.Disconnect(c.id)
	}
}

// BroadcastSession sends env to every client in sessionID's room (or
// every connected client if sessionID is AllSessions), optionally
// skipping one client id (used by Connect to notify a room without
// echoing the join back to the client that just joined it). Room
// membership is snapshotted under the lock, then delivery happens
// without it.
func (h *Hub) BroadcastSession(sessionID string, env Envelope, exclude ...string) {
	env.SessionID = sessionID
	var excludeID string
	if len(exclude) > 0 {
		excludeID = exclude[0]
	}

	h.mu.RLock()
	var targets []*client
	if sessionID == AllSessions {
		targets = make([]*client, 0, len(h.clients))
		for _, c := range h.clients {
			if c.id == excludeID {
				continue
			}
			targets = append(targets, c)
		}
	} else {
		ids := h.sessions[sessionID]
		targets = make([]*client, 0, len(ids))
		for id := range ids {
			if id == excludeID {
				continue
			}
			if c, ok := h.clients[id]; ok {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, env)
	}
}

// HandleClient processes an inbound client frame. Only HEARTBEAT is
// normative: it updates last-heartbeat and echoes a heartbeat response.
// Anything else is ignored.
func (h *Hub) HandleClient(clientID string, msg ClientMessage) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if msg.Type != MessageHeartbeat {
		return
	}
	c.touchHeartbeat()
	h.deliver(c, Envelope{Type: MessageHeartbeat, SessionID: c.sessionID})
}

// CleanupStale disconnects every client whose last heartbeat is older
// than maxAge, returning the number removed.
func (h *Hub) CleanupStale(maxAge time.Duration) int {
	h.mu.RLock()
	stale := make([]string, 0)
	for id, c := range h.clients {
		if c.heartbeatAge() > maxAge {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.Disconnect(id)
	}
	return len(stale)
}

// RoomSize returns how many clients are currently in sessionID's room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// ActiveConnections returns the total number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
