// Package websocket provides the real-time transport for queue updates. It
// implements a hub-and-spoke pattern where sessions are joined to named rooms
// and events are fanned out to every session in a room.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event is the envelope for every server-to-client message.
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session represents a single connected transport session.
type Session struct {
	ID   string
	Send chan []byte
	conn Conn
}

// MessageHandler consumes inbound client messages. Implementations run on the
// session's read goroutine; anything slow must be dispatched elsewhere.
type MessageHandler interface {
	HandleMessage(s *Session, data []byte)
}

// Hub tracks sessions and their room memberships. All operations are
// thread-safe via sync.RWMutex. Delivery is fire-and-forget: a session whose
// send buffer is full misses the event and resynchronizes on reconnect.
type Hub struct {
	mu           sync.RWMutex
	rooms        map[string]map[*Session]struct{}
	memberships  map[*Session]map[string]struct{}
	sessions     map[*Session]struct{}
	onDisconnect []func(*Session)
}

// NewHub creates a new Hub ready to manage sessions.
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Session]struct{}),
		memberships: make(map[*Session]map[string]struct{}),
		sessions:    make(map[*Session]struct{}),
	}
}

// OnDisconnect registers a callback invoked whenever a session is
// unregistered. Callbacks must be registered before the hub starts serving.
func (h *Hub) OnDisconnect(fn func(*Session)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = append(h.onDisconnect, fn)
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s] = struct{}{}
	h.memberships[s] = make(map[string]struct{})
}

// Unregister removes a session from the hub and every room, closes its Send
// channel, and fires disconnect callbacks.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}

	for room := range h.memberships[s] {
		h.dropMembership(s, room)
	}
	delete(h.memberships, s)
	delete(h.sessions, s)
	close(s.Send)
	callbacks := h.onDisconnect
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(s)
	}
}

// Join adds a session to a room. Joining the same room twice is a no-op.
func (h *Hub) Join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]struct{})
	}
	h.rooms[room][s] = struct{}{}
	h.memberships[s][room] = struct{}{}
}

// Leave removes a session from a room.
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropMembership(s, room)
	if m, ok := h.memberships[s]; ok {
		delete(m, room)
	}
}

// LeaveAll removes a session from every room it belongs to without
// disconnecting it.
func (h *Hub) LeaveAll(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.memberships[s] {
		h.dropMembership(s, room)
	}
	if _, ok := h.memberships[s]; ok {
		h.memberships[s] = make(map[string]struct{})
	}
}

// dropMembership removes s from a room's member set. Caller holds h.mu.
func (h *Hub) dropMembership(s *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit sends an event to every session in the given room. Delivery is
// at-most-once per session: full buffers are skipped, never blocked on.
func (h *Hub) Emit(room, event string, payload interface{}) {
	data, err := json.Marshal(Event{Event: event, Data: payload, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[room] {
		select {
		case s.Send <- data:
		default:
			// Session buffer full; skip to avoid blocking.
		}
	}
}

// EmitTo sends an event to a single session.
func (h *Hub) EmitTo(s *Session, event string, payload interface{}) {
	data, err := json.Marshal(Event{Event: event, Data: payload, Timestamp: time.Now()})
	if err != nil {
		return
	}

	select {
	case s.Send <- data:
	default:
	}
}

// SessionCount returns the total number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomCount returns the number of sessions in a specific room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms a session currently belongs to.
func (h *Hub) Rooms(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.memberships[s]))
	for room := range h.memberships[s] {
		rooms = append(rooms, room)
	}
	return rooms
}

// ---------------------------------------------------------------------------
// Handler: Echo HTTP handler for WebSocket upgrades
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades and message routing.
type Handler struct {
	hub     *Hub
	msgs    MessageHandler
	logger  zerolog.Logger
	sendCap int
}

// NewHandler creates a handler bound to the given Hub. Inbound messages are
// passed to msgs.
func NewHandler(hub *Hub, msgs MessageHandler, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, msgs: msgs, logger: logger, sendCap: 256}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket, registers the
// session with the hub, and starts read/write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s := &Session{
		ID:   uuid.New().String(),
		Send: make(chan []byte, h.sendCap),
		conn: &gorillaConnAdapter{ws},
	}

	h.hub.Register(s)
	h.logger.Debug().Str("session_id", s.ID).Msg("session connected")

	go h.writePump(s)
	go h.readPump(s)

	return nil
}

// readPump reads messages from the connection and hands them to the message
// handler. It unregisters the session when the connection drops.
func (h *Handler) readPump(s *Session) {
	defer func() {
		h.hub.Unregister(s)
		s.conn.Close()
		h.logger.Debug().Str("session_id", s.ID).Msg("session disconnected")
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		h.msgs.HandleMessage(s, message)
	}
}

// writePump writes messages from the Send channel to the connection.
func (h *Handler) writePump(s *Session) {
	defer s.conn.Close()

	for message := range s.Send {
		if err := s.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}

// NewTestSession returns a registered session with a buffered send channel,
// for use by packages that exercise the hub without a live connection.
func NewTestSession(h *Hub) *Session {
	s := &Session{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 16),
	}
	h.Register(s)
	return s
}
