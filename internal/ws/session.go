package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agency-chat-service/internal/models"
)

// Conn is the subset of *websocket.Conn the chat core writes to. Tests
// substitute a fake.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Session is one authenticated live connection. It is owned by the Registry
// from Register until Unregister.
type Session struct {
	ConnID      string
	Identity    models.Identity
	ConnectedAt time.Time
	LastSeen    time.Time

	conn Conn
	mu   sync.Mutex
}

// NewSession wraps a transport connection.
func NewSession(conn Conn, identity models.Identity) *Session {
	now := time.Now()
	return &Session{
		ConnID:      newConnID(),
		Identity:    identity,
		ConnectedAt: now,
		LastSeen:    now,
		conn:        conn,
	}
}

// Send pushes one event over the transport. Writes are serialized; delivery
// is fire-and-forget and the caller decides what a failure means.
func (s *Session) Send(event models.ServerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// SendError pushes an error envelope; failures are ignored.
func (s *Session) SendError(message string) {
	_ = s.Send(models.ErrorEvent(message))
}

// Touch refreshes the last-seen timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastSeen = time.Now()
	s.mu.Unlock()
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.conn.Close()
}
