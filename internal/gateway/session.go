// Package gateway holds the WebSocket surface of the server: per-connection
// sessions, the subscription registry, the notification router, and the
// command handler that ties them to the permission and storage layers.
package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// Session is one identified gateway connection's sending side. Events and
// acknowledgements are queued on a buffered sink; a full or closed sink never
// blocks the sender.
type Session struct {
	id   uuid.UUID
	user uuid.UUID

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

// NewSession creates a session for userID with a sink buffer of the given
// size.
func NewSession(userID uuid.UUID, buffer int) *Session {
	if buffer < 1 {
		buffer = 1
	}
	return &Session{
		id:   uuid.New(),
		user: userID,
		out:  make(chan []byte, buffer),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// UserID returns the user this session authenticated as.
func (s *Session) UserID() uuid.UUID { return s.user }

// Out is the sink drained by the connection's write pump.
func (s *Session) Out() <-chan []byte { return s.out }

// TrySend queues frame without blocking. It reports false when the frame was
// dropped because the sink is full or the session is closed.
func (s *Session) TrySend(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

// Close shuts the sink. Idempotent; frames already queued can still be
// drained.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
