// Package session owns the server side of one long-lived duplex connection:
// its transport, its subscribed-topic set, a free-form state bag mutated only
// by handlers running on behalf of the connection, and the disconnect hooks
// that run when the session ends.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/tickstream/internal/wire"
)

// ErrTransportClosed is returned by Send once the session has been closed.
var ErrTransportClosed = errors.New("session transport is closed")

// ErrPeerClosed is returned by Transport.Read when the peer closed the
// connection cleanly. The dispatch loop treats it as a normal close.
var ErrPeerClosed = errors.New("peer closed the connection")

// Transport abstracts the physical duplex channel. The production
// implementation wraps a WebSocket connection; tests use in-memory fakes.
type Transport interface {
	// Read blocks until the next inbound frame or ctx expiry.
	Read(ctx context.Context) ([]byte, error)
	// Write sends a single text frame.
	Write(ctx context.Context, frame []byte) error
	// Close tears the channel down. Must be safe to call more than once.
	Close() error
}

const writeTimeout = 10 * time.Second

// Session is one live connection. All methods are safe for concurrent use;
// writes to the transport are serialized.
type Session struct {
	id        string
	transport Transport

	mu      sync.RWMutex
	topics  map[string]struct{}
	state   map[string]any
	onClose []func()
	closed  bool

	writeMu sync.Mutex
}

// New wraps a transport in a fresh session with a generated id.
func New(t Transport) *Session {
	return &Session{
		id:        uuid.New().String(),
		transport: t,
		topics:    make(map[string]struct{}),
		state:     make(map[string]any),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Read blocks until the next inbound frame arrives or ctx expires. Only the
// session's dispatch loop should call Read; inbound frames are processed
// strictly in arrival order.
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	return s.transport.Read(ctx)
}

// Send serializes and writes a single envelope. It fails with
// ErrTransportClosed after Close, and with the transport's error when the
// underlying write fails.
func (s *Session) Send(msgType string, payload any) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrTransportClosed
	}

	frame, err := wire.Encode(msgType, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.transport.Write(ctx, frame)
}

// SendEnvelope writes an already-built envelope, e.g. an error reply.
func (s *Session) SendEnvelope(env wire.Envelope) error {
	return s.Send(env.Type, env.Payload)
}

// Subscribe records topic membership on this session. Membership here is
// authoritative for fan-out filtering.
func (s *Session) Subscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic] = struct{}{}
}

// Unsubscribe removes topic membership.
func (s *Session) Unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, topic)
}

// Subscribed reports whether this session is subscribed to topic.
func (s *Session) Subscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topics[topic]
	return ok
}

// Topics returns a copy of the session's subscribed topic set.
func (s *Session) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Set stores an arbitrary value in the session's state bag.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
}

// Get reads a value from the state bag.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Delete removes a value from the state bag.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, key)
}

// OnDisconnect registers a hook to run when the session ends. Hooks run
// exactly once, in registration order; a panicking hook is logged and does
// not prevent later hooks from running.
func (s *Session) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Close terminates the session: connection-scoped tasks stored in the state
// bag are cancelled first, then disconnect hooks run in order, then the
// transport is closed. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hooks := s.onClose
	s.onClose = nil
	state := s.state
	s.state = make(map[string]any)
	s.mu.Unlock()

	for key, v := range state {
		if cancel, ok := v.(context.CancelFunc); ok {
			slog.Debug("Cancelling session task", "sessionID", s.id, "key", key)
			cancel()
		}
	}

	for _, fn := range hooks {
		s.runHook(fn)
	}

	return s.transport.Close()
}

func (s *Session) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Disconnect hook panicked", "sessionID", s.id, "panic", r)
		}
	}()
	fn()
}
