package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/tickstream/internal/session"
	"github.com/nfrund/tickstream/internal/wire"
)

// fakeTransport records writes and lets tests feed inbound frames.
type fakeTransport struct {
	mu         sync.Mutex
	in         chan []byte
	writes     [][]byte
	writeErr   error
	closeCount int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 16)}
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-t.in:
		if !ok {
			return nil, session.ErrPeerClosed
		}
		return frame, nil
	}
}

func (t *fakeTransport) Write(_ context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.writes = append(t.writes, frame)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCount++
	return nil
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

func (t *fakeTransport) lastWrite() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.writes) == 0 {
		return nil
	}
	return t.writes[len(t.writes)-1]
}

func TestSend(t *testing.T) {
	tr := newFakeTransport()
	s := session.New(tr)

	require.NoError(t, s.Send("pong", map[string]string{"time": "now"}))

	var env wire.Envelope
	require.NoError(t, json.Unmarshal(tr.lastWrite(), &env))
	assert.Equal(t, "pong", env.Type)
	assert.JSONEq(t, `{"time":"now"}`, string(env.Payload))
}

func TestSendAfterClose(t *testing.T) {
	tr := newFakeTransport()
	s := session.New(tr)

	require.NoError(t, s.Close())
	err := s.Send("pong", nil)
	assert.ErrorIs(t, err, session.ErrTransportClosed)
	assert.Zero(t, tr.writeCount())
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	s := session.New(tr)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, tr.closeCount)
}

func TestTopicMembership(t *testing.T) {
	s := session.New(newFakeTransport())

	topic := `bars:{"resolution":"1","symbol":"AAPL"}`
	assert.False(t, s.Subscribed(topic))

	s.Subscribe(topic)
	assert.True(t, s.Subscribed(topic))
	assert.Equal(t, []string{topic}, s.Topics())

	s.Unsubscribe(topic)
	assert.False(t, s.Subscribed(topic))
	assert.Empty(t, s.Topics())
}

func TestStateBag(t *testing.T) {
	s := session.New(newFakeTransport())

	s.Set("cursor", 42)
	v, ok := s.Get("cursor")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	s.Delete("cursor")
	_, ok = s.Get("cursor")
	assert.False(t, ok)
}

func TestDisconnectHooksRunOnceInOrder(t *testing.T) {
	s := session.New(newFakeTransport())

	var order []int
	s.OnDisconnect(func() { order = append(order, 1) })
	s.OnDisconnect(func() { panic("hook failure is isolated") })
	s.OnDisconnect(func() { order = append(order, 3) })

	require.NoError(t, s.Close())
	assert.Equal(t, []int{1, 3}, order)

	// A second close must not re-run hooks.
	require.NoError(t, s.Close())
	assert.Equal(t, []int{1, 3}, order)
}

func TestCloseCancelsStateBagTasks(t *testing.T) {
	s := session.New(newFakeTransport())

	ctx, cancel := context.WithCancel(context.Background())
	s.Set("stream.cancel", context.CancelFunc(cancel))

	require.NoError(t, s.Close())

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected the stored task context to be cancelled on close")
	}
}
