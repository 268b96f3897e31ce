package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/tickstream/internal/dispatch"
	"github.com/nfrund/tickstream/internal/router"
	"github.com/nfrund/tickstream/internal/session"
)

type barRequest struct {
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
}

// fakeProducer records topic lifecycle calls and keeps the emit callbacks so
// tests can push updates by hand.
type fakeProducer struct {
	mu        sync.Mutex
	created   []string
	removed   []string
	emits     map[string]func(any)
	createErr error
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{emits: make(map[string]func(any))}
}

func (p *fakeProducer) CreateTopic(topic string, emit func(any)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	p.created = append(p.created, topic)
	p.emits[topic] = emit
	return nil
}

func (p *fakeProducer) RemoveTopic(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, topic)
	delete(p.emits, topic)
	return nil
}

func (p *fakeProducer) emit(topic string, data any) {
	p.mu.Lock()
	fn := p.emits[topic]
	p.mu.Unlock()
	fn(data)
}

type nullTransport struct{}

func (nullTransport) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (nullTransport) Write(_ context.Context, _ []byte) error { return nil }
func (nullTransport) Close() error                            { return nil }

const aaplTopic = `bars:{"resolution":"1","symbol":"AAPL"}`

func newBarRouter(t *testing.T, producer *fakeProducer, opts ...router.Option) *router.Router[barRequest, any] {
	t.Helper()
	r, err := router.New[barRequest, any]("bars", producer, opts...)
	require.NoError(t, err)
	return r
}

// invoke drives a registered operation the way the dispatch loop would.
func invoke(t *testing.T, reg *dispatch.Registry, sess *session.Session, name, payload string) (any, error) {
	t.Helper()
	op, ok := reg.Get(name)
	require.True(t, ok, "operation %s not registered", name)
	return op.Handler.Invoke(context.Background(), sess, []byte(payload))
}

func TestNewValidatesInputs(t *testing.T) {
	_, err := router.New[barRequest, any]("", newFakeProducer())
	assert.Error(t, err)

	_, err = router.New[barRequest, any]("bars", nil)
	assert.Error(t, err)
}

func TestRegisterWiresOperations(t *testing.T) {
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, newFakeProducer())

	require.NoError(t, r.Register(reg))
	assert.Equal(t, []string{"bars.subscribe", "bars.unsubscribe", "bars.update"}, reg.Names())
	assert.Equal(t, reg.Names(), r.Operations())
}

func TestSubscribeCreatesTopicOnce(t *testing.T) {
	producer := newFakeProducer()
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, producer)
	require.NoError(t, r.Register(reg))

	first := session.New(nullTransport{})
	second := session.New(nullTransport{})

	res, err := invoke(t, reg, first, "bars.subscribe", `{"symbol":"AAPL","resolution":"1"}`)
	require.NoError(t, err)
	ack, ok := res.(router.Ack)
	require.True(t, ok)
	assert.Equal(t, "ok", ack.Status)
	assert.Equal(t, aaplTopic, ack.Topic)

	// Field order must not matter: both sessions land on the same topic.
	_, err = invoke(t, reg, second, "bars.subscribe", `{"resolution":"1","symbol":"AAPL"}`)
	require.NoError(t, err)

	assert.Equal(t, []string{aaplTopic}, producer.created)
	assert.Equal(t, 2, r.Refcount(aaplTopic))
	assert.True(t, first.Subscribed(aaplTopic))
	assert.True(t, second.Subscribed(aaplTopic))
}

func TestUnsubscribeRemovesTopicAtZero(t *testing.T) {
	producer := newFakeProducer()
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, producer)
	require.NoError(t, r.Register(reg))

	first := session.New(nullTransport{})
	second := session.New(nullTransport{})
	payload := `{"symbol":"AAPL","resolution":"1"}`

	_, err := invoke(t, reg, first, "bars.subscribe", payload)
	require.NoError(t, err)
	_, err = invoke(t, reg, second, "bars.subscribe", payload)
	require.NoError(t, err)

	_, err = invoke(t, reg, first, "bars.unsubscribe", payload)
	require.NoError(t, err)
	assert.Empty(t, producer.removed, "topic must survive while a subscriber remains")
	assert.Equal(t, 1, r.Refcount(aaplTopic))
	assert.False(t, first.Subscribed(aaplTopic))

	_, err = invoke(t, reg, second, "bars.unsubscribe", payload)
	require.NoError(t, err)
	assert.Equal(t, []string{aaplTopic}, producer.removed)
	assert.Zero(t, r.Refcount(aaplTopic))
}

func TestUnsubscribeWithoutSubscribeIsANoOp(t *testing.T) {
	producer := newFakeProducer()
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, producer)
	require.NoError(t, r.Register(reg))

	sess := session.New(nullTransport{})
	res, err := invoke(t, reg, sess, "bars.unsubscribe", `{"symbol":"AAPL","resolution":"1"}`)
	require.NoError(t, err)

	ack, ok := res.(router.Ack)
	require.True(t, ok)
	assert.Equal(t, "ok", ack.Status)
	assert.Empty(t, producer.removed)
	assert.Zero(t, r.Refcount(aaplTopic))
}

func TestSubscribeRollsBackOnProducerFailure(t *testing.T) {
	producer := newFakeProducer()
	producer.createErr = errors.New("feed unavailable")
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, producer)
	require.NoError(t, r.Register(reg))

	sess := session.New(nullTransport{})
	_, err := invoke(t, reg, sess, "bars.subscribe", `{"symbol":"AAPL","resolution":"1"}`)
	require.Error(t, err)

	assert.Zero(t, r.Refcount(aaplTopic))
	assert.False(t, sess.Subscribed(aaplTopic))
}

func TestUpdatesFlowThroughQueue(t *testing.T) {
	producer := newFakeProducer()
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, producer)
	require.NoError(t, r.Register(reg))

	sess := session.New(nullTransport{})
	_, err := invoke(t, reg, sess, "bars.subscribe", `{"symbol":"AAPL","resolution":"1"}`)
	require.NoError(t, err)

	producer.emit(aaplTopic, "tick-1")
	producer.emit(aaplTopic, "tick-2")

	u := <-r.Updates()
	assert.Equal(t, aaplTopic, u.Topic)
	assert.Equal(t, "tick-1", u.Payload)
	u = <-r.Updates()
	assert.Equal(t, "tick-2", u.Payload)
}

func TestFullQueueDropsNewestUpdate(t *testing.T) {
	producer := newFakeProducer()
	reg := dispatch.NewRegistry()
	r := newBarRouter(t, producer, router.WithQueueCapacity(1))
	require.NoError(t, r.Register(reg))

	sess := session.New(nullTransport{})
	_, err := invoke(t, reg, sess, "bars.subscribe", `{"symbol":"AAPL","resolution":"1"}`)
	require.NoError(t, err)

	// The second emit must not block even though nothing drains the queue.
	producer.emit(aaplTopic, "kept")
	producer.emit(aaplTopic, "dropped")

	u := <-r.Updates()
	assert.Equal(t, "kept", u.Payload)
	select {
	case u := <-r.Updates():
		t.Fatalf("expected the overflow update to be dropped, got %v", u.Payload)
	default:
	}
}
