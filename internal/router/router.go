// Package router implements the subscribe/unsubscribe/update operation
// family for one route. Each router owns the reference counts for its topics
// and the bounded queue that carries producer updates to the fan-out engine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/tickstream/internal/dispatch"
	"github.com/nfrund/tickstream/internal/session"
	"github.com/nfrund/tickstream/internal/topickey"
)

// DefaultQueueCapacity bounds the update queue when no explicit capacity is
// configured. The bound is what gives the pipeline backpressure: a runaway
// producer drops updates instead of growing memory.
const DefaultQueueCapacity = 1000

// Producer is the external service a router drives. CreateTopic must begin
// producing updates for the topic, invoking emit for every new data point;
// RemoveTopic must stop producing and release resources. emit never blocks.
type Producer interface {
	CreateTopic(topic string, emit func(data any)) error
	RemoveTopic(topic string) error
}

// Update is one produced data point, consumed exactly once by the fan-out
// engine and never persisted.
type Update struct {
	Topic   string
	Payload any
}

// Ack is the reply to subscribe and unsubscribe requests. Topic carries the
// resolved canonical topic key so clients can correlate pushed updates.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Topic   string `json:"topic"`
}

// UpdateMessage is the payload of a "<route>.update" push.
type UpdateMessage struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Attachable is the route-agnostic view the lifecycle manager needs.
type Attachable interface {
	Route() string
	Register(reg *dispatch.Registry) error
	Updates() <-chan Update
	Operations() []string
}

// Router binds one (request, data) type pair to one route name.
type Router[Req, Data any] struct {
	route    string
	producer Producer
	updates  chan Update

	mu   sync.Mutex
	refs map[string]int
}

// Option configures a router.
type Option func(*config)

type config struct {
	queueCapacity int
}

// WithQueueCapacity overrides the update queue's bound.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCapacity = n
		}
	}
}

// New constructs a router for one route. The producer is required; routers
// validate their collaborator at construction time, not at first use.
func New[Req, Data any](route string, producer Producer, opts ...Option) (*Router[Req, Data], error) {
	if route == "" {
		return nil, errors.New("router route cannot be empty")
	}
	if producer == nil {
		return nil, fmt.Errorf("router %q requires a producer", route)
	}

	cfg := config{queueCapacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Router[Req, Data]{
		route:    route,
		producer: producer,
		updates:  make(chan Update, cfg.queueCapacity),
		refs:     make(map[string]int),
	}, nil
}

// Route returns the router's route name.
func (r *Router[Req, Data]) Route() string { return r.route }

// Operations returns the envelope types this router registers.
func (r *Router[Req, Data]) Operations() []string {
	return []string{r.route + ".subscribe", r.route + ".unsubscribe", r.route + ".update"}
}

// Updates exposes the bounded queue for the fan-out engine to drain.
func (r *Router[Req, Data]) Updates() <-chan Update { return r.updates }

// Register wires the router's three operations into the registry.
// The update operation is a typed echo for outbound payloads; clients do not
// invoke it in practice and it performs no side effects.
func (r *Router[Req, Data]) Register(reg *dispatch.Registry) error {
	ops := []dispatch.Operation{
		dispatch.NewOperation(r.route+".subscribe", dispatch.WithSession(r.subscribe)),
		dispatch.NewOperation(r.route+".unsubscribe", dispatch.WithSession(r.unsubscribe)),
		dispatch.NewOperation(r.route+".update", dispatch.Typed(r.echoUpdate), dispatch.WithoutReply()),
	}
	for _, op := range ops {
		if err := reg.Register(op); err != nil {
			return fmt.Errorf("register route %q: %w", r.route, err)
		}
	}
	return nil
}

// topicFor derives the canonical topic key for a request. Subscribe and
// unsubscribe must agree byte-for-byte on this derivation; structurally-equal
// requests always map to the same topic.
func (r *Router[Req, Data]) topicFor(req Req) (string, error) {
	key, err := topickey.Canonical(req)
	if err != nil {
		return "", err
	}
	return r.route + ":" + key, nil
}

func (r *Router[Req, Data]) subscribe(ctx context.Context, sess *session.Session, req Req) (any, error) {
	topic, err := r.topicFor(req)
	if err != nil {
		return nil, err
	}

	sess.Subscribe(topic)

	// The lock is held across CreateTopic so a concurrent subscriber to the
	// same topic cannot observe a counted-but-unproduced topic.
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs[topic] == 0 {
		if err := r.producer.CreateTopic(topic, r.emitFor(topic)); err != nil {
			sess.Unsubscribe(topic)
			return nil, fmt.Errorf("create topic %q: %w", topic, err)
		}
		slog.Info("Topic created", "route", r.route, "topic", topic)
	}
	r.refs[topic]++

	return Ack{Status: "ok", Message: "Subscribed", Topic: topic}, nil
}

func (r *Router[Req, Data]) unsubscribe(ctx context.Context, sess *session.Session, req Req) (any, error) {
	topic, err := r.topicFor(req)
	if err != nil {
		return nil, err
	}

	sess.Unsubscribe(topic)

	r.mu.Lock()
	defer r.mu.Unlock()

	count, exists := r.refs[topic]
	if !exists {
		// Unsubscribe without a matching subscribe. The count must never go
		// negative, so this is a logged no-op.
		slog.Warn("Unsubscribe for inactive topic", "route", r.route, "topic", topic)
		return Ack{Status: "ok", Message: "Unsubscribed", Topic: topic}, nil
	}

	count--
	if count <= 0 {
		delete(r.refs, topic)
		if err := r.producer.RemoveTopic(topic); err != nil {
			slog.Error("Failed to remove topic", "route", r.route, "topic", topic, "error", err)
		} else {
			slog.Info("Topic removed", "route", r.route, "topic", topic)
		}
	} else {
		r.refs[topic] = count
	}

	return Ack{Status: "ok", Message: "Unsubscribed", Topic: topic}, nil
}

// echoUpdate returns its input unchanged. It exists so the update payload
// shape is registered alongside subscribe/unsubscribe for catalog tooling.
func (r *Router[Req, Data]) echoUpdate(ctx context.Context, msg UpdateMessage) (any, error) {
	return msg, nil
}

// emitFor builds the producer callback for one topic. The callback enqueues
// without blocking; when the queue is full the newest update is dropped and
// logged, which caps memory when a producer outruns the fan-out engine.
func (r *Router[Req, Data]) emitFor(topic string) func(data any) {
	return func(data any) {
		select {
		case r.updates <- Update{Topic: topic, Payload: data}:
		default:
			slog.Warn("Update queue full, dropping update", "route", r.route, "topic", topic)
		}
	}
}

// Refcount reports the current subscriber count for a topic. Used by tests
// and diagnostics; fan-out filtering reads session topic sets, not this map.
func (r *Router[Req, Data]) Refcount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[topic]
}
