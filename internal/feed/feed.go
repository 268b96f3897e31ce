// Package feed hosts the data-producing services the subscription routers
// drive. Each feed implements the router's producer contract: CreateTopic
// starts a generator goroutine publishing data points onto the bus and a
// bus subscription piping them into the router's queue; RemoveTopic tears
// both down.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nfrund/tickstream/internal/pubsub"
)

// topicParams recovers the request parameters embedded in a canonical topic
// key of the form "<route>:<canonical-json>".
func topicParams(topic string, out any) error {
	idx := strings.Index(topic, ":")
	if idx < 0 {
		return fmt.Errorf("topic %q has no parameter section", topic)
	}
	if err := json.Unmarshal([]byte(topic[idx+1:]), out); err != nil {
		return fmt.Errorf("parse topic %q params: %w", topic, err)
	}
	return nil
}

// topicSet tracks the per-topic cancel functions shared by all feeds.
type topicSet struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newTopicSet() *topicSet {
	return &topicSet{cancels: make(map[string]context.CancelFunc)}
}

// add registers a topic's cancel function. Returns false if the topic is
// already active.
func (t *topicSet) add(topic string, cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.cancels[topic]; exists {
		return false
	}
	t.cancels[topic] = cancel
	return true
}

// remove cancels and forgets a topic. Returns false for unknown topics.
func (t *topicSet) remove(topic string) bool {
	t.mu.Lock()
	cancel, ok := t.cancels[topic]
	delete(t.cancels, topic)
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// stopAll cancels every active topic.
func (t *topicSet) stopAll() {
	t.mu.Lock()
	cancels := t.cancels
	t.cancels = make(map[string]context.CancelFunc)
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// pipe subscribes to the bus topic and forwards every payload to emit as
// raw JSON. The subscription ends when ctx is cancelled.
func pipe(ctx context.Context, bus pubsub.Subscriber, topic string, emit func(data any)) error {
	return bus.Subscribe(ctx, topic, func(_ context.Context, msg pubsub.Message) error {
		emit(json.RawMessage(msg.Payload))
		return nil
	})
}
