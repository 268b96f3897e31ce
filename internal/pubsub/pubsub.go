// Package pubsub is the in-process bus between feed generators and the
// subscription routers. Feeds publish produced data points keyed by topic;
// a router's producer adapter subscribes and pipes each point into the
// router's bounded update queue.
package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to. For feed data
	// this is the canonical topic key, e.g. `bars:{"resolution":"1",...}`.
	Topic string
	// Payload contains the serialized data point.
	Payload []byte
	// Metadata can carry arbitrary key-value context (e.g. timestamps).
	Metadata map[string]string
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe starts listening on topic, processing messages with the
	// handler until ctx is cancelled. It returns once the subscription is
	// active; message processing runs in the background.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus combines both sides of the bus.
type Bus interface {
	Publisher
	Subscriber
}
