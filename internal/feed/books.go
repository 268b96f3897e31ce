package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/nfrund/tickstream/internal/pubsub"
)

const defaultBookDepth = 5

// BookFeed produces synthetic order book snapshots per active topic.
type BookFeed struct {
	bus      pubsub.Bus
	interval time.Duration
	topics   *topicSet
}

// NewBookFeed builds a book feed publishing on the given bus.
func NewBookFeed(bus pubsub.Bus, interval time.Duration) *BookFeed {
	if interval <= 0 {
		interval = time.Second
	}
	return &BookFeed{bus: bus, interval: interval, topics: newTopicSet()}
}

// CreateTopic starts snapshot production for the topic.
func (f *BookFeed) CreateTopic(topic string, emit func(data any)) error {
	var req BookRequest
	if err := topicParams(topic, &req); err != nil {
		return err
	}
	if req.Depth <= 0 {
		req.Depth = defaultBookDepth
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !f.topics.add(topic, cancel) {
		cancel()
		return nil
	}

	if err := pipe(ctx, f.bus, topic, emit); err != nil {
		f.topics.remove(topic)
		return err
	}

	go f.generate(ctx, topic, req)
	slog.Info("Book generator started", "topic", topic, "symbol", req.Symbol, "depth", req.Depth)
	return nil
}

// RemoveTopic stops production for the topic.
func (f *BookFeed) RemoveTopic(topic string) error {
	if f.topics.remove(topic) {
		slog.Info("Book generator stopped", "topic", topic)
	}
	return nil
}

// Close stops every active generator.
func (f *BookFeed) Close() error {
	f.topics.stopAll()
	return nil
}

func (f *BookFeed) generate(ctx context.Context, topic string, req BookRequest) {
	rng := rand.New(rand.NewSource(seedFor(req.Symbol)))
	mid := 50 + rng.Float64()*450

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			mid += (rng.Float64() - 0.5) * mid * 0.002
			snap := buildSnapshot(rng, req, mid, now)

			payload, err := json.Marshal(snap)
			if err != nil {
				slog.Error("Failed to marshal book snapshot", "topic", topic, "error", err)
				continue
			}
			if err := f.bus.Publish(ctx, pubsub.Message{Topic: topic, Payload: payload}); err != nil {
				slog.Error("Failed to publish book snapshot", "topic", topic, "error", err)
			}
		}
	}
}

func buildSnapshot(rng *rand.Rand, req BookRequest, mid float64, now time.Time) BookSnapshot {
	snap := BookSnapshot{
		Symbol: req.Symbol,
		Time:   now.UTC(),
		Bids:   make([]BookLevel, 0, req.Depth),
		Asks:   make([]BookLevel, 0, req.Depth),
	}
	tick := mid * 0.0005
	for i := 1; i <= req.Depth; i++ {
		snap.Bids = append(snap.Bids, BookLevel{
			Price: mid - tick*float64(i),
			Size:  rng.Float64() * 100,
		})
		snap.Asks = append(snap.Asks, BookLevel{
			Price: mid + tick*float64(i),
			Size:  rng.Float64() * 100,
		})
	}
	return snap
}
