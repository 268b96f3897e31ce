package feed

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"

	"github.com/nfrund/tickstream/internal/pubsub"
)

// BarFeed produces synthetic OHLCV bars, one generator per active topic.
type BarFeed struct {
	bus      pubsub.Bus
	interval time.Duration
	topics   *topicSet
}

// NewBarFeed builds a bar feed publishing on the given bus. interval is the
// wall-clock spacing between produced bars.
func NewBarFeed(bus pubsub.Bus, interval time.Duration) *BarFeed {
	if interval <= 0 {
		interval = time.Second
	}
	return &BarFeed{bus: bus, interval: interval, topics: newTopicSet()}
}

// CreateTopic starts producing bars for the topic and wires produced points
// into emit. It is called by the router when the first subscriber arrives.
func (f *BarFeed) CreateTopic(topic string, emit func(data any)) error {
	var req BarRequest
	if err := topicParams(topic, &req); err != nil {
		return err
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
	slog.Info("Bar generator started", "topic", topic, "symbol", req.Symbol, "resolution", req.Resolution)
	return nil
}

// RemoveTopic stops the generator and the bus subscription for the topic.
// It is called by the router when the last subscriber leaves.
func (f *BarFeed) RemoveTopic(topic string) error {
	if f.topics.remove(topic) {
		slog.Info("Bar generator stopped", "topic", topic)
	}
	return nil
}

// Close stops every active generator.
func (f *BarFeed) Close() error {
	f.topics.stopAll()
	return nil
}

// generate publishes a random-walk bar per interval until ctx is cancelled.
func (f *BarFeed) generate(ctx context.Context, topic string, req BarRequest) {
	rng := rand.New(rand.NewSource(seedFor(req.Symbol)))
	price := 50 + rng.Float64()*450

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			bar, next := nextBar(rng, req, price, now)
			price = next

			payload, err := json.Marshal(bar)
			if err != nil {
				slog.Error("Failed to marshal bar", "topic", topic, "error", err)
				continue
			}
			msg := pubsub.Message{
				Topic:   topic,
				Payload: payload,
				Metadata: map[string]string{
					"produced_at": now.UTC().Format(time.RFC3339Nano),
				},
			}
			if err := f.bus.Publish(ctx, msg); err != nil {
				slog.Error("Failed to publish bar", "topic", topic, "error", err)
			}
		}
	}
}

func nextBar(rng *rand.Rand, req BarRequest, open float64, now time.Time) (Bar, float64) {
	drift := (rng.Float64() - 0.5) * open * 0.01
	close := open + drift
	high := max(open, close) * (1 + rng.Float64()*0.002)
	low := min(open, close) * (1 - rng.Float64()*0.002)

	bar := Bar{
		Symbol:     req.Symbol,
		Resolution: req.Resolution,
		Time:       now.UTC(),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     int64(rng.Intn(10_000) + 100),
	}
	return bar, close
}

func seedFor(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}
