// Package fanout delivers produced updates to every session currently
// subscribed to the update's topic. One engine runs per router for the
// lifetime of the process; a single connection's departure never stops it.
package fanout

import (
	"context"
	"log/slog"

	"github.com/nfrund/tickstream/internal/router"
	"github.com/nfrund/tickstream/internal/session"
)

// Roster is the view of live sessions the engine needs.
type Roster interface {
	Snapshot() []*session.Session
}

// Engine drains one router's update queue and broadcasts matching updates.
type Engine struct {
	route   string
	updates <-chan router.Update
	roster  Roster
}

// New builds a fan-out engine for one route.
func New(route string, updates <-chan router.Update, roster Roster) *Engine {
	return &Engine{route: route, updates: updates, roster: roster}
}

// Run blocks, delivering updates until ctx is cancelled. It is meant to run
// on its own goroutine, started by the lifecycle manager.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Fan-out engine started", "route", e.route)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Fan-out engine stopped", "route", e.route)
			return
		case upd := <-e.updates:
			e.deliver(upd)
		}
	}
}

// deliver sends one update to every subscribed session. An update whose
// topic has no current subscriber is discarded without a single send
// attempt; a failing send is logged and does not affect the remaining
// subscribers.
func (e *Engine) deliver(upd router.Update) {
	var targets []*session.Session
	for _, s := range e.roster.Snapshot() {
		if s.Subscribed(upd.Topic) {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		slog.Debug("Discarding update with no subscribers", "route", e.route, "topic", upd.Topic)
		return
	}

	msg := router.UpdateMessage{Topic: upd.Topic, Payload: upd.Payload}
	for _, s := range targets {
		if err := s.Send(e.route+".update", msg); err != nil {
			// The session may have disconnected between the snapshot and
			// this send.
			slog.Warn("Failed to deliver update", "route", e.route, "topic", upd.Topic,
				"sessionID", s.ID(), "error", err)
		}
	}
}
