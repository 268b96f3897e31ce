// Package host wires subscription routers into the serving process: it
// registers their operations, runs one fan-out engine per router, and
// exposes the operation catalog consumed by documentation tooling.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/tickstream/internal/dispatch"
	"github.com/nfrund/tickstream/internal/fanout"
	"github.com/nfrund/tickstream/internal/hub"
	"github.com/nfrund/tickstream/internal/router"
)

// ErrAlreadyStarted is returned when Attach or Start is called after Start.
var ErrAlreadyStarted = errors.New("host already started")

// stopGrace bounds how long Stop waits for fan-out engines to exit.
// Cancellation is best-effort; Stop never blocks indefinitely.
const stopGrace = 2 * time.Second

// RouteCatalog describes one route's operations for external tooling.
type RouteCatalog struct {
	Route      string   `json:"route"`
	Operations []string `json:"operations"`
}

// Host owns the attached routers and their fan-out engines.
type Host struct {
	registry *dispatch.Registry
	roster   *hub.Roster

	mu      sync.Mutex
	routers []router.Attachable
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a host over the shared operation registry and session roster.
func New(registry *dispatch.Registry, roster *hub.Roster) *Host {
	return &Host{registry: registry, roster: roster}
}

// Attach registers a router's operations. Routers are attached at startup,
// before Start.
func (h *Host) Attach(r router.Attachable) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("attach route %q: %w", r.Route(), ErrAlreadyStarted)
	}

	if err := r.Register(h.registry); err != nil {
		return err
	}
	h.routers = append(h.routers, r)
	slog.Info("Router attached", "route", r.Route())
	return nil
}

// Start launches one fan-out engine per attached router. Engines run until
// Stop and are never cancelled by a single connection's departure.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}
	h.started = true

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	for _, r := range h.routers {
		engine := fanout.New(r.Route(), r.Updates(), h.roster)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			engine.Run(runCtx)
		}()
	}
	return nil
}

// Stop cancels all fan-out engines and waits briefly for them to exit.
func (h *Host) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		slog.Warn("Fan-out engines did not stop within grace period")
	}
}

// Catalog returns the operations of every attached router, sorted by route.
// It is read-only and never mutates router state.
func (h *Host) Catalog() []RouteCatalog {
	h.mu.Lock()
	defer h.mu.Unlock()

	catalog := make([]RouteCatalog, 0, len(h.routers))
	for _, r := range h.routers {
		catalog = append(catalog, RouteCatalog{Route: r.Route(), Operations: r.Operations()})
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Route < catalog[j].Route })
	return catalog
}
