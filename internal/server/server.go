package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"

	"github.com/nfrund/tickstream/internal/config"
	"github.com/nfrund/tickstream/internal/dispatch"
	"github.com/nfrund/tickstream/internal/feed"
	"github.com/nfrund/tickstream/internal/host"
	"github.com/nfrund/tickstream/internal/hub"
	"github.com/nfrund/tickstream/internal/logging"
	"github.com/nfrund/tickstream/internal/pubsub"
	"github.com/nfrund/tickstream/internal/router"
)

// Server holds the dependencies for the serving process.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	Bus      pubsub.Bus
	Registry *dispatch.Registry
	Roster   *hub.Roster
	Host     *host.Host

	loop  *dispatch.Loop
	bars  *feed.BarFeed
	books *feed.BookFeed
}

// New assembles a server from environment configuration.
func New() *Server {
	logging.New()
	s, err := build(config.New())
	if err != nil {
		panic(fmt.Sprintf("failed to assemble server: %v", err))
	}
	return s
}

// NewWithConfig assembles a server from an explicit configuration. Used by
// tests to control timeouts and feed pacing.
func NewWithConfig(cfg *config.Config) (*Server, error) {
	return build(cfg)
}

// build wires the object graph. Construction order follows dependency
// order: bus, feeds, registry/roster, host, routers, echo.
func build(cfg *config.Config) (*Server, error) {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, func(do.Injector) (pubsub.Bus, error) {
		return pubsub.NewWatermillBridge(), nil
	})
	do.Provide(injector, func(i do.Injector) (*feed.BarFeed, error) {
		c := do.MustInvoke[*config.Config](i)
		return feed.NewBarFeed(do.MustInvoke[pubsub.Bus](i), c.FeedInterval), nil
	})
	do.Provide(injector, func(i do.Injector) (*feed.BookFeed, error) {
		c := do.MustInvoke[*config.Config](i)
		return feed.NewBookFeed(do.MustInvoke[pubsub.Bus](i), c.FeedInterval), nil
	})
	do.Provide(injector, func(do.Injector) (*dispatch.Registry, error) {
		return dispatch.NewRegistry(), nil
	})
	do.Provide(injector, func(do.Injector) (*hub.Roster, error) {
		return hub.NewRoster(), nil
	})
	do.Provide(injector, func(i do.Injector) (*host.Host, error) {
		return host.New(do.MustInvoke[*dispatch.Registry](i), do.MustInvoke[*hub.Roster](i)), nil
	})

	s := &Server{
		Cfg:      cfg,
		Bus:      do.MustInvoke[pubsub.Bus](injector),
		Registry: do.MustInvoke[*dispatch.Registry](injector),
		Roster:   do.MustInvoke[*hub.Roster](injector),
		Host:     do.MustInvoke[*host.Host](injector),
		bars:     do.MustInvoke[*feed.BarFeed](injector),
		books:    do.MustInvoke[*feed.BookFeed](injector),
	}
	s.loop = dispatch.NewLoop(s.Registry, cfg.IdleTimeout)

	if err := s.attachRouters(); err != nil {
		return nil, err
	}
	s.registerBuiltins()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	s.E = e
	s.RegisterRoutes()

	return s, nil
}

// attachRouters binds each feed behind its route.
func (s *Server) attachRouters() error {
	barsRouter, err := router.New[feed.BarRequest, feed.Bar](
		"bars", s.bars, router.WithQueueCapacity(s.Cfg.QueueCapacity))
	if err != nil {
		return err
	}
	booksRouter, err := router.New[feed.BookRequest, feed.BookSnapshot](
		"books", s.books, router.WithQueueCapacity(s.Cfg.QueueCapacity))
	if err != nil {
		return err
	}

	if err := s.Host.Attach(barsRouter); err != nil {
		return err
	}
	return s.Host.Attach(booksRouter)
}

// registerBuiltins adds operations that are not tied to a route.
func (s *Server) registerBuiltins() {
	s.Registry.MustRegister(dispatch.NewOperation("ping",
		dispatch.Nullary(func(context.Context) (any, error) {
			return map[string]string{"time": time.Now().UTC().Format(time.RFC3339)}, nil
		}),
		dispatch.WithReply("pong"),
	))
}
