package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livesync/internal/cache"
	"github.com/rickgao/livesync/internal/config"
	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/credentials"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/normalizer"
	"github.com/rickgao/livesync/internal/pagination"
	"github.com/rickgao/livesync/internal/protocol"
	"github.com/rickgao/livesync/internal/state"
	"github.com/rickgao/livesync/internal/subscription"
)

// ErrAlreadyInitialized is returned by a second Initialize.
var ErrAlreadyInitialized = errors.New("engine already initialized")

// Mirror is an optional extra entity sink with its own lifecycle, such as
// the Postgres entity writer.
type Mirror interface {
	normalizer.EntitySink
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config configures the engine.
type Config struct {
	Connection connection.ManagerConfig
	Registry   subscription.Config
	Normalizer normalizer.Config
	Route      state.Route
}

// FromConfig maps the file configuration onto engine settings.
func FromConfig(c *config.Config) Config {
	mgr := connection.DefaultManagerConfig()
	mgr.Client = connection.ClientConfig{
		URL:              c.Server.WSURL,
		Origin:           c.Server.Origin,
		HandshakeTimeout: c.Server.HandshakeTimeout,
		PingInterval:     c.Server.PingInterval,
		PingTimeout:      c.Server.PingTimeout,
		WriteTimeout:     c.Server.WriteTimeout,
		BufferSize:       c.Connection.FrameBuffer,
	}
	mgr.EventBufferSize = c.Connection.EventBuffer

	return Config{
		Connection: mgr,
		Registry: subscription.Config{
			QueueSize:     c.Registry.QueueSize,
			PendingPolicy: subscription.PendingPolicy(c.Registry.PendingPolicy),
		},
		Normalizer: normalizer.Config{InputBuffer: c.Normalizer.InputBuffer},
		Route:      state.Route{OrganisationID: c.Server.OrganisationID},
	}
}

// Deps are the engine's collaborators. Every field is optional.
type Deps struct {
	Credentials   credentials.Source
	Predicate     credentials.Predicate
	Metrics       *metrics.Metrics
	Mirror        Mirror
	Injector      *pagination.Injector
	ClientFactory connection.ClientFactory
	Logger        *slog.Logger
}

// Stats aggregates component statistics.
type Stats struct {
	Connection connection.State   `json:"connection"`
	Status     state.Status       `json:"status"`
	Normalizer normalizer.Stats   `json:"normalizer"`
	Registry   subscription.Stats `json:"registry"`
	Entities   int                `json:"entities"`
	Pages      int                `json:"pages"`
}

// Engine is one live-sync session.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	mirror Mirror

	store *state.Store
	cache *cache.Cache
	pages *pagination.Store

	manager    *connection.Manager
	registry   *subscription.Registry
	normalizer *normalizer.Normalizer

	inbound      chan connection.InboundMessage
	ready        chan struct{} // closed once the ready state is dispatched
	quit         chan struct{} // closed when Stop gives up on dispatch
	dispatchDone chan struct{}

	mu          sync.Mutex
	initialized bool
	stopped     bool
}

// New builds an engine and all of its components.
func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Normalizer.InputBuffer < 1 {
		cfg.Normalizer.InputBuffer = normalizer.DefaultConfig().InputBuffer
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger.With("component", "engine"),
		mirror:       deps.Mirror,
		store:        state.NewStore(cfg.Route),
		cache:        cache.New(),
		pages:        pagination.NewStore(),
		inbound:      make(chan connection.InboundMessage, cfg.Normalizer.InputBuffer),
		ready:        make(chan struct{}),
		quit:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}

	mgrOpts := []connection.Option{connection.WithMetrics(deps.Metrics)}
	regOpts := []subscription.Option{subscription.WithMetrics(deps.Metrics)}
	if deps.Predicate != nil {
		mgrOpts = append(mgrOpts, connection.WithCredentialPredicate(deps.Predicate))
		regOpts = append(regOpts, subscription.WithCredentialPredicate(deps.Predicate))
	}
	if deps.ClientFactory != nil {
		mgrOpts = append(mgrOpts, connection.WithClientFactory(deps.ClientFactory))
	}
	e.manager = connection.NewManager(cfg.Connection, deps.Credentials, logger, mgrOpts...)
	e.registry = subscription.New(cfg.Registry, e.store, deps.Credentials, logger, regOpts...)

	var sink normalizer.EntitySink = e.cache
	if deps.Mirror != nil {
		sink = normalizer.MultiEntitySink{e.cache, deps.Mirror}
	}
	normOpts := []normalizer.Option{normalizer.WithMetrics(deps.Metrics)}
	if deps.Injector != nil {
		normOpts = append(normOpts, normalizer.WithInjector(deps.Injector))
	}
	e.normalizer = normalizer.NewNormalizer(cfg.Normalizer, e.inbound, sink, e.pages, logger, normOpts...)

	return e
}

// Initialize starts every loop and connects. It returns once the ready
// state is visible to the registry, so registrations made afterwards are
// sent. A connect failure is returned and leaves the loops running until
// Stop.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	e.initialized = true
	e.mu.Unlock()

	// Loops outlive ctx and end only on Stop.
	runCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error { return e.normalizer.Start(runCtx) })
	g.Go(func() error { return e.registry.Start(runCtx) })
	if e.mirror != nil {
		g.Go(func() error { return e.mirror.Start(runCtx) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	go e.dispatchLoop()

	handle, err := e.manager.Connect(ctx)
	if err != nil {
		e.store.Dispatch(state.WebsocketClosed{Err: err})
		return fmt.Errorf("connect: %w", err)
	}

	select {
	case <-e.ready:
	case <-e.dispatchDone:
		return fmt.Errorf("connect: %w", connection.ErrAlreadyClosed)
	case <-ctx.Done():
		return ctx.Err()
	}

	e.logger.Info("live-sync session initialized", "conn_id", handle.ID())
	return nil
}

// Register queues a live query. It reports false after Stop.
func (e *Engine) Register(d protocol.Descriptor) bool {
	return e.registry.Register(d)
}

// SetRoute changes the routing context used by later registrations.
func (e *Engine) SetRoute(r state.Route) {
	e.store.Dispatch(state.RouteChanged{Route: r})
}

// State returns the current application state.
func (e *Engine) State() state.State {
	return e.store.Snapshot()
}

// Cache returns the entity cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Pages returns the pagination store.
func (e *Engine) Pages() *pagination.Store {
	return e.pages
}

// Stats returns aggregated statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		Connection: e.manager.State(),
		Status:     e.store.Snapshot().Status,
		Normalizer: e.normalizer.Stats(),
		Registry:   e.registry.Stats(),
		Entities:   e.cache.Len(),
		Pages:      e.pages.Len(),
	}
}

// Stop closes the connection, then drains and stops every loop.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	initialized := e.initialized
	e.mu.Unlock()

	e.logger.Info("stopping live-sync session")

	var errs []error
	if err := e.manager.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	if initialized {
		select {
		case <-e.dispatchDone:
		case <-ctx.Done():
			e.logger.Warn("event dispatch did not finish before shutdown deadline")
			close(e.quit)
			<-e.dispatchDone
		}
	}

	var g errgroup.Group
	g.Go(func() error { return e.normalizer.Stop(ctx) })
	g.Go(func() error { return e.registry.Stop(ctx) })
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	// The mirror stops last so it receives everything the normalizer merged.
	if initialized && e.mirror != nil {
		if err := e.mirror.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop mirror: %w", err))
		}
	}

	e.logger.Info("live-sync session stopped")
	return errors.Join(errs...)
}

// dispatchLoop routes connection events in arrival order. It ends when the
// event stream closes or Stop abandons it.
func (e *Engine) dispatchLoop() {
	defer close(e.dispatchDone)
	defer close(e.inbound)

	events := e.manager.Events()
	for {
		var ev connection.Event
		var ok bool
		select {
		case ev, ok = <-events:
		case <-e.quit:
			return
		}
		if !ok {
			if e.store.Snapshot().Websocket != nil {
				e.store.Dispatch(state.WebsocketClosed{})
			}
			return
		}

		switch ev.Kind {
		case connection.EventReady:
			e.store.Dispatch(state.WebsocketReady{Handle: ev.Handle})
			e.registry.NotifyReady()
			close(e.ready)
		case connection.EventMessage:
			select {
			case e.inbound <- ev.Message:
			case <-e.quit:
				return
			}
		case connection.EventClosed:
			e.store.Dispatch(state.WebsocketClosed{Err: ev.Err})
			e.logger.Warn("live-sync connection lost", "error", ev.Err)
		}
	}
}
