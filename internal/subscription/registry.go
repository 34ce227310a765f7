package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/livesync/internal/credentials"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/protocol"
	"github.com/rickgao/livesync/internal/queue"
	"github.com/rickgao/livesync/internal/state"
)

// PendingPolicy decides what happens to requests made before ready.
type PendingPolicy string

const (
	// PolicyDrop logs and discards the request.
	PolicyDrop PendingPolicy = "drop"
	// PolicyBuffer holds the request until NotifyReady.
	PolicyBuffer PendingPolicy = "buffer"
)

// Valid reports whether p is a known policy.
func (p PendingPolicy) Valid() bool {
	return p == PolicyDrop || p == PolicyBuffer
}

// Config configures the registry.
type Config struct {
	QueueSize     int           // Initial request queue capacity
	PendingPolicy PendingPolicy // Defaults to PolicyDrop
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     64,
		PendingPolicy: PolicyDrop,
	}
}

// StateReader exposes the current application state.
type StateReader interface {
	Snapshot() state.State
}

// Stats provides registry statistics.
type Stats struct {
	Enqueued uint64
	Sent     uint64
	Dropped  uint64
	Buffered uint64
	Failed   uint64
	Pending  int
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records registration outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithCredentialPredicate overrides which cookies are sent as auth.
func WithCredentialPredicate(p credentials.Predicate) Option {
	return func(r *Registry) {
		r.pred = p
	}
}

// request is one queued unit of work. A flush request replays held
// registrations.
type request struct {
	descriptor protocol.Descriptor
	flush      bool
}

// Registry serializes live-query registrations over the session connection.
type Registry struct {
	cfg     Config
	state   StateReader
	creds   credentials.Source
	pred    credentials.Predicate
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue *queue.Queue[request]

	// owned by the loop
	pending []protocol.Descriptor

	stopWatch func() bool
	wg        sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Subscription Registry.
func New(cfg Config, st StateReader, creds credentials.Source, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PendingPolicy == "" {
		cfg.PendingPolicy = PolicyDrop
	}

	r := &Registry{
		cfg:    cfg,
		state:  st,
		creds:  creds,
		logger: logger.With("component", "subscription"),
		queue:  queue.New[request](cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins processing requests. The loop ends when ctx is cancelled or
// Stop is called, after the already queued requests are handled.
func (r *Registry) Start(ctx context.Context) error {
	r.stopWatch = context.AfterFunc(ctx, r.queue.Close)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("subscription registry started",
		"pending_policy", r.cfg.PendingPolicy,
	)
	return nil
}

// Stop closes the request queue and waits for the loop to drain it.
func (r *Registry) Stop(ctx context.Context) error {
	r.queue.Close()
	if r.stopWatch != nil {
		r.stopWatch()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("subscription registry stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("shutdown timeout, registrations may be unsent")
		return ctx.Err()
	}
}

// Register queues d for registration. It never blocks and reports false
// only after Stop.
func (r *Registry) Register(d protocol.Descriptor) bool {
	if !r.queue.Push(request{descriptor: d}) {
		return false
	}
	r.statsMu.Lock()
	r.stats.Enqueued++
	r.statsMu.Unlock()
	return true
}

// NotifyReady replays held registrations once the connection is ready.
// Requests registered afterwards are sent after the replayed ones.
func (r *Registry) NotifyReady() {
	r.queue.Push(request{flush: true})
}

// Stats returns current statistics.
func (r *Registry) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *Registry) loop() {
	defer r.wg.Done()

	for {
		req, ok := r.queue.Pop()
		if !ok {
			return
		}
		if req.flush {
			r.flush()
			continue
		}
		r.process(req.descriptor)
	}
}

func (r *Registry) process(d protocol.Descriptor) {
	st := r.state.Snapshot()

	if !st.Websocket.Ready() {
		if r.cfg.PendingPolicy == PolicyBuffer {
			r.pending = append(r.pending, d)
			r.record("buffered", func(s *Stats) { s.Buffered++ })
			r.logger.Debug("registration held until ready", "schema", d.Schema)
			return
		}
		r.logger.Warn("websocket not ready, registration dropped", "schema", d.Schema)
		r.record("dropped", func(s *Stats) { s.Dropped++ })
		return
	}

	if len(r.pending) > 0 {
		r.flush()
	}
	r.send(st, d)
}

func (r *Registry) flush() {
	if len(r.pending) == 0 {
		return
	}
	st := r.state.Snapshot()
	if !st.Websocket.Ready() {
		return
	}

	r.logger.Info("replaying held registrations", "count", len(r.pending))
	for _, d := range r.pending {
		r.send(st, d)
	}
	r.pending = nil
	r.record("", func(s *Stats) { s.Pending = 0 })
}

func (r *Registry) send(st state.State, d protocol.Descriptor) {
	auth := credentials.Snapshot(r.creds, r.pred)
	msg := protocol.NewRegister(st.Route.OrganisationID, auth, d)

	start := time.Now()
	if err := st.Websocket.Send(msg); err != nil {
		r.logger.Warn("failed to send registration",
			"schema", d.Schema,
			"error", fmt.Errorf("register %s: %w", d.Schema, err),
		)
		r.record("error", func(s *Stats) { s.Failed++ })
		return
	}

	r.logger.Debug("registration sent",
		"schema", d.Schema,
		"direction", d.Direction,
		"organisation_id", st.Route.OrganisationID,
		"elapsed", time.Since(start),
	)
	r.record("sent", func(s *Stats) { s.Sent++ })
}

func (r *Registry) record(outcome string, update func(*Stats)) {
	r.statsMu.Lock()
	update(&r.stats)
	r.stats.Pending = len(r.pending)
	r.statsMu.Unlock()

	if outcome != "" {
		r.metrics.Registration(outcome)
	}
}
