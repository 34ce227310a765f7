package normalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/livesync/internal/connection"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/pagination"
	"github.com/rickgao/livesync/internal/protocol"
	"github.com/rickgao/livesync/internal/schema"
)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithInjector replaces the default statement injector.
func WithInjector(i *pagination.Injector) Option {
	return func(n *Normalizer) {
		n.injector = i
	}
}

// WithMetrics records per-push outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Normalizer) {
		n.metrics = m
	}
}

// Normalizer merges pushed entities into local state.
type Normalizer struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	injector *pagination.Injector

	// Input from the engine's event dispatch
	input <-chan connection.InboundMessage

	entities EntitySink
	pages    PageSink

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// NewNormalizer creates a new Message Normalizer. pages may be nil.
func NewNormalizer(
	cfg Config,
	input <-chan connection.InboundMessage,
	entities EntitySink,
	pages PageSink,
	logger *slog.Logger,
	opts ...Option,
) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}

	n := &Normalizer{
		cfg:      cfg,
		logger:   logger.With("component", "normalizer"),
		input:    input,
		entities: entities,
		pages:    pages,
		injector: pagination.NewInjector(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start begins consuming inbound messages.
func (n *Normalizer) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(1)
	go n.processLoop()

	n.logger.Info("message normalizer started")
	return nil
}

// Stop ends the loop after the messages already buffered are processed.
func (n *Normalizer) Stop(ctx context.Context) error {
	n.logger.Info("stopping message normalizer")

	if n.cancel != nil {
		n.cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("message normalizer stopped")
		return nil
	case <-ctx.Done():
		n.logger.Warn("message normalizer stop timed out")
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (n *Normalizer) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

func (n *Normalizer) processLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			n.drain()
			return
		case msg, ok := <-n.input:
			if !ok {
				n.logger.Info("input channel closed")
				return
			}
			n.handle(msg)
		}
	}
}

// drain processes what is already buffered without waiting for more.
func (n *Normalizer) drain() {
	for {
		select {
		case msg, ok := <-n.input:
			if !ok {
				return
			}
			n.handle(msg)
		default:
			return
		}
	}
}

func (n *Normalizer) handle(msg connection.InboundMessage) {
	res, err := n.Process(msg.Data)
	if err != nil {
		if IsDropped(err) {
			n.logger.Warn("push dropped", "conn_id", msg.ConnID, "error", err)
			return
		}
		n.logger.Warn("push merged without page update",
			"conn_id", msg.ConnID,
			"schema", res.Kind.String(),
			"id", res.ID,
			"error", err,
		)
		return
	}
	n.logger.Debug("push merged",
		"schema", res.Kind.String(),
		"id", res.ID,
		"entities", res.Graph.Len(),
		"paged", res.Update != nil,
	)
}

// Process handles one push frame synchronously. Errors are *ParseError,
// *schema.UnknownSchemaError, *NormalizeError, or a page sink failure
// after the entities were merged.
func (n *Normalizer) Process(data []byte) (Result, error) {
	n.count(func(s *Stats) { s.MessagesReceived++ })

	push, err := protocol.ParsePush(data)
	if err != nil {
		n.count(func(s *Stats) { s.ParseErrors++ })
		n.metrics.ParseError()
		return Result{}, &ParseError{Err: err}
	}

	kind, err := schema.Lookup(push.Schema)
	if err != nil {
		n.count(func(s *Stats) { s.UnknownSchemas++ })
		n.metrics.UnknownSchema()
		return Result{}, err
	}

	node, err := push.DecodeNode()
	if err != nil {
		n.count(func(s *Stats) { s.ParseErrors++ })
		n.metrics.ParseError()
		return Result{}, &ParseError{Err: err}
	}

	norm, err := schema.Normalize(kind, node)
	if err != nil {
		n.count(func(s *Stats) { s.NormalizeErrors++ })
		n.metrics.NormalizeError()
		return Result{}, &NormalizeError{Schema: kind.String(), Err: err}
	}

	if n.entities != nil {
		n.entities.MergeEntities(norm.Graph)
	}
	entities := norm.Graph.Len()
	n.count(func(s *Stats) {
		s.MessagesMerged++
		s.EntitiesMerged += int64(entities)
	})
	n.metrics.PushMerged(kind.String(), entities)

	res := Result{Kind: norm.Kind, ID: norm.ID, Graph: norm.Graph}

	update, ok := n.injector.Inject(push, norm)
	if !ok {
		return res, nil
	}
	res.Update = &update

	if n.pages == nil {
		return res, nil
	}
	if err := n.pages.ApplyUpdate(update); err != nil {
		n.count(func(s *Stats) { s.PageErrors++ })
		return res, fmt.Errorf("apply page update: %w", err)
	}
	n.count(func(s *Stats) { s.PageUpdates++ })
	n.metrics.PageUpdate()
	return res, nil
}

func (n *Normalizer) count(update func(*Stats)) {
	n.mu.Lock()
	update(&n.stats)
	n.mu.Unlock()
}

// IsDropped reports whether err means the push was discarded before any
// entity was merged.
func IsDropped(err error) bool {
	var pe *ParseError
	var ue *schema.UnknownSchemaError
	var ne *NormalizeError
	return errors.As(err, &pe) || errors.As(err, &ue) || errors.As(err, &ne)
}
