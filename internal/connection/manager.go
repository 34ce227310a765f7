package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/livesync/internal/credentials"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/protocol"
)

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records lifecycle state and frame counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithCredentialPredicate overrides which cookies are sent on authenticate.
func WithCredentialPredicate(p credentials.Predicate) Option {
	return func(mgr *Manager) {
		mgr.pred = p
	}
}

// WithClientFactory replaces the websocket client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(mgr *Manager) {
		mgr.newClient = f
	}
}

// Manager owns the single session connection and publishes its events.
// A Manager connects at most once; there is no reconnection.
type Manager struct {
	cfg       ManagerConfig
	creds     credentials.Source
	pred      credentials.Predicate
	logger    *slog.Logger
	metrics   *metrics.Metrics
	newClient ClientFactory

	events chan Event

	mu       sync.RWMutex
	state    State
	client   Client
	handle   *Handle
	started  bool
	closed   bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, creds credentials.Source, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBufferSize < 1 {
		cfg.EventBufferSize = 1
	}

	m := &Manager{
		cfg:       cfg,
		creds:     creds,
		logger:    logger.With("component", "connection"),
		newClient: NewClient,
		events:    make(chan Event, cfg.EventBufferSize),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect dials the server, sends one authenticate frame, publishes the
// ready event and starts forwarding inbound frames. No acknowledgement of
// the authenticate frame is awaited.
//
// ctx bounds the dial only; the receive loop runs until Close or a
// transport failure.
func (m *Manager) Connect(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrAlreadyClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.setState(StateConnecting)

	client := m.newClient(m.cfg.Client, m.logger)
	if err := client.Connect(ctx); err != nil {
		m.setState(StateClosed)
		return nil, fmt.Errorf("dial %s: %w", m.cfg.Client.URL, err)
	}

	handle := NewHandle(client)
	logger := m.logger.With("conn_id", handle.ID())

	m.setState(StateAuthenticating)

	creds := credentials.Snapshot(m.creds, m.pred)
	if err := handle.Send(protocol.NewAuthenticate(creds)); err != nil {
		handle.markClosed()
		client.Close()
		m.setState(StateClosed)
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	logger.Debug("authenticate sent", "cookies", len(creds))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	// Ready is published and the loop started under the lock, so a Close
	// either happens first and suppresses ready, or sees a running loop.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		handle.markClosed()
		client.Close()
		return nil, ErrAlreadyClosed
	}
	m.client = client
	m.handle = handle
	m.cancel = cancel
	m.loopDone = done
	m.state = StateReady

	// The buffer holds at least one event and nothing else is queued yet,
	// so this send never blocks and ready is always the first event.
	m.events <- Event{Kind: EventReady, Handle: handle}

	go m.receiveLoop(loopCtx, handle, client, done, logger)
	m.metrics.SetConnectionState(string(StateReady), States())
	m.mu.Unlock()

	logger.Info("websocket ready", "url", m.cfg.Client.URL)
	return handle, nil
}

// Events returns the shared event stream. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Handle returns the ready handle, or nil before ready.
func (m *Manager) Handle() *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

// Close stops the receive loop, closes the socket and closes the event
// stream. The stream stays open if the loop has not exited before ctx ends.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	client, handle, cancel, done := m.client, m.handle, m.cancel, m.loopDone
	m.mu.Unlock()

	if handle != nil {
		handle.markClosed()
	}
	if cancel != nil {
		cancel()
	}

	var closeErr error
	if client != nil {
		closeErr = client.Close()
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn("shutdown timeout, receive loop still running")
			m.setState(StateClosed)
			return ctx.Err()
		}
	}

	close(m.events)
	m.setState(StateClosed)
	m.logger.Info("connection manager stopped")

	if closeErr != nil {
		return fmt.Errorf("close websocket: %w", closeErr)
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.metrics.SetConnectionState(string(s), States())
}

// receiveLoop forwards frames as message events in arrival order.
func (m *Manager) receiveLoop(ctx context.Context, h *Handle, c Client, done chan struct{}, logger *slog.Logger) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case f := <-c.Messages():
			if !m.forward(ctx, h, f) {
				return
			}

		case err := <-c.Errors():
			// Frames read before the failure are still owed to consumers.
			for {
				select {
				case f := <-c.Messages():
					if !m.forward(ctx, h, f) {
						return
					}
					continue
				default:
				}
				break
			}

			h.markClosed()
			m.setState(StateClosed)
			logger.Warn("websocket closed", "error", err)
			m.emit(ctx, Event{Kind: EventClosed, Handle: h, Err: err})
			return
		}
	}
}

func (m *Manager) forward(ctx context.Context, h *Handle, f Frame) bool {
	m.metrics.FrameReceived()
	return m.emit(ctx, Event{
		Kind:   EventMessage,
		Handle: h,
		Message: InboundMessage{
			Data:       f.Data,
			ConnID:     h.ID(),
			ReceivedAt: f.ReceivedAt,
		},
	})
}

// emit blocks until the event is accepted so none is ever dropped.
func (m *Manager) emit(ctx context.Context, ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
