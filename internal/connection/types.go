package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("connect already attempted")
)

// State is the lifecycle state of the session connection.
type State string

const (
	StateIdle           State = "idle" // before Connect
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateReady          State = "ready"
	StateClosed         State = "closed"
)

// States lists every lifecycle state.
func States() []string {
	return []string{
		string(StateIdle),
		string(StateConnecting),
		string(StateAuthenticating),
		string(StateReady),
		string(StateClosed),
	}
}

// Frame is one raw inbound websocket message.
type Frame struct {
	Data       []byte    // Raw message bytes from the websocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// InboundMessage is a frame tagged for the event stream.
type InboundMessage struct {
	Data       []byte
	ConnID     uuid.UUID // Handle ID of the connection it arrived on
	ReceivedAt time.Time
}

// EventKind tags an Event.
type EventKind int

const (
	EventReady EventKind = iota + 1
	EventMessage
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// Event is one entry of the shared event stream.
type Event struct {
	Kind    EventKind
	Handle  *Handle        // set for every kind
	Message InboundMessage // EventMessage only
	Err     error          // EventClosed only
}

// ClientConfig configures a websocket client.
type ClientConfig struct {
	URL              string        // Websocket URL (e.g., ws://learninglocker:3000/websocket)
	Origin           string        // Optional Origin header
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Interval between keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client          ClientConfig
	EventBufferSize int // Buffer size of the event stream
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:          DefaultClientConfig(),
		EventBufferSize: 1024,
	}
}
