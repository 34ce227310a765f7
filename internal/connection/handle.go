package connection

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the send side of a ready connection. It is published with the
// ready event and is the only way other components write to the socket.
type Handle struct {
	id     uuid.UUID
	client Client
	closed atomic.Bool
}

// NewHandle wraps a connected client.
func NewHandle(c Client) *Handle {
	return &Handle{id: uuid.New(), client: c}
}

// ID identifies the connection in logs and inbound messages.
func (h *Handle) ID() uuid.UUID {
	if h == nil {
		return uuid.Nil
	}
	return h.id
}

// Ready reports whether the handle can still send.
func (h *Handle) Ready() bool {
	return h != nil && !h.closed.Load() && h.client.IsConnected()
}

// Send encodes v as JSON and writes it as one text frame.
func (h *Handle) Send(v any) error {
	if h == nil || h.closed.Load() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := h.client.Send(data); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

func (h *Handle) markClosed() {
	h.closed.Store(true)
}
