package normalizer

import (
	"fmt"

	"github.com/rickgao/livesync/internal/pagination"
	"github.com/rickgao/livesync/internal/schema"
)

// EntitySink receives normalized entity graphs.
type EntitySink interface {
	MergeEntities(g schema.Graph)
}

// PageSink receives pagination updates.
type PageSink interface {
	ApplyUpdate(u pagination.Update) error
}

// MultiEntitySink fans a graph out to every sink in order.
type MultiEntitySink []EntitySink

// MergeEntities implements EntitySink.
func (m MultiEntitySink) MergeEntities(g schema.Graph) {
	for _, s := range m {
		if s != nil {
			s.MergeEntities(g)
		}
	}
}

// Config configures the normalizer.
type Config struct {
	InputBuffer int // Size of the inbound message channel the engine creates
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{InputBuffer: 1024}
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	MessagesMerged   int64
	EntitiesMerged   int64
	ParseErrors      int64
	UnknownSchemas   int64
	NormalizeErrors  int64
	PageUpdates      int64
	PageErrors       int64
}

// Result is the outcome of processing one push.
type Result struct {
	Kind   schema.Kind
	ID     string
	Graph  schema.Graph
	Update *pagination.Update // nil when no injection rule matched
}

// ParseError reports a push frame that is not a valid push message.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse push: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NormalizeError reports a push whose node could not be normalized.
type NormalizeError struct {
	Schema string
	Err    error
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Schema, e.Err)
}

func (e *NormalizeError) Unwrap() error {
	return e.Err
}
