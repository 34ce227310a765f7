package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of the input queue.
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
		BufferSize:    256,
	}
}

// DB is the subset of *pgxpool.Pool the writers use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// entityRow represents a row of the entities table.
type entityRow struct {
	EntityType string
	EntityID   string
	Attributes []byte // JSONB
	UpdatedAt  time.Time
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Graphs  int64 // graphs received
	Upserts int64 // rows written
	Errors  int64 // failed batches
	Flushes int64
}
