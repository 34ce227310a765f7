package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/queue"
	"github.com/rickgao/livesync/internal/schema"
)

const createEntitiesTable = `
	CREATE TABLE IF NOT EXISTS entities (
		entity_type TEXT        NOT NULL,
		entity_id   TEXT        NOT NULL,
		attributes  JSONB       NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`

const upsertEntity = `
	INSERT INTO entities (entity_type, entity_id, attributes, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (entity_type, entity_id) DO UPDATE
	SET attributes = entities.attributes || EXCLUDED.attributes,
	    updated_at = EXCLUDED.updated_at`

// EntityWriter consumes merged graphs and upserts them into the entities table.
type EntityWriter struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the normalizer
	input *queue.Queue[schema.Graph]

	// Database
	db DB

	// Batching
	batch       []entityRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	consumer sync.WaitGroup
	wg       sync.WaitGroup

	stats WriterMetrics

	now func() time.Time
}

// NewEntityWriter creates a new EntityWriter. m may be nil.
func NewEntityWriter(cfg WriterConfig, db DB, m *metrics.Metrics, logger *slog.Logger) *EntityWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &EntityWriter{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger.With("component", "writer"),
		input:   queue.New[schema.Graph](cfg.BufferSize),
		batch:   make([]entityRow, 0, cfg.BatchSize),
		now:     time.Now,
	}
}

// EnsureSchema creates the entities table if it does not exist.
func (w *EntityWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, createEntitiesTable); err != nil {
		return fmt.Errorf("create entities table: %w", err)
	}
	return nil
}

// MergeEntities queues g for mirroring. It never blocks the normalizer.
func (w *EntityWriter) MergeEntities(g schema.Graph) {
	if !w.input.Push(g) {
		w.logger.Debug("writer stopped, graph not mirrored", "entities", g.Len())
	}
}

// Start begins consuming graphs and writing to the database.
func (w *EntityWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.consumer.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("entity writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue, stops the loops and flushes what is left using ctx.
func (w *EntityWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping entity writer")

	// Closing the queue lets the consumer drain it and exit.
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.consumer.Wait()
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("entity writer stop timed out")
		err = ctx.Err()
	}

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Final flush
	w.flush(ctx)

	w.logger.Info("entity writer stopped")
	return err
}

// Stats returns current metrics.
func (w *EntityWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *EntityWriter) consumeLoop() {
	defer w.consumer.Done()

	for {
		g, ok := w.input.Pop()
		if !ok {
			return
		}
		w.handleGraph(g)
	}
}

// flushLoop periodically flushes the batch.
func (w *EntityWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleGraph transforms and adds a graph to the batch.
func (w *EntityWriter) handleGraph(g schema.Graph) {
	rows, err := w.transform(g)
	if err != nil {
		w.logger.Warn("failed to encode entities", "error", err)
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Graphs++
	w.batch = append(w.batch, rows...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a graph to rows ordered by type then id.
func (w *EntityWriter) transform(g schema.Graph) ([]entityRow, error) {
	now := w.now()
	rows := make([]entityRow, 0, g.Len())

	for entityType, byID := range g {
		for id, e := range byID {
			attrs, err := json.Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", entityType, id, err)
			}
			rows = append(rows, entityRow{
				EntityType: entityType,
				EntityID:   id,
				Attributes: attrs,
				UpdatedAt:  now,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EntityType != rows[j].EntityType {
			return rows[i].EntityType < rows[j].EntityType
		}
		return rows[i].EntityID < rows[j].EntityID
	})
	return rows, nil
}

// flush writes the current batch to the database.
func (w *EntityWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]entityRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchUpsert(ctx, batch); err != nil {
		w.logger.Error("batch upsert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		w.metrics.WriterError()
		return
	}

	w.batchMu.Lock()
	w.stats.Upserts += int64(len(batch))
	w.stats.Flushes++
	w.batchMu.Unlock()
	w.metrics.WriterFlush(len(batch))

	w.logger.Debug("flushed entities",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchUpsert writes rows using pgx.Batch, in row order.
func (w *EntityWriter) batchUpsert(ctx context.Context, rows []entityRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertEntity, r.EntityType, r.EntityID, r.Attributes, r.UpdatedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, r := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert %s %s: %w", r.EntityType, r.EntityID, err)
		}
	}
	return nil
}
