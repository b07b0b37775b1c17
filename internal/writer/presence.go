package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/chat-relay/internal/router"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int           // Flush when this many rows are pending
	FlushInterval time.Duration // Flush at least this often
	FlushTimeout  time.Duration // Bound for one batch insert
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
		FlushTimeout:  5 * time.Second,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// BatchSender is the subset of pgxpool.Pool the writer needs.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertPresence = `
	INSERT INTO presence_events (session_id, identity, kind, occurred_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (session_id, kind) DO NOTHING
`

// presenceRow is one presence_events row.
type presenceRow struct {
	SessionID  string
	Identity   string
	Kind       string
	OccurredAt time.Time
}

// PresenceWriter consumes PresenceEvent from the router buffer and writes to presence_events.
type PresenceWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the router
	input *router.GrowableBuffer[router.PresenceEvent]

	// Database
	db BatchSender

	// Batching
	batch   []presenceRow
	batchMu sync.Mutex

	// Serializes flushes so rows land in order
	flushMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewPresenceWriter creates a new PresenceWriter.
func NewPresenceWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.PresenceEvent],
	db BatchSender,
	logger *slog.Logger,
) *PresenceWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &PresenceWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]presenceRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *PresenceWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("presence writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains what is queued, flushes, and shuts down.
func (w *PresenceWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping presence writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("presence writer stop timed out")
		return ctx.Err()
	}

	// Final drain and flush
	for _, ev := range w.input.DrainTo(0) {
		w.add(ev)
	}
	w.flush(ctx)

	w.logger.Info("presence writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *PresenceWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// run consumes the buffer and flushes on size or interval.
func (w *PresenceWriter) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.input.Ready():
			for _, ev := range w.input.DrainTo(w.cfg.BatchSize) {
				if w.add(ev) {
					w.flush(w.ctx)
				}
			}
		}
	}
}

// add appends an event and reports whether the batch is full.
func (w *PresenceWriter) add(ev router.PresenceEvent) bool {
	row := transform(ev)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a PresenceEvent to a presenceRow.
func transform(ev router.PresenceEvent) presenceRow {
	return presenceRow{
		SessionID:  ev.SessionID.String(),
		Identity:   ev.Identity,
		Kind:       string(ev.Kind),
		OccurredAt: ev.At.UTC(),
	}
}

// flush writes the current batch to the database.
func (w *PresenceWriter) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]presenceRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if w.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FlushTimeout)
		defer cancel()
	}

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed presence events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *PresenceWriter) batchInsert(ctx context.Context, rows []presenceRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertPresence, r.SessionID, r.Identity, r.Kind, r.OccurredAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
