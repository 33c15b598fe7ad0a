package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
)

// BarWriter consumes delivered bars and writes them to the bars table.
type BarWriter struct {
	cfg       config.JournalConfig
	epic      string
	timeframe string
	logger    *slog.Logger

	input *queue.Queue[model.Bar]

	db *pgxpool.Pool

	batch       []barRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

type barRow struct {
	BarTs        time.Time
	Epic         string
	Timeframe    string
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
}

// NewBarWriter creates a bar writer for one instrument and timeframe.
func NewBarWriter(
	cfg config.JournalConfig,
	epic, timeframe string,
	input *queue.Queue[model.Bar],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *BarWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BarWriter{
		cfg:       cfg,
		epic:      epic,
		timeframe: timeframe,
		input:     input,
		db:        db,
		logger:    logger,
		batch:     make([]barRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming bars and writing to the database.
func (w *BarWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("bar writer started",
		"epic", w.epic,
		"timeframe", w.timeframe,
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *BarWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping bar writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("bar writer stopped")
	case <-ctx.Done():
		w.logger.Warn("bar writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *BarWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *BarWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			bar, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleBar(bar)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *BarWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleBar transforms and adds a bar to the batch.
func (w *BarWriter) handleBar(bar model.Bar) {
	row := w.transform(bar)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a bar to a barRow.
func (w *BarWriter) transform(bar model.Bar) barRow {
	return barRow{
		BarTs:        bar.Time,
		Epic:         w.epic,
		Timeframe:    w.timeframe,
		Open:         bar.Open,
		High:         bar.High,
		Low:          bar.Low,
		Close:        bar.Close,
		Volume:       bar.Volume,
		OpenInterest: bar.OpenInterest,
	}
}

// flush writes the current batch to the database.
func (w *BarWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]barRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
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

	w.logger.Debug("flushed bars",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *BarWriter) batchInsert(rows []barRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO bars (bar_ts, epic, timeframe, open, high, low, close, volume, open_interest)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (epic, timeframe, bar_ts) DO NOTHING
		`, r.BarTs, r.Epic, r.Timeframe, r.Open, r.High, r.Low, r.Close, r.Volume, r.OpenInterest)
	}

	results := w.db.SendBatch(w.ctx, batch)
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
