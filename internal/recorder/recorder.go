package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fwpanel/panel-stream/internal/stream"
)

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 1 * time.Second,
	}
}

// EntrySource is the slice of the stream client the recorder needs.
type EntrySource interface {
	Subscribe(ch stream.Channel, fn stream.Handler) func()
}

// DB is the slice of pgxpool.Pool the recorder needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Metrics contains runtime statistics.
type Metrics struct {
	Inserts     int64
	Conflicts   int64
	Flushes     int64
	Errors      int64
	ParseErrors int64
}

// Recorder subscribes to the new-entry channel and batch-inserts entries.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	source EntrySource
	db     DB

	unsubscribe func()

	batch       []entryRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates a Recorder.
func New(cfg Config, source EntrySource, db DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		logger: logger,
		source: source,
		db:     db,
		batch:  make([]entryRow, 0, cfg.BatchSize),
	}
}

// Start subscribes to the stream and begins flushing batches.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.unsubscribe = r.source.Subscribe(stream.ChannelNewEntry, r.handleEvent)

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, drains goroutines, and writes the final batch.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// r.ctx is cancelled at this point; the final flush runs on the
	// caller's context so the last batch still lands.
	r.flush(ctx)
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// handleEvent transforms a dispatched new-entry event into a batch row.
func (r *Recorder) handleEvent(ev stream.Event) {
	row, err := r.transform(ev.Payload, time.Now())
	if err != nil {
		r.logger.Warn("unparseable log entry", "error", err)
		r.batchMu.Lock()
		r.metrics.ParseErrors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// flushLoop periodically flushes the batch.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

// transform converts a new-entry payload to an entryRow. Entries carry a
// backend-assigned id when the appliance provides one; otherwise a fresh
// UUID keeps the row insertable.
func (r *Recorder) transform(payload []byte, now time.Time) (entryRow, error) {
	var wire entryWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return entryRow{}, err
	}

	id, err := uuid.Parse(wire.ID)
	if err != nil {
		id = uuid.New()
	}

	ts := wire.Ts
	if ts == 0 {
		ts = now.Unix()
	}

	return entryRow{
		ID:         id,
		Ts:         ts,
		ReceivedAt: now.UnixMicro(),
		Iface:      wire.Iface,
		Action:     wire.Action,
		Level:      wire.Level,
		SrcIP:      wire.SrcIP,
		SrcPort:    wire.SrcPort,
		DstIP:      wire.DstIP,
		DstPort:    wire.DstPort,
		Protocol:   wire.Protocol,
		Rule:       wire.Rule,
		Message:    wire.Message,
	}, nil
}

// flush writes the current batch to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]entryRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed log entries",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, rows []entryRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO log_entries (id, ts, received_at, iface, action, level,
				src_ip, src_port, dst_ip, dst_port, protocol, rule, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING
		`, row.ID, row.Ts, row.ReceivedAt, row.Iface, row.Action, row.Level,
			row.SrcIP, row.SrcPort, row.DstIP, row.DstPort, row.Protocol,
			row.Rule, row.Message)
	}

	results := r.db.SendBatch(ctx, batch)
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

// entryWire is the new-entry payload shape on the wire.
type entryWire struct {
	ID       string `json:"id"`
	Ts       int64  `json:"ts"`
	Iface    string `json:"iface"`
	Action   string `json:"action"`
	Level    string `json:"level"`
	SrcIP    string `json:"src_ip"`
	SrcPort  int    `json:"src_port"`
	DstIP    string `json:"dst_ip"`
	DstPort  int    `json:"dst_port"`
	Protocol string `json:"protocol"`
	Rule     string `json:"rule"`
	Message  string `json:"msg"`
}

// entryRow is a log_entries table row.
type entryRow struct {
	ID         uuid.UUID
	Ts         int64
	ReceivedAt int64
	Iface      string
	Action     string
	Level      string
	SrcIP      string
	SrcPort    int
	DstIP      string
	DstPort    int
	Protocol   string
	Rule       string
	Message    string
}
