package logengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neehar-mavuduru/logengine/archive"
	"github.com/neehar-mavuduru/logengine/flush"
	"github.com/neehar-mavuduru/logengine/intake"
	"github.com/neehar-mavuduru/logengine/model"
	"github.com/neehar-mavuduru/logengine/pacer"
	"github.com/neehar-mavuduru/logengine/quarantine"
	"github.com/neehar-mavuduru/logengine/query"
	"github.com/neehar-mavuduru/logengine/store"
	"github.com/neehar-mavuduru/logengine/tick"
)

// Engine is the embeddable entry point: Add() feeds the intake queue,
// InitBackgroundWorker()/StopBackgroundWorker() control the flush loop's
// lifecycle, and KeysetPaginate reads back what has been persisted.
type Engine struct {
	cfg        Config
	queue      *intake.Queue
	quarantine *quarantine.Sink
	queryEng   *query.Engine
	archiver   *archive.Uploader

	mu      sync.Mutex // guards worker/running/cancel below across Init/Stop races
	worker  *flush.Worker
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates cfg and constructs an Engine. It does not start the
// background worker; call InitBackgroundWorker (or Add, which starts it
// lazily) to begin flushing.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		queue:      intake.New(cfg.QueueCapacity),
		quarantine: quarantine.New(cfg.QuarantineDir),
		queryEng:   query.New(cfg.BaseDir),
	}, nil
}

// Add enqueues log for the next flush, lazily starting the background
// worker on first use if it is not already running — the same one-shot
// lazy-init idiom a per-event logger registry uses to spin up resources on
// first demand rather than requiring an explicit upfront call. It reports
// false if the intake buffer is saturated.
func (e *Engine) Add(log *model.Log) bool {
	if !e.isRunning() {
		_ = e.InitBackgroundWorker()
	}
	return e.queue.Add(log)
}

// InitBackgroundWorker starts the flush loop (and, if configured, the
// periodic archive sweep) if it is not already running. Idempotent.
func (e *Engine) InitBackgroundWorker() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	e.worker = flush.New(e.queue, e.cfg.BaseDir, e.quarantine, pacer.New(e.cfg.Pacer))
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.worker.Run()
	}()

	if e.cfg.Archive != nil {
		uploader, err := archive.NewUploader(ctx, *e.cfg.Archive)
		if err != nil {
			return fmt.Errorf("logengine: start archiver: %w", err)
		}
		e.archiver = uploader
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runArchiveLoop(ctx)
		}()
	}

	return nil
}

// StopBackgroundWorker stops the flush loop, performs one final flush of
// whatever is still in the intake buffer, and waits for any archive sweep
// in flight to finish. Idempotent; a subsequent Add re-initializes the
// worker per InitBackgroundWorker's lazy-start rule.
func (e *Engine) StopBackgroundWorker() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	worker := e.worker
	cancel := e.cancel
	e.running = false
	e.mu.Unlock()

	worker.Stop()
	cancel()
	e.wg.Wait()

	// Final flush: whatever arrived between the loop's last look and Stop's
	// signal still gets persisted before we return. No process-exit hook is
	// registered; this flush runs only when StopBackgroundWorker is called.
	_ = worker.FlushOnce(tick.LocalDate(tick.Now()))

	if e.archiver != nil {
		e.archiver.Close()
		e.archiver = nil
	}
}

func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) runArchiveLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.archiver.ArchiveClosedStores(ctx, e.cfg.BaseDir, time.Now()); err != nil {
				// Best-effort: archiving is an optional sideband, never allowed
				// to affect ingest or query availability.
				continue
			}
		}
	}
}

// FlushInfo returns the most recent flush snapshot, or the zero value if
// the worker has never run or has never completed a non-empty flush.
func (e *Engine) FlushInfo() model.FlushInfo {
	e.mu.Lock()
	worker := e.worker
	e.mu.Unlock()
	if worker == nil {
		return model.FlushInfo{}
	}
	return worker.FlushInfo()
}

// Query returns a fresh filter builder for KeysetPaginate.
func (e *Engine) Query() *query.QueryModel {
	return query.New()
}

// KeysetPaginate runs q against the day-store selected by its time range.
func (e *Engine) KeysetPaginate(q *query.QueryModel) (*query.KeysetPage, error) {
	return e.queryEng.KeysetPaginate(q)
}

// LogFileExists reports whether a day-store file exists for date.
func (e *Engine) LogFileExists(date time.Time) bool {
	return store.Exists(e.cfg.BaseDir, date)
}

// ListLogFiles returns the dates with an existing day-store file, ascending.
func (e *Engine) ListLogFiles() ([]time.Time, error) {
	return store.ListDates(e.cfg.BaseDir)
}
