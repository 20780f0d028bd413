// Package flush implements the background worker that drains the intake
// queue, resolves content-addressed satellites, and persists a batch into
// the day's store in one transaction.
package flush

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/neehar-mavuduru/logengine/hash"
	"github.com/neehar-mavuduru/logengine/intake"
	"github.com/neehar-mavuduru/logengine/model"
	"github.com/neehar-mavuduru/logengine/pacer"
	"github.com/neehar-mavuduru/logengine/quarantine"
	"github.com/neehar-mavuduru/logengine/store"
	"github.com/neehar-mavuduru/logengine/tick"
)

// Worker owns one flush loop: swap-drain the intake queue, resolve
// satellites, persist, publish FlushInfo, then let the pacer decide when to
// look again. One Worker is meant to run in exactly one goroutine.
type Worker struct {
	queue      *intake.Queue
	baseDir    string
	quarantine *quarantine.Sink
	pacer      *pacer.Pacer

	flushInfo atomic.Pointer[model.FlushInfo]
	stopped   atomic.Bool
}

// New creates a Worker. pacer may be nil to use pacer.DefaultConfig().
func New(queue *intake.Queue, baseDir string, q *quarantine.Sink, p *pacer.Pacer) *Worker {
	if p == nil {
		p = pacer.New(pacer.DefaultConfig())
	}
	return &Worker{queue: queue, baseDir: baseDir, quarantine: q, pacer: p}
}

// Run loops FlushOnce/pacer.Wait until Stop is called. It is meant to be
// launched with `go`.
func (w *Worker) Run() {
	for {
		if w.stopped.Load() {
			return
		}
		date := tick.LocalDate(tick.Now())
		if err := w.FlushOnce(date); err != nil {
			log.Printf("[logengine flush] %s: %v", date.Format("2006_01_02"), err)
		}
		w.pacer.Wait(w.queue.BacklogLen, w.stopped.Load)
	}
}

// Stop signals Run's loop to exit after its current iteration. It does not
// itself perform a final flush; callers that need one (e.g. the engine's
// shutdown hook) should call FlushOnce once more after Stop returns.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// FlushInfo returns the most recently published flush snapshot, or the zero
// value if no flush has completed yet.
func (w *Worker) FlushInfo() model.FlushInfo {
	if p := w.flushInfo.Load(); p != nil {
		return *p
	}
	return model.FlushInfo{}
}

// FlushOnce runs one complete swap-resolve-persist cycle for date's store.
// date selects which per-day file preparation and the final transaction
// write to; it is ordinarily "today" in local time, per Run's loop, but is
// exposed so callers (and a shutdown hook) can force a final drain.
func (w *Worker) FlushOnce(date time.Time) error {
	buf := w.queue.Swap()
	logs := buf.Drain()
	if len(logs) == 0 {
		return nil
	}

	prepStart := time.Now()
	sortBatch(logs)

	ds, err := store.Open(w.baseDir, date)
	if err != nil {
		w.quarantine.Quarantine(date, logs, err)
		return fmt.Errorf("logengine/flush: open store: %w", err)
	}
	defer ds.Close()

	if err := resolveSatellites(ds.DB, logs); err != nil {
		w.quarantine.Quarantine(date, logs, err)
		return fmt.Errorf("logengine/flush: resolve satellites: %w", err)
	}

	writeStart := time.Now()
	if err := persist(ds.DB, logs); err != nil {
		w.quarantine.Quarantine(date, logs, err)
		return fmt.Errorf("logengine/flush: persist: %w", err)
	}
	now := time.Now()

	w.flushInfo.Store(&model.FlushInfo{
		Date:      date.Format("2006_01_02"),
		LogCount:  len(logs),
		PrepTime:  writeStart.Sub(prepStart).Nanoseconds(),
		WriteTime: now.Sub(writeStart).Nanoseconds(),
		TotalTime: now.Sub(prepStart).Nanoseconds(),
	})
	return nil
}

// sortBatch orders a drained batch by CreatedTick, breaking ties by arrival
// order within the buffer.
func sortBatch(logs []*model.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].CreatedTick != logs[j].CreatedTick {
			return logs[i].CreatedTick < logs[j].CreatedTick
		}
		return logs[i].EnqueueSeq() < logs[j].EnqueueSeq()
	})
}

// resolveSatellites dedups and resolves Format, Argument and CallerInfo rows
// for every log in the batch, stamping FormatID/CallerInfoID/ArgID in place.
// It runs in its own transaction, separate from the final persist, matching
// the prep/write split FlushInfo reports.
func resolveSatellites(db *sql.DB, logs []*model.Log) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin resolve tx: %w", err)
	}
	defer tx.Rollback()

	if err := resolveFormats(tx, logs); err != nil {
		return fmt.Errorf("resolve formats: %w", err)
	}
	if err := resolveArguments(tx, logs); err != nil {
		return fmt.Errorf("resolve arguments: %w", err)
	}
	if err := resolveCallers(tx, logs); err != nil {
		return fmt.Errorf("resolve caller infos: %w", err)
	}

	return tx.Commit()
}

// dedupIndex deduplicates within a batch by a stable hash of each entry's
// natural key, falling back to an exact comparison within the (rare)
// colliding bucket so a hash collision can never misattribute one format,
// argument, or caller to another's already-resolved row id.
type dedupIndex struct {
	buckets map[uint32][]dedupEntry
}

type dedupEntry struct {
	key string
	id  int64
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{buckets: make(map[uint32][]dedupEntry)}
}

func (d *dedupIndex) lookup(h uint32, key string) (int64, bool) {
	for _, e := range d.buckets[h] {
		if e.key == key {
			return e.id, true
		}
	}
	return 0, false
}

func (d *dedupIndex) store(h uint32, key string, id int64) {
	d.buckets[h] = append(d.buckets[h], dedupEntry{key: key, id: id})
}

func resolveFormats(tx *sql.Tx, logs []*model.Log) error {
	idx := newDedupIndex()
	for _, l := range logs {
		key := l.Format.FormatString
		h := hash.Stable(key)
		if _, ok := idx.lookup(h, key); ok {
			continue
		}
		id, err := insertOrGetFormat(tx, key)
		if err != nil {
			return err
		}
		idx.store(h, key, id)
	}
	for _, l := range logs {
		id, _ := idx.lookup(hash.Stable(l.Format.FormatString), l.Format.FormatString)
		l.FormatID = id
		l.Format.ID = id
	}
	return nil
}

func insertOrGetFormat(tx *sql.Tx, formatString string) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO formats(format_string) VALUES (?)`, formatString); err != nil {
		return 0, err
	}
	var id int64
	err := tx.QueryRow(`SELECT id FROM formats WHERE format_string = ?`, formatString).Scan(&id)
	return id, err
}

// nullableKey renders a *string into an exact-comparison key that
// distinguishes nil from any possible string value, including the empty
// string. It's the value dedupIndex falls back to comparing within a
// hash.StableNullable bucket.
func nullableKey(v *string) string {
	if v == nil {
		return "\x00"
	}
	return "\x01" + *v
}

func resolveArguments(tx *sql.Tx, logs []*model.Log) error {
	for slot := 0; slot < model.MaxArgs; slot++ {
		idx := newDedupIndex()
		for _, l := range logs {
			key := nullableKey(l.Args[slot])
			h := hash.StableNullable(l.Args[slot])
			if _, ok := idx.lookup(h, key); ok {
				continue
			}
			id, err := insertOrGetNullable(tx, "arguments", "value", l.Args[slot])
			if err != nil {
				return err
			}
			idx.store(h, key, id)
		}
		for _, l := range logs {
			id, _ := idx.lookup(hash.StableNullable(l.Args[slot]), nullableKey(l.Args[slot]))
			l.ArgID[slot] = &id
		}
	}
	return nil
}

func insertOrGetNullable(tx *sql.Tx, table, column string, value *string) (int64, error) {
	q := fmt.Sprintf(`INSERT OR IGNORE INTO %s(%s) VALUES (?)`, table, column)
	if _, err := tx.Exec(q, value); err != nil {
		return 0, err
	}
	var id int64
	sel := fmt.Sprintf(`SELECT id FROM %s WHERE %s IS ?`, table, column)
	err := tx.QueryRow(sel, value).Scan(&id)
	return id, err
}

func callerKey(c *model.CallerInfo) string {
	if c == nil {
		return "\x00"
	}
	line := "\x00"
	if c.SourceLineNumber != nil {
		line = fmt.Sprintf("\x01%d", *c.SourceLineNumber)
	}
	return nullableKey(c.MemberName) + "\x1f" + nullableKey(c.SourceFilePath) + "\x1f" + line
}

func resolveCallers(tx *sql.Tx, logs []*model.Log) error {
	idx := newDedupIndex()
	for _, l := range logs {
		if l.Caller == nil {
			continue
		}
		key := callerKey(l.Caller)
		h := hash.Stable(key)
		if _, ok := idx.lookup(h, key); ok {
			continue
		}
		id, err := insertOrGetCallerInfo(tx, l.Caller)
		if err != nil {
			return err
		}
		idx.store(h, key, id)
	}
	for _, l := range logs {
		if l.Caller == nil {
			l.CallerInfoID = nil
			continue
		}
		key := callerKey(l.Caller)
		id, _ := idx.lookup(hash.Stable(key), key)
		l.CallerInfoID = &id
		l.Caller.ID = id
	}
	return nil
}

func insertOrGetCallerInfo(tx *sql.Tx, c *model.CallerInfo) (int64, error) {
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO caller_infos(member_name, source_file_path, source_line_number) VALUES (?, ?, ?)`,
		c.MemberName, c.SourceFilePath, c.SourceLineNumber,
	)
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.QueryRow(
		`SELECT id FROM caller_infos WHERE member_name IS ? AND source_file_path IS ? AND source_line_number IS ?`,
		c.MemberName, c.SourceFilePath, c.SourceLineNumber,
	).Scan(&id)
	return id, err
}

// persist writes every resolved log row plus the batch's 10-minute interval
// upserts in one transaction: the atomicity this needs,
// grounded on the prepare-once/loop/commit shape a comparable log-repository
// flush uses for its own batch writes.
func persist(db *sql.DB, logs []*model.Log) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin persist tx: %w", err)
	}
	defer tx.Rollback()

	insertSQL := `INSERT INTO logs(
		level, format_id, caller_info_id,
		arg0_id, arg1_id, arg2_id, arg3_id, arg4_id, arg5_id, arg6_id, arg7_id, arg8_id, arg9_id,
		created_tick
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("prepare log insert: %w", err)
	}
	defer stmt.Close()

	intervals := make(map[int64]int32)
	for _, l := range logs {
		args := make([]any, 0, 14)
		args = append(args, int(l.Level), l.FormatID, l.CallerInfoID)
		for i := 0; i < model.MaxArgs; i++ {
			args = append(args, l.ArgID[i])
		}
		args = append(args, l.CreatedTick)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
		intervals[tick.FloorToInterval(l.CreatedTick)]++
	}

	upsertSQL := `INSERT INTO log_interval_stats(interval_start, log_count) VALUES (?, ?)
		ON CONFLICT(interval_start) DO UPDATE SET log_count = log_count + excluded.log_count`
	upsert, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare interval upsert: %w", err)
	}
	defer upsert.Close()

	for start, count := range intervals {
		if _, err := upsert.Exec(start, count); err != nil {
			return fmt.Errorf("upsert interval %d: %w", start, err)
		}
	}

	return tx.Commit()
}
