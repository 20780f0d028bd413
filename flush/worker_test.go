package flush

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neehar-mavuduru/logengine/intake"
	"github.com/neehar-mavuduru/logengine/model"
	"github.com/neehar-mavuduru/logengine/pacer"
	"github.com/neehar-mavuduru/logengine/quarantine"
	"github.com/neehar-mavuduru/logengine/store"
	"github.com/neehar-mavuduru/logengine/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func newTestWorker(t *testing.T) (*Worker, string) {
	t.Helper()
	dir := t.TempDir()
	q := intake.New(64)
	sink := quarantine.New(filepath.Join(dir, "quarantine"))
	w := New(q, filepath.Join(dir, "store"), sink, pacer.New(pacer.DefaultConfig()))
	return w, filepath.Join(dir, "store")
}

func TestFlushOnceEmptyBatchIsNoop(t *testing.T) {
	w, _ := newTestWorker(t)
	err := w.FlushOnce(time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.FlushInfo{}, w.FlushInfo())
}

func TestFlushOnceDrainsAndPersistsLogs(t *testing.T) {
	w, baseDir := newTestWorker(t)
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)

	for i := 0; i < 5; i++ {
		l := model.NewLog(model.Info, "user {0} logged in", tick.FromTime(date)+int64(i))
		require.NoError(t, l.SetArg(0, strp("alice")))
		require.True(t, w.queueForTest().Add(l))
	}

	require.NoError(t, w.FlushOnce(date))

	info := w.FlushInfo()
	assert.Equal(t, 5, info.LogCount)
	assert.Equal(t, "2026_07_31", info.Date)
	assert.GreaterOrEqual(t, info.TotalTime, int64(0))

	db := openRaw(t, baseDir, date)
	defer db.Close()

	var logCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM logs`).Scan(&logCount))
	assert.Equal(t, 5, logCount)

	var formatCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM formats`).Scan(&formatCount))
	assert.Equal(t, 1, formatCount, "all five logs share one format row")

	var argCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM arguments WHERE value = 'alice'`).Scan(&argCount))
	assert.Equal(t, 1, argCount, "identical argument values dedup to one row")
}

func TestFlushOnceDedupesNullArgumentsAndCallers(t *testing.T) {
	w, baseDir := newTestWorker(t)
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)

	for i := 0; i < 3; i++ {
		l := model.NewLog(model.Warning, "disk check", tick.FromTime(date)+int64(i))
		require.NoError(t, l.SetArg(0, nil))
		l.WithCaller(strp("DiskMonitor.Check"), nil, nil)
		require.True(t, w.queueForTest().Add(l))
	}

	require.NoError(t, w.FlushOnce(date))

	db := openRaw(t, baseDir, date)
	defer db.Close()

	var nullArgCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM arguments WHERE value IS NULL`).Scan(&nullArgCount))
	assert.Equal(t, 1, nullArgCount, "all NULL argument slots share one row")

	var callerCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM caller_infos`).Scan(&callerCount))
	assert.Equal(t, 1, callerCount, "identical caller triples (including NULLs) dedup to one row")
}

func TestFlushOnceAccumulatesIntervalStats(t *testing.T) {
	w, baseDir := newTestWorker(t)
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)
	base := tick.FromTime(date)

	for i := 0; i < 4; i++ {
		l := model.NewLog(model.Debug, "tick", base)
		require.True(t, w.queueForTest().Add(l))
	}
	require.NoError(t, w.FlushOnce(date))

	for i := 0; i < 2; i++ {
		l := model.NewLog(model.Debug, "tick", base+tick.TenMinutes)
		require.True(t, w.queueForTest().Add(l))
	}
	require.NoError(t, w.FlushOnce(date))

	db := openRaw(t, baseDir, date)
	defer db.Close()

	rows, err := db.Query(`SELECT interval_start, log_count FROM log_interval_stats ORDER BY interval_start`)
	require.NoError(t, err)
	defer rows.Close()

	var starts []int64
	var counts []int32
	for rows.Next() {
		var s int64
		var c int32
		require.NoError(t, rows.Scan(&s, &c))
		starts = append(starts, s)
		counts = append(counts, c)
	}
	require.Len(t, starts, 2)
	assert.Equal(t, int32(4), counts[0])
	assert.Equal(t, int32(2), counts[1])
}

func TestFlushOnceQuarantinesOnStoreOpenFailure(t *testing.T) {
	dir := t.TempDir()
	// Force store.Open's MkdirAll to fail by occupying the store path with a
	// plain file instead of a directory.
	storeDir := filepath.Join(dir, "store")
	require.NoError(t, os.WriteFile(storeDir, []byte("not a dir"), 0o644))

	q := intake.New(8)
	qDir := filepath.Join(dir, "quarantine")
	sink := quarantine.New(qDir)
	w := New(q, storeDir, sink, pacer.New(pacer.DefaultConfig()))

	l := model.NewLog(model.Error, "boom", tick.Now())
	require.True(t, q.Add(l))

	err := w.FlushOnce(time.Now())
	require.Error(t, err)

	entries, rerr := os.ReadDir(qDir)
	require.NoError(t, rerr)
	assert.NotEmpty(t, entries, "failed flush is quarantined")
}

// queueForTest exposes the worker's intake queue so tests can seed it
// directly, mirroring how the engine facade wires producers in.
func (w *Worker) queueForTest() *intake.Queue { return w.queue }

func openRaw(t *testing.T, baseDir string, date time.Time) *sql.DB {
	t.Helper()
	path := store.Path(baseDir, date)
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	return db
}
