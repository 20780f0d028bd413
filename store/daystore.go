// Package store owns the per-day relational file the flush worker and
// query engine operate on: one SQLite database per calendar day, opened
// from the producer's local-time date.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

// fileExt is the on-disk extension for a per-day store file.
const fileExt = ".db"

// dateLayout names a day-store file yyyy_mm_dd.
const dateLayout = "2006_01_02"

// nullSentinel stands in for SQL NULL inside the expression-based unique
// indexes below. SQL's own NULL-is-distinct-from-NULL semantics would let
// two rows with the same NULL-bearing natural key both insert successfully,
// defeating content-addressing instead of collapsing all NULLs to one
// shared row. Indexing COALESCE(col, nullSentinel) instead of col directly
// makes NULL collide with itself like any other value would.
const nullSentinel = "\x00__NULL__\x00"

// argColumns returns "arg0_id, arg1_id, ..., arg9_id".
func argColumns() []string {
	cols := make([]string, 10)
	for i := range cols {
		cols[i] = fmt.Sprintf("arg%d_id", i)
	}
	return cols
}

func buildSchemaSQL() string {
	var b strings.Builder
	b.WriteString(`
CREATE TABLE IF NOT EXISTS formats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	format_string TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS arguments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	value TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_arguments_value
	ON arguments(COALESCE(value, '` + nullSentinel + `'));

CREATE TABLE IF NOT EXISTS caller_infos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	member_name TEXT,
	source_file_path TEXT,
	source_line_number INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_caller_infos_triple
	ON caller_infos(
		COALESCE(member_name, '` + nullSentinel + `'),
		COALESCE(source_file_path, '` + nullSentinel + `'),
		COALESCE(source_line_number, -1)
	);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	level INTEGER NOT NULL,
	format_id INTEGER NOT NULL REFERENCES formats(id),
	caller_info_id INTEGER REFERENCES caller_infos(id),
`)
	for _, c := range argColumns() {
		fmt.Fprintf(&b, "\t%s INTEGER REFERENCES arguments(id),\n", c)
	}
	b.WriteString(`	created_tick INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_created_tick ON logs(created_tick);
CREATE INDEX IF NOT EXISTS idx_logs_format_id ON logs(format_id);
CREATE INDEX IF NOT EXISTS idx_logs_caller_info_id ON logs(caller_info_id);
CREATE INDEX IF NOT EXISTS idx_logs_id_created_tick ON logs(id, created_tick);
`)
	for _, c := range argColumns() {
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_logs_%s ON logs(%s);\n", c, c)
	}
	b.WriteString(`
CREATE TABLE IF NOT EXISTS log_interval_stats (
	interval_start INTEGER PRIMARY KEY,
	log_count INTEGER NOT NULL DEFAULT 0
);
`)
	return b.String()
}

var schemaSQL = buildSchemaSQL()

// schemaGroup collapses concurrent first-touches of the same day-store file
// (a flush and a query racing to open a brand-new day) into one CREATE
// TABLE pass, the same role golang.org/x/sync/singleflight plays for
// per-day table creation in comparable ingestion pipelines.
var schemaGroup singleflight.Group

// DayStore owns the connection and date for one calendar day's store file.
// Each day-store connection is meant to be owned exclusively by whoever
// opened it; callers must not share a *DayStore across goroutines without
// their own coordination.
type DayStore struct {
	DB   *sql.DB
	Date time.Time
	Path string
}

// Path returns the on-disk path for date's store file under baseDir.
func Path(baseDir string, date time.Time) string {
	return filepath.Join(baseDir, date.Format(dateLayout)+fileExt)
}

// Exists reports whether a store file for date already exists under baseDir.
func Exists(baseDir string, date time.Time) bool {
	_, err := os.Stat(Path(baseDir, date))
	return err == nil
}

// Open opens (creating if needed) the per-day store for date under baseDir,
// idempotently ensuring schema. Safe to call concurrently for the same or
// different dates.
func Open(baseDir string, date time.Time) (*DayStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("logengine/store: create base dir: %w", err)
	}

	path := Path(baseDir, date)
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("logengine/store: open %s: %w", path, err)
	}
	// A single physical connection keeps the WAL-mode file from seeing
	// overlapping writer transactions from within this process; the flush
	// worker and any one query call each own their own *DayStore instance.
	db.SetMaxOpenConns(1)

	if _, err, _ := schemaGroup.Do(path, func() (interface{}, error) {
		_, err := db.Exec(schemaSQL)
		return nil, err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("logengine/store: create schema for %s: %w", path, err)
	}

	return &DayStore{DB: db, Date: date, Path: path}, nil
}

// Close releases the underlying connection.
func (s *DayStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// ListDates returns the dates with an existing store file under baseDir,
// ascending. A missing baseDir yields an empty, non-error result.
func ListDates(baseDir string) ([]time.Time, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logengine/store: list %s: %w", baseDir, err)
	}

	var dates []time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		base := strings.TrimSuffix(name, fileExt)
		t, err := time.ParseInLocation(dateLayout, base, time.Local)
		if err != nil {
			continue
		}
		dates = append(dates, t)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
