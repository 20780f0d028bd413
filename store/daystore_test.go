package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchemaAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2026, 7, 31, 10, 0, 0, 0, time.Local)

	s1, err := Open(dir, date)
	require.NoError(t, err)
	defer s1.Close()

	assert.True(t, Exists(dir, date))
	assert.Equal(t, filepath.Join(dir, "2026_07_31.db"), s1.Path)

	s2, err := Open(dir, date)
	require.NoError(t, err)
	defer s2.Close()

	var name string
	err = s2.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='logs'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "logs", name)
}

func TestExistsFalseForMissingDate(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)
	assert.False(t, Exists(dir, date))
}

func TestListDatesSortsAscending(t *testing.T) {
	dir := t.TempDir()
	dates := []time.Time{
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local),
	}
	for _, d := range dates {
		s, err := Open(dir, d)
		require.NoError(t, err)
		s.Close()
	}

	got, err := ListDates(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2026_01_01", got[0].Format(dateLayout))
	assert.Equal(t, "2026_02_01", got[1].Format(dateLayout))
	assert.Equal(t, "2026_03_01", got[2].Format(dateLayout))
}

func TestListDatesMissingDirIsEmptyNotError(t *testing.T) {
	got, err := ListDates(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCallerInfoNullTripleDedupes(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)
	s, err := Open(dir, date)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB.Exec(`INSERT OR IGNORE INTO caller_infos (member_name, source_file_path, source_line_number) VALUES (NULL, NULL, NULL)`)
	require.NoError(t, err)
	_, err = s.DB.Exec(`INSERT OR IGNORE INTO caller_infos (member_name, source_file_path, source_line_number) VALUES (NULL, NULL, NULL)`)
	require.NoError(t, err)

	var count int
	err = s.DB.QueryRow(`SELECT COUNT(*) FROM caller_infos WHERE member_name IS NULL`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestArgumentNullValueDedupes(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)
	s, err := Open(dir, date)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB.Exec(`INSERT OR IGNORE INTO arguments (value) VALUES (NULL)`)
	require.NoError(t, err)
	_, err = s.DB.Exec(`INSERT OR IGNORE INTO arguments (value) VALUES (NULL)`)
	require.NoError(t, err)

	var count int
	err = s.DB.QueryRow(`SELECT COUNT(*) FROM arguments WHERE value IS NULL`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
