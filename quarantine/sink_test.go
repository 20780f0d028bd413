package quarantine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neehar-mavuduru/logengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarantineWritesJSONAndTextSidecars(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir)

	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)
	logs := []*model.Log{
		model.NewLog(model.Error, "disk full on {0}", 1),
		model.NewLog(model.Error, "disk full on {0}", 2),
	}
	cause := errors.New("read-only filesystem")

	sink.Quarantine(date, logs, cause)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var jsonFile, textFile string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			jsonFile = name
		}
		if filepath.Ext(name) == ".txt" {
			textFile = name
		}
	}
	require.NotEmpty(t, jsonFile)
	require.Equal(t, "Error_2026_07_31.txt", textFile)

	data, err := os.ReadFile(filepath.Join(dir, jsonFile))
	require.NoError(t, err)

	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "2026_07_31", rec.Date)
	assert.Equal(t, "read-only filesystem", rec.ExceptionMessage)
	assert.Len(t, rec.Logs, 2)

	text, err := os.ReadFile(filepath.Join(dir, textFile))
	require.NoError(t, err)
	assert.Contains(t, string(text), jsonFile)
	assert.Contains(t, string(text), "read-only filesystem")
}

func TestQuarantineAppendsMultipleBatchesToSameTextFile(t *testing.T) {
	dir := t.TempDir()
	sink := New(dir)
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)

	sink.Quarantine(date, []*model.Log{model.NewLog(model.Error, "a", 1)}, errors.New("first"))
	sink.Quarantine(date, []*model.Log{model.NewLog(model.Error, "b", 2)}, errors.New("second"))

	text, err := os.ReadFile(filepath.Join(dir, "Error_2026_07_31.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "first")
	assert.Contains(t, string(text), "second")
}
