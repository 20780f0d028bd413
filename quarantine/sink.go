// Package quarantine persists batches that failed to flush, as sidecar
// files in the sink's directory (by default the engine's day-store
// directory).
package quarantine

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/neehar-mavuduru/logengine/model"
)

const dateLayout = "2006_01_02"

// serializedLog is the sidecar's JSON shape for one quarantined entry. It
// captures enough to reconstruct or inspect the batch without depending on
// any day-store schema.
type serializedLog struct {
	Level       string    `json:"level"`
	Format      string    `json:"format"`
	Args        [10]*string `json:"args"`
	MemberName  *string   `json:"member_name,omitempty"`
	SourceFile  *string   `json:"source_file,omitempty"`
	SourceLine  *int32    `json:"source_line,omitempty"`
	CreatedTick int64     `json:"created_tick"`
}

// record is the JSON document written to Error_yyyy_mm_dd.<uuid>.json.
type record struct {
	Date             string          `json:"date"`
	ExceptionMessage string          `json:"exception_message"`
	Logs             []serializedLog `json:"logs"`
}

// Sink writes quarantine sidecars under a fixed directory. Every write is
// best-effort: a failure here is swallowed and logged, never propagated,
// so a quarantine failure never blocks the flush worker's next iteration.
type Sink struct {
	dir string
}

// New creates a Sink writing to dir.
func New(dir string) *Sink {
	return &Sink{dir: dir}
}

// Quarantine records date, logs and the triggering error as a JSON sidecar
// plus a line appended to the day's plain-text error log.
func (s *Sink) Quarantine(date time.Time, logs []*model.Log, cause error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		log.Printf("[logengine quarantine] could not create dir %s: %v", s.dir, err)
		return
	}

	dateTag := date.Format(dateLayout)
	id := uuid.New().String()
	jsonName := fmt.Sprintf("Error_%s.%s.json", dateTag, id)

	if err := s.writeJSON(jsonName, date, logs, cause); err != nil {
		log.Printf("[logengine quarantine] could not write %s: %v", jsonName, err)
	}

	if err := s.appendTextLine(dateTag, jsonName, cause); err != nil {
		log.Printf("[logengine quarantine] could not append text sidecar for %s: %v", dateTag, err)
	}
}

func (s *Sink) writeJSON(name string, date time.Time, logs []*model.Log, cause error) error {
	rec := record{
		Date:             date.Format(dateLayout),
		ExceptionMessage: causeMessage(cause),
		Logs:             make([]serializedLog, 0, len(logs)),
	}
	for _, l := range logs {
		rec.Logs = append(rec.Logs, serializedLog{
			Level:       l.Level.String(),
			Format:      l.Format.FormatString,
			Args:        l.Args,
			MemberName:  callerField(l, func(c *model.CallerInfo) *string { return c.MemberName }),
			SourceFile:  callerField(l, func(c *model.CallerInfo) *string { return c.SourceFilePath }),
			SourceLine:  callerLine(l),
			CreatedTick: l.CreatedTick,
		})
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quarantine record: %w", err)
	}

	path := filepath.Join(s.dir, name)
	return os.WriteFile(path, data, 0o644)
}

func (s *Sink) appendTextLine(dateTag, jsonName string, cause error) error {
	path := filepath.Join(s.dir, fmt.Sprintf("Error_%s.txt", dateTag))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open text sidecar: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%s\t%s\n", dateTag, jsonName, causeMessage(cause))
	_, err = f.WriteString(line)
	return err
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func callerField(l *model.Log, pick func(*model.CallerInfo) *string) *string {
	if l.Caller == nil {
		return nil
	}
	return pick(l.Caller)
}

func callerLine(l *model.Log) *int32 {
	if l.Caller == nil {
		return nil
	}
	return l.Caller.SourceLineNumber
}
