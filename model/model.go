// Package model holds the value types persisted by the logging engine:
// Format, Argument, CallerInfo, Log and IntervalStat, plus the rendering
// contract that turns a resolved Log back into display strings.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the severity of a Log entry.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "Debug"
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Critical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// MaxArgs is the number of positional argument slots a Log carries.
const MaxArgs = 10

// ErrArgumentIndexOutOfRange is the fatal, producer-side programming error
// raised when setting argument slot 10 or higher.
var ErrArgumentIndexOutOfRange = errors.New("logengine: argument index out of range [0,9]")

// Format is the content-addressed printf-like template of a log kind.
// FormatString is the natural (unique) key; ID is populated once the
// flush worker resolves it against the day-store.
type Format struct {
	ID           int64
	FormatString string
}

// Argument is a content-addressed stringified positional argument value.
// Value is nullable: a nil Value is a distinct dedup key from an empty
// string, per the data model's treatment of NULL.
type Argument struct {
	ID    int64
	Value *string
}

// CallerInfo is a content-addressed (MemberName, SourceFilePath,
// SourceLineNumber) triple describing where a log call originated.
type CallerInfo struct {
	ID               int64
	MemberName       *string
	SourceFilePath   *string
	SourceLineNumber *int32
}

// Log is one structured log entry as seen by a producer. Args[i] holds the
// stringified value for positional slot i, or nil if unset. FormatID,
// CallerInfoID and ArgID are populated by the flush worker once satellites
// are resolved; they are zero-value (unresolved) at enqueue time.
type Log struct {
	ID          int64
	Level       Level
	Format      Format
	Caller      *CallerInfo
	Args        [MaxArgs]*string
	CreatedTick int64

	// Resolved foreign keys, set by the flush worker during FlushOnce step 5.
	FormatID     int64
	CallerInfoID *int64
	ArgID        [MaxArgs]*int64

	// enqueueSeq records relative arrival order within a single intake
	// buffer, used as the stable tie-break when sorting a batch by
	// CreatedTick.
	enqueueSeq uint64
}

// NewLog constructs a Log with the given level, format template and
// creation tick. Arguments are attached afterward via SetArg.
func NewLog(level Level, formatString string, createdTick int64) *Log {
	return &Log{
		Level:       level,
		Format:      Format{FormatString: formatString},
		CreatedTick: createdTick,
	}
}

// SetArg stores the stringified argument at the given positional index.
// index must be in [0, MaxArgs). A nil value records a NULL argument slot,
// distinct from an empty string.
func (l *Log) SetArg(index int, value *string) error {
	if index < 0 || index >= MaxArgs {
		return fmt.Errorf("%w: got %d", ErrArgumentIndexOutOfRange, index)
	}
	l.Args[index] = value
	return nil
}

// WithCaller attaches caller context to the log. line is a pointer so that
// "unknown line" is representable as NULL, matching CallerInfo.SourceLineNumber.
func (l *Log) WithCaller(member, sourceFile *string, line *int32) *Log {
	l.Caller = &CallerInfo{
		MemberName:       member,
		SourceFilePath:   sourceFile,
		SourceLineNumber: line,
	}
	return l
}

// SetEnqueueSeq stamps the arrival-order tie-break. Called once by the
// intake queue at enqueue time; never touched again.
func (l *Log) SetEnqueueSeq(seq uint64) { l.enqueueSeq = seq }

// EnqueueSeq returns the arrival-order tie-break stamped by the intake queue.
func (l *Log) EnqueueSeq() uint64 { return l.enqueueSeq }

// Content renders the log's format string with its ten argument slots
// substituted in place of "{0}".."{9}". A nil argument renders as the empty
// string, matching standard substitution semantics for an unset slot.
func (l *Log) Content() string {
	return l.render(func(v string) string { return v })
}

// TagContent is Content but wraps each substituted argument in <tag>...</tag>
// markers so a UI can highlight parameter boundaries.
func (l *Log) TagContent() string {
	return l.render(func(v string) string { return "<tag>" + v + "</tag>" })
}

// render scans the original template exactly once, substituting each "{i}"
// token from the untouched argument slots as it's encountered. Scanning the
// source once (rather than chaining ReplaceAll calls into an accumulating
// output) matters because an argument's own value is an arbitrary producer
// string: if it happened to contain a literal "{j}" token, a second pass
// over already-substituted output would wrongly replace inside it.
func (l *Log) render(wrap func(string) string) string {
	template := l.Format.FormatString
	var out strings.Builder
	for i := 0; i < len(template); {
		if template[i] == '{' && i+2 < len(template) && template[i+2] == '}' &&
			template[i+1] >= '0' && template[i+1] <= '9' {
			slot := int(template[i+1] - '0')
			val := ""
			if l.Args[slot] != nil {
				val = *l.Args[slot]
			}
			out.WriteString(wrap(val))
			i += 3
			continue
		}
		out.WriteByte(template[i])
		i++
	}
	return out.String()
}

// IntervalStat is one 10-minute bucket of log volume.
type IntervalStat struct {
	IntervalStart int64 // tick, floored to a 10-minute boundary
	LogCount      int32
}

// FlushInfo is the latest snapshot of flush-worker activity. It is published
// as an immutable value so readers never observe a torn record.
type FlushInfo struct {
	Date      string // yyyy_mm_dd of the flushed store
	LogCount  int
	PrepTime  int64 // nanoseconds spent sorting the batch, opening the store and resolving satellites
	WriteTime int64 // nanoseconds spent in the persist transaction
	TotalTime int64 // nanoseconds, PrepTime+WriteTime
}
