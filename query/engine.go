package query

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/neehar-mavuduru/logengine/model"
	"github.com/neehar-mavuduru/logengine/store"
	"github.com/neehar-mavuduru/logengine/tick"
)

// Engine runs KeysetPaginate queries against the per-day stores under one
// base directory.
type Engine struct {
	baseDir string
}

// New creates an Engine rooted at baseDir.
func New(baseDir string) *Engine {
	return &Engine{baseDir: baseDir}
}

// KeysetPaginate resolves which day-store q's filters select, then returns
// one page of matching logs in q's sort order, eagerly joined with their
// Format, CallerInfo and Argument satellites so Content()/TagContent()
// render without further lookups.
//
// The day is chosen from q's time range (start, falling back to end,
// falling back to today) — a query is always scoped to exactly one
// per-day store file. A day with no store file yet yields an empty page
// with nil cursors rather than an error.
func (e *Engine) KeysetPaginate(q *QueryModel) (*KeysetPage, error) {
	date := resolveDate(q)

	if !store.Exists(e.baseDir, date) {
		return &KeysetPage{}, nil
	}

	ds, err := store.Open(e.baseDir, date)
	if err != nil {
		return nil, fmt.Errorf("logengine/query: open store: %w", err)
	}
	defer ds.Close()

	pageSize := q.pageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	reverse := q.prevCursor != nil
	scanDesc := q.order == Desc
	if reverse {
		scanDesc = !scanDesc
	}

	where, args := buildFilters(q)

	dir := "ASC"
	if scanDesc {
		dir = "DESC"
	}
	sqlText := fmt.Sprintf(`
SELECT
	logs.id, logs.level, logs.created_tick,
	formats.id, formats.format_string,
	logs.caller_info_id, caller_infos.member_name, caller_infos.source_file_path, caller_infos.source_line_number,
	logs.arg0_id, a0.value, logs.arg1_id, a1.value, logs.arg2_id, a2.value, logs.arg3_id, a3.value, logs.arg4_id, a4.value,
	logs.arg5_id, a5.value, logs.arg6_id, a6.value, logs.arg7_id, a7.value, logs.arg8_id, a8.value, logs.arg9_id, a9.value
FROM logs
JOIN formats ON logs.format_id = formats.id
LEFT JOIN caller_infos ON logs.caller_info_id = caller_infos.id
LEFT JOIN arguments a0 ON logs.arg0_id = a0.id
LEFT JOIN arguments a1 ON logs.arg1_id = a1.id
LEFT JOIN arguments a2 ON logs.arg2_id = a2.id
LEFT JOIN arguments a3 ON logs.arg3_id = a3.id
LEFT JOIN arguments a4 ON logs.arg4_id = a4.id
LEFT JOIN arguments a5 ON logs.arg5_id = a5.id
LEFT JOIN arguments a6 ON logs.arg6_id = a6.id
LEFT JOIN arguments a7 ON logs.arg7_id = a7.id
LEFT JOIN arguments a8 ON logs.arg8_id = a8.id
LEFT JOIN arguments a9 ON logs.arg9_id = a9.id
WHERE %s
ORDER BY logs.created_tick %s, logs.id %s
LIMIT ?`, where, dir, dir)

	args = append(args, pageSize)

	rows, err := ds.DB.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("logengine/query: query logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, fmt.Errorf("logengine/query: scan logs: %w", err)
	}

	if reverse {
		reverseLogs(logs)
	}

	var total int64
	if err := ds.DB.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM logs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("logengine/query: count logs: %w", err)
	}

	page := &KeysetPage{Items: logs, TotalRecords: total}
	if len(logs) > 0 {
		first := logs[0].CreatedTick
		last := logs[len(logs)-1].CreatedTick
		page.PrevCursorTick = &first
		page.NextCursorTick = &last
	}
	return page, nil
}

func resolveDate(q *QueryModel) time.Time {
	switch {
	case q.startTick != nil:
		return tick.LocalDate(*q.startTick)
	case q.endTick != nil:
		return tick.LocalDate(*q.endTick)
	default:
		return tick.LocalDate(tick.Now())
	}
}

// buildFilters assembles the WHERE clause and its positional args for q.
// Cursor comparison operators are keyed off q's own sort direction, not the
// (possibly reversed) scan direction used to physically fetch a prev page:
// "next" always moves forward in q's order, "prev" always moves backward in
// it, regardless of which direction SQL scans to get there efficiently.
func buildFilters(q *QueryModel) (string, []any) {
	clauses := []string{"1=1"}
	var args []any

	if q.level != nil {
		clauses = append(clauses, "logs.level = ?")
		args = append(args, int(*q.level))
	}
	if q.formatSubstr != nil {
		clauses = append(clauses, "formats.format_string LIKE ?")
		args = append(args, like(*q.formatSubstr))
	}
	if q.argumentSubstr != nil {
		var ors []string
		pat := like(*q.argumentSubstr)
		for i := 0; i < model.MaxArgs; i++ {
			ors = append(ors, fmt.Sprintf("a%d.value LIKE ?", i))
			args = append(args, pat)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if q.callerSubstr != nil {
		pat := like(*q.callerSubstr)
		clauses = append(clauses, "(caller_infos.member_name LIKE ? OR caller_infos.source_file_path LIKE ? OR CAST(caller_infos.source_line_number AS TEXT) LIKE ?)")
		args = append(args, pat, pat, pat)
	}
	if q.startTick != nil {
		clauses = append(clauses, "logs.created_tick >= ?")
		args = append(args, *q.startTick)
	}
	if q.endTick != nil {
		clauses = append(clauses, "logs.created_tick <= ?")
		args = append(args, *q.endTick)
	}

	// Cursor bounds are closed on both ends: the boundary tick itself is
	// included, matching this engine's resolution of the pagination
	// boundary ambiguity (see DESIGN.md).
	orderDesc := q.order == Desc
	if q.nextCursor != nil {
		op := ">="
		if orderDesc {
			op = "<="
		}
		clauses = append(clauses, "logs.created_tick "+op+" ?")
		args = append(args, *q.nextCursor)
	} else if q.prevCursor != nil {
		op := "<="
		if orderDesc {
			op = ">="
		}
		clauses = append(clauses, "logs.created_tick "+op+" ?")
		args = append(args, *q.prevCursor)
	}

	return strings.Join(clauses, " AND "), args
}

func like(substr string) string {
	return "%" + substr + "%"
}

func scanLogs(rows *sql.Rows) ([]*model.Log, error) {
	var out []*model.Log
	for rows.Next() {
		var (
			id, createdTick      int64
			level                int
			formatID             int64
			formatString         string
			callerInfoID         sql.NullInt64
			memberName           sql.NullString
			sourceFilePath       sql.NullString
			sourceLineNumber     sql.NullInt64
			argIDs               [model.MaxArgs]sql.NullInt64
			argValues            [model.MaxArgs]sql.NullString
		)

		dest := []any{
			&id, &level, &createdTick,
			&formatID, &formatString,
			&callerInfoID, &memberName, &sourceFilePath, &sourceLineNumber,
		}
		for i := 0; i < model.MaxArgs; i++ {
			dest = append(dest, &argIDs[i], &argValues[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		l := &model.Log{
			ID:          id,
			Level:       model.Level(level),
			Format:      model.Format{ID: formatID, FormatString: formatString},
			CreatedTick: createdTick,
			FormatID:    formatID,
		}
		if callerInfoID.Valid {
			id := callerInfoID.Int64
			l.CallerInfoID = &id
			l.Caller = &model.CallerInfo{ID: id}
			if memberName.Valid {
				l.Caller.MemberName = &memberName.String
			}
			if sourceFilePath.Valid {
				l.Caller.SourceFilePath = &sourceFilePath.String
			}
			if sourceLineNumber.Valid {
				line := int32(sourceLineNumber.Int64)
				l.Caller.SourceLineNumber = &line
			}
		}
		for i := 0; i < model.MaxArgs; i++ {
			if argIDs[i].Valid {
				argID := argIDs[i].Int64
				l.ArgID[i] = &argID
			}
			if argValues[i].Valid {
				v := argValues[i].String
				l.Args[i] = &v
			}
		}

		out = append(out, l)
	}
	return out, rows.Err()
}

func reverseLogs(logs []*model.Log) {
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
}
