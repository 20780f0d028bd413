// Package query implements the read path: a fluent filter builder and a
// keyset-paginated (cursor-based) engine over a per-day store.
package query

import (
	"github.com/neehar-mavuduru/logengine/model"
	"github.com/neehar-mavuduru/logengine/tick"
)

// Order is the sort direction a page is returned in.
type Order int

const (
	Asc Order = iota
	Desc
)

// DefaultPageSize is used when a QueryModel's page size is unset or <= 0.
const DefaultPageSize = 20

// QueryModel is a fluent filter builder for KeysetPaginate. Build one with
// New and chain the With* setters; each returns the same *QueryModel so
// calls compose.
type QueryModel struct {
	formatSubstr   *string
	argumentSubstr *string
	callerSubstr   *string
	level          *model.Level
	startTick      *int64
	endTick        *int64
	pageSize       int
	order          Order
	nextCursor     *int64
	prevCursor     *int64
}

// New creates a QueryModel with the default page size and ascending order.
func New() *QueryModel {
	return &QueryModel{pageSize: DefaultPageSize, order: Asc}
}

// WithFormat filters to logs whose format string contains substr.
func (q *QueryModel) WithFormat(substr string) *QueryModel {
	q.formatSubstr = &substr
	return q
}

// WithArgument filters to logs with at least one non-null argument slot
// containing substr. This is a broad OR across all ten
// slots, not a per-index match.
func (q *QueryModel) WithArgument(substr string) *QueryModel {
	q.argumentSubstr = &substr
	return q
}

// WithCaller filters to logs whose caller member name, source file path, or
// stringified source line number contains substr.
func (q *QueryModel) WithCaller(substr string) *QueryModel {
	q.callerSubstr = &substr
	return q
}

// WithLevel restricts to an exact level match.
func (q *QueryModel) WithLevel(l model.Level) *QueryModel {
	q.level = &l
	return q
}

// WithTime sets an inclusive [start, end] tick range. A query is always
// scoped to a single day-store file, so this is a no-op — the
// range is left unset — when start and end fall on different local dates,
// or when start is after end.
func (q *QueryModel) WithTime(start, end int64) *QueryModel {
	if tick.LocalDate(start) != tick.LocalDate(end) || start > end {
		return q
	}
	q.startTick = &start
	q.endTick = &end
	return q
}

// WithPageSize sets the maximum number of items per page. n <= 0 is ignored.
func (q *QueryModel) WithPageSize(n int) *QueryModel {
	if n > 0 {
		q.pageSize = n
	}
	return q
}

// WithOrder sets the sort direction of returned pages.
func (q *QueryModel) WithOrder(o Order) *QueryModel {
	q.order = o
	return q
}

// WithNextCursor requests the page starting at (inclusive of) cursorTick in
// the query's sort direction. Setting a next cursor clears any prev cursor;
// the two are mutually exclusive.
func (q *QueryModel) WithNextCursor(cursorTick int64) *QueryModel {
	q.nextCursor = &cursorTick
	q.prevCursor = nil
	return q
}

// WithPrevCursor requests the page ending at (inclusive of) cursorTick,
// i.e. the page immediately preceding it in the query's sort direction.
// Setting a prev cursor clears any next cursor.
func (q *QueryModel) WithPrevCursor(cursorTick int64) *QueryModel {
	q.prevCursor = &cursorTick
	q.nextCursor = nil
	return q
}

// KeysetPage is one page of results plus the cursors needed to fetch the
// page before or after it.
type KeysetPage struct {
	Items          []*model.Log
	PrevCursorTick *int64
	NextCursorTick *int64
	TotalRecords   int64
}
