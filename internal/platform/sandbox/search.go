package sandbox

import (
	"fmt"
	"strings"

	"github.com/bharatemr/practice/internal/platform/query"
)

// searchQuery builds the WHERE, ORDER BY and LIMIT clauses of a list
// query with numbered placeholders.
type searchQuery struct {
	from    string
	cols    string
	where   string
	args    []any
	idx     int
	orderBy string
}

func newSearchQuery(from, cols string) *searchQuery {
	return &searchQuery{from: from, cols: cols, idx: 1}
}

// Idx returns the next available parameter index.
func (q *searchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *searchQuery) Add(clause string, args ...any) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddEq matches column exactly.
func (q *searchQuery) AddEq(column string, value any) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// AddContains matches value case-insensitively anywhere in any of columns.
func (q *searchQuery) AddContains(value string, columns ...string) {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(value)+"%")
}

// OrderBy sets the ORDER BY from a whitelisted sort key. Unknown keys fall
// back to fallback.
func (q *searchQuery) OrderBy(key string, dir query.Direction, columns map[string]string, fallback string) {
	col, ok := columns[key]
	if !ok {
		col = fallback
	}
	d := "ASC"
	if dir == query.Desc {
		d = "DESC"
	}
	q.orderBy = fmt.Sprintf("%s %s, %s", col, d, columns["id"])
}

func (q *searchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.from, q.where)
}

func (q *searchQuery) CountArgs() []any {
	return q.args
}

func (q *searchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.from, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

func (q *searchQuery) DataArgs(limit, offset int) []any {
	out := make([]any, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
