package store

import (
	"fmt"
	"strings"
	"time"
)

// List page sizes are clamped to this range.
const (
	MinPageSize = 1
	MaxPageSize = 100
)

// MaxBulkIDs bounds the number of ids accepted by a single bulk mutation.
const MaxBulkIDs = 1000

// ListFilter describes pagination, search, filtering, and sorting for
// credential listings. SortField is matched against a per-table allow-list
// and mapped to a fixed ORDER BY clause; caller-supplied strings are never
// interpolated into SQL.
type ListFilter struct {
	Page        int
	PageSize    int
	Search      string
	Active      *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SortField   string
	SortOrder   string // "asc" or "desc"
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < MinPageSize {
		f.PageSize = 25
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		f.SortOrder = "desc"
	}
}

// orderClause maps the requested sort field through the allow-list. Unknown
// fields fall back to the table's default column rather than erroring, so
// listings never 500 on a stale client; the allow-list is what matters.
func (f *ListFilter) orderClause(allowed map[string]string, def string) string {
	col, ok := allowed[f.SortField]
	if !ok {
		col = def
	}
	dir := "DESC"
	if f.SortOrder == "asc" {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", col, dir)
}

// buildWhere assembles the shared WHERE fragment for credential listings.
// searchCols are the columns matched by substring search.
func (f *ListFilter) buildWhere(searchCols []string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Search != "" {
		like := "%" + f.Search + "%"
		var ors []string
		for _, col := range searchCols {
			ors = append(ors, col+" LIKE ?")
			args = append(args, like)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if f.Active != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *f.Active)
	}
	if f.CreatedFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.CreatedTo.UTC())
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
