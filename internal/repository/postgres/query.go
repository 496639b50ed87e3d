package postgres

import (
	"fmt"
	"strings"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

var sortColumns = map[domain.SortField]string{
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
	domain.SortByPriority:  "priority_rank",
}

// listQuery holds the count and page queries for a job listing. Both share
// the same WHERE clause and arguments; the page query appends LIMIT/OFFSET.
type listQuery struct {
	count string
	page  string
	args  []any
}

// buildListQuery turns a filter and normalized options into SQL. Ties are
// broken by id so pages never overlap.
func buildListQuery(filter domain.JobFilter, opts domain.ListOptions) listQuery {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Priority != "" {
		add("priority = $%d", string(filter.Priority))
	}
	if filter.CreatedAfter != nil {
		add("created_at > $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at < $%d", *filter.CreatedBefore)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	dir := "DESC"
	if opts.Order == domain.SortAsc {
		dir = "ASC"
	}
	col, ok := sortColumns[opts.Sort]
	if !ok {
		col = "created_at"
	}

	n := len(args)
	page := fmt.Sprintf("SELECT %s FROM video_jobs%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		jobColumns, where, col, dir, dir, n+1, n+2)

	return listQuery{
		count: "SELECT COUNT(*) FROM video_jobs" + where,
		page:  page,
		args:  args,
	}
}
