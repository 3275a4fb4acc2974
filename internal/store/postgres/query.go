package postgres

import (
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/afrifutures/marketd/internal/domain"
)

// selectQuery assembles the filtered list queries. Arguments are bound by
// name so optional filters can be added in any order.
type selectQuery struct {
	head   string
	conds  []string
	args   pgx.NamedArgs
	order  string
	limit  int
	offset int
}

func selectFrom(table, cols string) *selectQuery {
	return &selectQuery{head: "SELECT " + cols + " FROM " + table, args: pgx.NamedArgs{}}
}

// where adds cond, binding val to @name when name is non-empty.
func (q *selectQuery) where(cond, name string, val any) *selectQuery {
	q.conds = append(q.conds, cond)
	if name != "" {
		q.args[name] = val
	}
	return q
}

// between bounds col by the optional since/until instants, inclusive.
func (q *selectQuery) between(col string, since, until *time.Time) *selectQuery {
	if since != nil {
		q.where(col+" >= @since", "since", since.UTC())
	}
	if until != nil {
		q.where(col+" <= @until", "until", until.UTC())
	}
	return q
}

func (q *selectQuery) orderBy(order string) *selectQuery {
	q.order = order
	return q
}

func (q *selectQuery) page(opts domain.ListOpts) *selectQuery {
	q.limit, q.offset = opts.Limit, opts.Offset
	return q
}

func (q *selectQuery) build() (string, pgx.NamedArgs) {
	var sb strings.Builder
	sb.WriteString(q.head)
	if len(q.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.conds, " AND "))
	}
	if q.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.order)
	}
	if q.limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.offset))
	}
	return sb.String(), q.args
}
