package sqlxrepos

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
)

// whereClause accumulates AND-ed conditions with positional args.
type whereClause struct {
	conds []string
	args  []interface{}
}

// add appends `cond`, where `?` is replaced by the next positional placeholder.
func (w *whereClause) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func orderBy(ordering []core.DBOrdering, columns map[string]string, fallback string) string {
	mapped := core.MapOrderings(ordering, columns)
	if len(mapped) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, 0, len(mapped)+1)
	for _, ord := range mapped {
		parts = append(parts, ord.String())
	}
	parts = append(parts, "id ASC") // deterministic pagination
	return " ORDER BY " + strings.Join(parts, ", ")
}

// trapNoRowsErr maps psql "no rows" err to `notFound`
func trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}
