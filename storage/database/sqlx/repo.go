// Package sqlxrepos implements the core repositories on postgres through sqlx.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core"
)

// repo is embedded by every repository.
type repo struct {
	db core.DB
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.db
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// validID reports whether id can be compared to a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validIDs drops the ids that can't be UUIDs
func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func orderBy(ordering []core.DBOrdering, def string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + def
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

// where accumulates "?" conditions; queries built with it go through rebind.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}
