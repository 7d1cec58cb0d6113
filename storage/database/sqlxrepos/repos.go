// Package sqlxrepos implements the domain repositories over postgres with
// jmoiron/sqlx. Methods that take part in a service transaction accept an
// optional core.DBExecutor override and fall back to the pool.
package sqlxrepos

import (
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mokykla/backend/core"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a 23505 on the given constraint
// (any constraint when empty). Call before wrapping.
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return string(pqErr.Code) == pgUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

func getExec(db *sqlx.DB, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return db.DB
}
