package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// undefinedTableCode is the Postgres SQLSTATE for "relation does not exist".
const undefinedTableCode = "42P01"

// IsUndefinedTable reports whether err means the queried table does not
// exist. The control table is created out-of-band, so its absence is the
// benign "nothing to correct" case rather than a failure. Both Postgres
// drivers used in this codebase are recognized.
func IsUndefinedTable(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == undefinedTableCode
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == undefinedTableCode
	}

	return false
}
