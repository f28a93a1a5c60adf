package repository

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"finpay-ledger/internal/config"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return Postgres, nil
	case config.DriverSQLite:
		return SQLite, nil
	}
	return Postgres, fmt.Errorf("unsupported database driver %q", driver)
}

func (d Dialect) DriverName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (d Dialect) String() string {
	if d == SQLite {
		return config.DriverSQLite
	}
	return config.DriverPostgres
}

// Rebind rewrites $N placeholders into SQLite's ?N form. Queries are written
// once in Postgres syntax.
func (d Dialect) Rebind(query string) string {
	if d != SQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

// uniqueViolation reports whether err is a unique constraint failure and
// returns the constraint (postgres) or message (sqlite) naming the column.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" { // unique_violation
			return pqErr.Constraint, true
		}
		return "", false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return liteErr.Error(), true
		}
	}
	return "", false
}

// checkViolation reports whether err is a CHECK constraint failure.
func checkViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514" // check_violation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}
