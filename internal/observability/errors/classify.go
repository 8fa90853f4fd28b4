package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// Postgres errors are tagged by error class; other errors are unwrapped until
// the innermost concrete type is found and converted to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return classifyPgError(pgErr)
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

// classifyPgError buckets Postgres errors by SQLSTATE class so dashboards can
// separate contention and connectivity from data-shape problems.
func classifyPgError(pgErr *pgconn.PgError) string {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return "pg_unique_violation"
	case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return "pg_constraint_violation"
	case pgerrcode.IsConnectionException(pgErr.Code):
		return "pg_connection"
	case pgerrcode.IsTransactionRollback(pgErr.Code):
		return "pg_transaction_rollback"
	case pgerrcode.IsInsufficientResources(pgErr.Code):
		return "pg_insufficient_resources"
	case pgErr.Code == "":
		return "pg_unknown"
	default:
		return "pg_" + pgErr.Code
	}
}
