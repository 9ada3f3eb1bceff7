package contact

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"linkid/pkg/platform/sentinel"
)

// SQLSTATE codes that mean the transaction lost a race and can be rerun.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateAdminShutdown        = "57P01"
	sqlStateCannotConnectNow     = "57P03"
	sqlStateClassConnection      = "08"
)

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// classifyError tags driver errors with the sentinel the service retries on.
// Errors that are not transient are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	code := sqlState(err)
	switch {
	case code == sqlStateSerializationFailure,
		code == sqlStateDeadlockDetected,
		code == sqlStateLockNotAvailable:
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	case strings.HasPrefix(code, sqlStateClassConnection),
		code == sqlStateAdminShutdown,
		code == sqlStateCannotConnectNow:
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
