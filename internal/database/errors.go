package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Gateway failure classes. Every error leaving a repository is classified
// into exactly one of them (sql.ErrNoRows and context errors pass through).
var (
	// ErrWriteConflict marks transient lock contention; callers may retry.
	ErrWriteConflict = errors.New("write conflict")
	// ErrConnection marks a failure to reach or keep a connection.
	ErrConnection = errors.New("database connection failure")
	// ErrStatement marks any other failure of an issued statement.
	ErrStatement = errors.New("database statement failure")
)

// Error pairs a failure class with the driver error that produced it.
type Error struct {
	class error
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.class, e.cause)
}

// Unwrap exposes both the class and the driver error to errors.Is/As.
func (e *Error) Unwrap() []error {
	return []error{e.class, e.cause}
}

// Class returns the failure class.
func (e *Error) Class() error {
	return e.class
}

// postgres SQLSTATEs signalling lock contention.
var pgConflictStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// mysql error numbers signalling lock contention.
var mysqlConflictNumbers = map[uint16]struct{}{
	1205: {}, // ER_LOCK_WAIT_TIMEOUT
	1213: {}, // ER_LOCK_DEADLOCK
}

// Classify maps a driver error onto the gateway failure classes.
func Classify(err error) error {
	if err == nil ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	switch {
	case IsWriteConflict(err):
		return &Error{class: ErrWriteConflict, cause: err}
	case isConnectionFailure(err):
		return &Error{class: ErrConnection, cause: err}
	default:
		return &Error{class: ErrStatement, cause: err}
	}
}

// IsWriteConflict reports whether err is lock contention raised by the store.
func IsWriteConflict(err error) bool {
	if errors.Is(err, ErrWriteConflict) {
		return true
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		_, ok := pgConflictStates[pgErr.Field('C')]
		return ok
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, ok := mysqlConflictNumbers[myErr.Number]
		return ok
	}
	return false
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return isPGConnectionState(pgErr.Field('C'))
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// isPGConnectionState reports SQLSTATE class 08 (connection exception).
func isPGConnectionState(code string) bool {
	return strings.HasPrefix(code, "08")
}
