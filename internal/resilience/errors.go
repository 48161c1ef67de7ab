package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks err as worth another attempt. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// Postgres SQLSTATEs outside class 08 that clear on their own.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"53300": true, // too_many_connections
}

// Substrings of driver and resolver messages that only survive as text.
var retryableMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"i/o timeout",
	"server closed idle connection",
	"conn closed",
	"database is locked",
	"sqlite_busy",
}

// transientChecks run in order; the first match wins.
var transientChecks = []func(error) bool{
	func(err error) bool {
		var te transientError
		return errors.As(err, &te)
	},
	func(err error) bool {
		var netErr net.Error
		return errors.As(err, &netErr) && netErr.Timeout()
	},
	func(err error) bool {
		return errors.Is(err, syscall.ECONNRESET) ||
			errors.Is(err, syscall.ECONNREFUSED) ||
			errors.Is(err, syscall.ECONNABORTED)
	},
	func(err error) bool {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return strings.HasPrefix(pgErr.Code, "08") || retryableSQLStates[pgErr.Code]
		}
		return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
	},
	func(err error) bool {
		msg := strings.ToLower(err.Error())
		for _, m := range retryableMessages {
			if strings.Contains(msg, m) {
				return true
			}
		}
		return false
	},
}

// IsTransient reports whether err, or anything it wraps, is marked with
// Transient or looks like a timeout, a dropped connection, Postgres lock
// contention or a busy SQLite database.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, check := range transientChecks {
		if check(err) {
			return true
		}
	}
	return false
}
