package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/casebook/internal/apperr"
)

// wrap annotates a database error with the operation. Errors meaning the
// database itself is unusable are marked systemic so batches stop early.
func wrap(op string, err error) error {
	if IsUnavailable(err) {
		return apperr.Systemic("store: "+op, err)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

// IsUnavailable reports whether err indicates the database cannot serve
// requests at all, as opposed to a problem with one statement.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr,
			sqlite3.ErrFull, sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrReadonly:
			return true
		}
		return false
	}

	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code.Class() {
		case "08", "53", "57", "58":
			return true
		}
		return false
	}

	var ne net.Error
	return errors.As(err, &ne)
}
