package storage

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"gorm.io/gorm"

	"fellowship/internal/domain/apperr"
)

var (
	errRecordNotFound   = apperr.NotFound("record not found")
	errDuplicate        = apperr.Conflict("record already exists")
	errMissingRef       = apperr.NotFound("referenced record not found")
	errStoreUnavailable = apperr.New(apperr.ErrUnavailable, "database unavailable")
)

// sqlStater is implemented by pgconn.PgError.
type sqlStater interface {
	SQLState() string
}

// TranslateError maps driver and gorm errors onto the error taxonomy.
// notFound and conflict replace the generic messages when non-nil so callers
// see entity-specific errors (e.g. member.ErrEmailTaken).
// POST: nil stays nil; unclassified errors are returned unchanged
func TranslateError(err error, notFound, conflict *apperr.Error) error {
	if err == nil {
		return nil
	}
	if apperr.Kind(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if notFound != nil {
			return notFound.WithCause(err)
		}
		return errRecordNotFound.WithCause(err)
	case isDuplicate(err):
		if conflict != nil {
			return conflict.WithCause(err)
		}
		return errDuplicate.WithCause(err)
	case isForeignKeyViolation(err):
		return errMissingRef.WithCause(err)
	case isUnavailable(err):
		return errStoreUnavailable.WithCause(err)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr sqlStater
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr sqlStater
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23503" {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr sqlStater
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.SQLState(), "08") {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"database is closed",
		"connection refused",
		"broken pipe",
		"no such host",
		"unable to open database",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
