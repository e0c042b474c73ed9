package store

import (
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
)

// ErrDuplicated indicates an attempt with the same checksum already exists.
var ErrDuplicated = errors.New("duplicated package checksum")

// ErrCheckpointNotStarted indicates End or Tell was called before Start.
var ErrCheckpointNotStarted = errors.New("checkpoint not started")

// ErrCheckpointClosed indicates Tell was called after End.
var ErrCheckpointClosed = errors.New("checkpoint already closed")

// SQLite extended result codes for constraint violations.
const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintNotNull    = 1299
)

// IsUniqueViolation reports whether err is a uniqueness constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotNullViolation reports whether err is a not-null constraint failure.
func IsNotNullViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqliteConstraintNotNull
	}
	return strings.Contains(err.Error(), "NOT NULL constraint failed")
}
