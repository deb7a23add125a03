package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Failure kinds for engine operations. Handlers translate these to transport
// codes; the wrapped message is what callers see.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrAllocationExhausted = errors.New("identifier space exhausted")
	ErrUnavailable         = errors.New("external service unavailable")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// fail tags a human-readable message with a stable failure kind so that
// errors.Is(err, ErrConflict) holds while err.Error() stays clean.
func fail(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// isUniqueViolation recognizes unique-constraint failures from the store.
// These are the last line of defense for concurrent writers racing on
// identity_key / leader_id / short_id; the loser must surface as a conflict,
// never as an internal error. Postgres reports SQLSTATE 23505, the sqlite
// test store reports "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// translateStoreError folds store-level uniqueness violations into the
// conflict kind and leaves everything else untouched.
func translateStoreError(err error, conflictMsg string) error {
	if isUniqueViolation(err) {
		return fail(ErrConflict, conflictMsg)
	}
	return err
}
