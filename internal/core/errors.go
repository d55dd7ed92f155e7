package core

import (
	"errors"
	"fmt"
)

// Systemic failures. Any of these ends a job in FAILED.
var (
	ErrUnreadableFile    = errors.New("unreadable file")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoDataRows        = errors.New("file has no data rows")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// Request errors returned by the Service.
var (
	ErrNoFile            = errors.New("no file provided")
	ErrFileTooLarge      = errors.New("file too large")
	ErrTooManyImports    = errors.New("too many imports in progress, please try again later")
	ErrJobNotFound       = errors.New("import job not found")
	ErrUnknownImportType = errors.New("unknown import type")
	ErrJobTerminal       = errors.New("import job already finished")
	ErrCancelled         = errors.New("import cancelled")
	ErrAuditUnavailable  = errors.New("audit log is not queryable")
)

// ErrDuplicateKey is returned by Store.Create when another entity already
// holds one of the record's natural keys.
var ErrDuplicateKey = errors.New("natural key already taken")

// SystemicError is a failure that aborts the whole job, as opposed to a row
// error that only rejects one row.
type SystemicError struct {
	Op  string
	Err error
}

func (e *SystemicError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SystemicError) Unwrap() error { return e.Err }

// Systemic wraps err as a SystemicError. It returns nil for a nil err.
func Systemic(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SystemicError
	if errors.As(err, &se) {
		return err
	}
	return &SystemicError{Op: op, Err: err}
}

// IsSystemic reports whether err aborts a job.
func IsSystemic(err error) bool {
	var se *SystemicError
	return errors.As(err, &se)
}

// storeError marks a Store failure as systemic.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SystemicError{Op: op, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
}
