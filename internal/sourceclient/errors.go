// Package sourceclient holds the error classification shared by the
// commerce and ads HTTP clients, so typed errors can be threaded up to
// the dispatcher instead of matched on message substrings.
package sourceclient

import (
	"errors"
	"fmt"

	"commerce-ingest-worker/internal/model"
)

// ErrorKind mirrors the closed set of Sync Run error codes a client can
// produce directly (auth, rate limiting, source outages, malformed
// responses, and the bulk-operation timeout specific to the commerce
// client).
type ErrorKind = model.ErrorCode

// ClassifiedError is what every HTTP client returns instead of a bare
// error, so the dispatcher can read Kind with errors.As rather than
// inspecting message text.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with kind unless it is already a ClassifiedError, in
// which case it is returned unchanged so an inner classification is never
// overwritten by an outer, less specific one.
func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var existing *ClassifiedError
	if errors.As(err, &existing) {
		return existing
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting to worker_error when
// err carries no classification.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return model.ErrWorker
}
