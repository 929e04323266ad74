package merge

import (
	"context"
	"errors"
	"fmt"
)

// ErrCanceled marks a job stopped by an external cancellation signal.
var ErrCanceled = errors.New("merge: job canceled")

// InsufficientDataError is returned when a grid lacks a header row or has no
// data rows beneath it.
type InsufficientDataError struct {
	Rows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data in data source: need a header row and at least one data row, got %d row(s)", e.Rows)
}

// TemplateReason classifies why a template could not be fetched.
type TemplateReason string

const (
	TemplateNotFound    TemplateReason = "not-found"
	TemplateUnavailable TemplateReason = "unavailable"
)

// TemplateUnavailableError is returned by a template source on any
// non-success upstream response other than expired credentials.
type TemplateUnavailableError struct {
	TemplateID string
	Reason     TemplateReason
	StatusCode int
	Err        error
}

func (e *TemplateUnavailableError) Error() string {
	msg := fmt.Sprintf("template %q unavailable (%s", e.TemplateID, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", HTTP %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TemplateUnavailableError) Unwrap() error { return e.Err }

// AuthExpiredError signals that the upstream credential is no longer valid.
// Callers surface this as a re-authentication prompt.
type AuthExpiredError struct {
	Source string
}

func (e *AuthExpiredError) Error() string {
	if e.Source == "" {
		return "authentication expired"
	}
	return fmt.Sprintf("authentication expired for %s", e.Source)
}

// ArtifactProductionError wraps a failure to produce the artifact for one
// row. It never aborts the batch.
type ArtifactProductionError struct {
	Sequence int
	Err      error
}

func (e *ArtifactProductionError) Error() string {
	return fmt.Sprintf("produce artifact %d: %v", e.Sequence, e.Err)
}

func (e *ArtifactProductionError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying, such as a network timeout
// or an upstream 429/5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err may succeed on retry. Per-call deadline
// expiry counts as transient; cancellation and expired credentials never do.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || IsAuthExpired(err) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsAuthExpired reports whether err carries an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var ae *AuthExpiredError
	return errors.As(err, &ae)
}

// IsInsufficientData reports whether err carries an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// ErrorKind distinguishes job-level failure causes.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindFatal       ErrorKind = "fatal"
	KindAuthExpired ErrorKind = "auth_expired"
	KindCanceled    ErrorKind = "canceled"
)

// Classify maps a job-level error onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case IsAuthExpired(err):
		return KindAuthExpired
	default:
		return KindFatal
	}
}
