package jobs

import (
	"errors"
	"fmt"
)

// retryableError marks a job failure as transient so the runner re-fires
// the handler after backoff.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.err)
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable wraps an error to signal the runner that the firing should be
// retried with backoff. Wrapping nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether the error carries the retry signal.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}
