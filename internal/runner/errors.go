package runner

import (
	"context"
	"errors"
)

// ErrUserCancelled reports a run stopped by SIGINT/SIGTERM.
var ErrUserCancelled = errors.New("synchronization cancelled by user")

// OperationFailedError wraps any other failure of a run. Stack is set when
// the failure was a recovered panic.
type OperationFailedError struct {
	Cause error
	Stack []byte
}

func (e *OperationFailedError) Error() string {
	return "synchronization failed: " + e.Cause.Error()
}

func (e *OperationFailedError) Unwrap() error { return e.Cause }

// Classify tags err as ErrUserCancelled or *OperationFailedError. nil stays
// nil and already classified errors are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationFailedError
	if errors.Is(err, ErrUserCancelled) || errors.As(err, &opErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return ErrUserCancelled
	}
	return &OperationFailedError{Cause: err}
}
