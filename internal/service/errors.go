package service

import (
	"errors"
	"fmt"

	"sostrack/internal/repository"
)

var (
	// ErrInvalidTransition is returned when a batch is not in the status the
	// requested transition starts from. Nothing was written.
	ErrInvalidTransition = errors.New("invalid batch transition")
	// ErrInvalidInput marks requests that fail domain validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWriteFailure wraps a failed atomic commit. The whole logical operation
	// had no effect and may be retried by the caller.
	ErrWriteFailure = errors.New("write failed")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// commitErr classifies a Store.Commit error. Guard failures keep their sentinel;
// anything else is a write failure.
func commitErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrWriteFailure, err)
}
