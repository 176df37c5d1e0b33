package permanent

import (
	"errors"
	"fmt"
)

// Error tags a dispatch failure that must not be retried or redelivered.
// Params: wrapped cause.
// Returns: error value recognized by Is anywhere in a wrap chain.
type Error struct {
	Err error
}

func (e Error) Error() string {
	if e.Err == nil {
		return "permanent failure"
	}
	return e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// Mark wraps err as non-retryable; nil stays nil.
func Mark(err error) error {
	if err == nil || Is(err) {
		return err
	}
	return Error{Err: err}
}

// Errorf formats a new non-retryable error; %w verbs are honored.
func Errorf(format string, args ...any) error {
	return Error{Err: fmt.Errorf(format, args...)}
}

// Is reports whether err or any error it wraps is tagged permanent.
// Params: candidate error.
// Returns: true when retrying cannot help.
func Is(err error) bool {
	var tagged Error
	return errors.As(err, &tagged)
}

// Outcome names how a worker should settle a failed delivery.
// Params: delivery error.
// Returns: "ok" for nil, "drop" for permanent errors, "retry" otherwise.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case Is(err):
		return "drop"
	default:
		return "retry"
	}
}
