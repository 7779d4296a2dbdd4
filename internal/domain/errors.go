package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the job id does not exist (or no longer exists).
	ErrNotFound = errors.New("uvian: job not found")

	// ErrInvalidTransition means the requested transition is not a legal
	// edge from the job's current status.
	ErrInvalidTransition = errors.New("uvian: invalid state transition")

	// ErrConflict means a guarded write lost an optimistic-concurrency
	// race: the stored status no longer matched the expected prior status
	// at write time. Callers should re-fetch and decide.
	ErrConflict = errors.New("uvian: concurrent status change")
)

// ValidationError reports malformed input on a create request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("uvian: invalid %s: %s", e.Field, e.Reason)
}
