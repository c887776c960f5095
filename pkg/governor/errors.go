package governor

import (
	"errors"
	"fmt"

	"fara-hq/governor/pkg/action"
)

var (
	// ErrNotFound indicates the action ID does not exist.
	ErrNotFound = errors.New("action not found")

	// ErrUnauthorized indicates a missing or invalid approval token.
	ErrUnauthorized = errors.New("invalid approval token")

	// ErrConflict indicates optimistic-lock retries were exhausted by
	// concurrent writers.
	ErrConflict = errors.New("conflicting concurrent update")
)

// NotExecutableError reports an operation attempted against an action whose
// current status does not permit it.
type NotExecutableError struct {
	Status action.Status
}

func (e *NotExecutableError) Error() string {
	return fmt.Sprintf("action not executable in status %q", e.Status)
}

// ValidationError reports a malformed field in a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
