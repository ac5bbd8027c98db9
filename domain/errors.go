package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation subsystem. Adapters and usecases wrap
// these with fmt.Errorf("...: %w", err) so callers can detect them with
// errors.Is.
var (
	// ErrNotFound means an operation referenced an unknown entity, most
	// commonly a session id after deletion. For sessions it is recoverable
	// by starting a fresh one.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means microphone or media access was refused.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrEmptyResponse means an external service returned success but no
	// usable payload.
	ErrEmptyResponse = errors.New("empty response")

	// ErrCorruptState means persisted local data failed validation on
	// restore. It is always self-healed and never surfaced to the user.
	ErrCorruptState = errors.New("corrupt stored state")
)

// ServiceError represents a non-success response from an external adapter.
type ServiceError struct {
	Service string
	Status  int
	Body    string
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s request failed: %s", e.Service, e.Body)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Body)
}

// IsServiceError reports whether err is (or wraps) a ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
