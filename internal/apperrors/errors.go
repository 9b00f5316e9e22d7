// Package apperrors holds the error taxonomy shared by the lifecycle controllers.
//
// Errors from authoritative state changes are returned to the initiating request.
// ErrNotification and ErrRoleMutation mark best-effort side effects; they are
// logged where they happen and never returned from a committed operation.
package apperrors

import "github.com/pkg/errors"

var (
	ErrPersistence      = errors.New("persistence failed")
	ErrCorruptState     = errors.New("persisted state is corrupt")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrNotification     = errors.New("notification failed")
	ErrRoleMutation     = errors.New("role mutation failed")
)

// Mark wraps err so that errors.Is(err, kind) holds while keeping the cause message.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return &marked{cause: err, kind: kind}
}

type marked struct {
	cause error
	kind  error
}

func (m *marked) Error() string { return m.kind.Error() + ": " + m.cause.Error() }

func (m *marked) Unwrap() []error { return []error{m.kind, m.cause} }

// UserMessage returns the short denial shown to the requester for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "You do not have permission to do that."
	case errors.Is(err, ErrNotFound):
		return "Not found, or it has already been handled."
	case errors.Is(err, ErrInvalidSchedule):
		return "Invalid time. Use the format YYYY-MM-DD HH:MM (UTC)."
	case errors.Is(err, ErrInvalidDuration):
		return "The duration must be a positive number of minutes."
	case errors.Is(err, ErrInvalidInput):
		return "Some fields are missing or too long."
	case errors.Is(err, ErrInvalidState):
		return "That action is no longer possible."
	case errors.Is(err, ErrPersistence):
		return "Could not save the change, nothing was applied."
	case errors.Is(err, ErrNotification):
		return "Could not deliver the message."
	default:
		return "An internal error occurred."
	}
}
