package services

import (
	"example.com/flightguild/bot/internal/apperrors"

	"github.com/pkg/errors"
)

// Requester identifies who initiated an operation
type Requester struct {
	ID string
	// Elevated is true for holders of the dev or admin role
	Elevated bool
}

// RequireElevated rejects requesters without the dev or admin role
func RequireElevated(r Requester) error {
	if !r.Elevated {
		return errors.Wrapf(apperrors.ErrPermissionDenied, "member %s is not dev or admin", r.ID)
	}
	return nil
}
