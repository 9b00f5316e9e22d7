package apperrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestMarkKeepsKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := errors.Wrap(Mark(cause, ErrPersistence), "failed to save ban")

	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "disk full")
	require.Nil(t, Mark(nil, ErrPersistence))
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "", UserMessage(nil))
	require.Equal(t, "You do not have permission to do that.", UserMessage(errors.Wrap(ErrPermissionDenied, "cancel")))
	require.Contains(t, UserMessage(ErrInvalidSchedule), "YYYY-MM-DD HH:MM")
	require.Equal(t, "An internal error occurred.", UserMessage(errors.New("boom")))
}
