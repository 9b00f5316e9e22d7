package services

import (
	"context"
	"testing"

	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAnnounce(t *testing.T) {
	ctx := context.Background()
	d := new(MockDispatcher)
	svc := NewAnnouncementService(d)

	err := svc.Announce(ctx, Requester{ID: "u1"}, "chan-news", "hello")
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	err = svc.Announce(ctx, Requester{ID: "dev", Elevated: true}, "chan-news", "  ")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	d.On("SendChannelMessage", mock.Anything, "chan-news", chat.Text("Fly-in tonight!")).
		Return(models.MessageRef{ChannelID: "chan-news", MessageID: "m1"}, nil).Once()
	require.NoError(t, svc.Announce(ctx, Requester{ID: "dev", Elevated: true}, "chan-news", "Fly-in tonight!"))
	d.AssertExpectations(t)
}
