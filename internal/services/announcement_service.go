package services

import (
	"context"
	"strings"

	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/chat"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AnnouncementService posts free-form announcements on behalf of dev and admin members
type AnnouncementService struct {
	dispatcher chat.Dispatcher
}

// NewAnnouncementService creates a new announcement service
func NewAnnouncementService(dispatcher chat.Dispatcher) *AnnouncementService {
	return &AnnouncementService{dispatcher: dispatcher}
}

// Announce sends text to channelID
func (s *AnnouncementService) Announce(ctx context.Context, requester Requester, channelID, text string) error {
	if err := RequireElevated(requester); err != nil {
		return err
	}
	if channelID == "" || strings.TrimSpace(text) == "" {
		return errors.Wrap(apperrors.ErrInvalidInput, "announcement needs a channel and a message")
	}
	if _, err := s.dispatcher.SendChannelMessage(ctx, channelID, chat.Text(text)); err != nil {
		return errors.Wrapf(err, "failed to announce in %s", channelID)
	}
	log.Info().Str("actor_id", requester.ID).Str("channel_id", channelID).Msg("Announcement sent")
	return nil
}
