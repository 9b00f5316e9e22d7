package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/audit"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/repositories"
	"example.com/flightguild/bot/internal/scheduler"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Custom id prefixes of the group flight controls
const (
	ConfirmEventPrefix = "confirm_event_"
	JoinEventPrefix    = "group_join_"
	LeaveEventPrefix   = "group_canceljoin_"
	CancelEventPrefix  = "group_cancelevent_"
)

// StartTimeLayout is the accepted start time format, always UTC
const StartTimeLayout = "2006-01-02 15:04"

// ParseStartTime parses "YYYY-MM-DD HH:MM" (or with a T separator) as a UTC instant
func ParseStartTime(input string) (time.Time, error) {
	value := strings.TrimSpace(input)
	if len(value) == len(StartTimeLayout) && value[10] == 'T' {
		value = value[:10] + " " + value[11:]
	}
	t, err := time.ParseInLocation(StartTimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(apperrors.ErrInvalidSchedule, "cannot parse %q", input)
	}
	return t, nil
}

// EventService owns the group flight lifecycle: draft, published, reminded, started,
// and cancellation. Scheduled transitions look the event up again when they fire.
type EventService struct {
	registry     *repositories.EventRegistry
	scheduler    scheduler.Scheduler
	dispatcher   chat.Dispatcher
	clock        clockwork.Clock
	validate     *validator.Validate
	channelID    string
	reminderLead time.Duration
	audit        audit.Sink
	metrics      *metrics.Metrics
	locks        *keyedMutex
}

// NewEventService creates a new event service
func NewEventService(
	registry *repositories.EventRegistry,
	sched scheduler.Scheduler,
	dispatcher chat.Dispatcher,
	clock clockwork.Clock,
	channels config.ChannelsConfig,
	events config.EventsConfig,
	sink audit.Sink,
	m *metrics.Metrics,
) *EventService {
	if sink == nil {
		sink = audit.Nop{}
	}
	lead := events.ReminderLead
	if lead <= 0 {
		lead = 15 * time.Minute
	}
	return &EventService{
		registry:     registry,
		scheduler:    sched,
		dispatcher:   dispatcher,
		clock:        clock,
		validate:     validator.New(),
		channelID:    channels.GroupFlight,
		reminderLead: lead,
		audit:        sink,
		metrics:      m,
		locks:        newKeyedMutex(),
	}
}

func reminderKey(eventID string) string { return "event:" + eventID + ":remind" }

func startKey(eventID string) string { return "event:" + eventID + ":start" }

// CreateDraft validates the submitted fields and stores a draft event.
// A start time in the past is accepted; such an event never reminds or starts.
func (s *EventService) CreateDraft(ctx context.Context, draft models.EventDraft, startInput string) (*models.GroupEvent, error) {
	draft.Departure = strings.TrimSpace(draft.Departure)
	draft.Arrival = strings.TrimSpace(draft.Arrival)
	draft.Route = strings.TrimSpace(draft.Route)

	if err := s.validate.Struct(draft); err != nil {
		return nil, errors.Wrap(apperrors.Mark(err, apperrors.ErrInvalidInput), "invalid event fields")
	}

	startTime, err := ParseStartTime(startInput)
	if err != nil {
		return nil, err
	}

	event := &models.GroupEvent{
		ID:           uuid.NewString(),
		Departure:    draft.Departure,
		Arrival:      draft.Arrival,
		Route:        draft.Route,
		StartTime:    startTime,
		CreatorID:    draft.CreatorID,
		State:        models.EventStateDraft,
		Participants: make(map[string]struct{}),
	}
	if err := s.registry.Create(event); err != nil {
		return nil, err
	}

	if !startTime.After(s.clock.Now()) {
		log.Warn().Str("event_id", event.ID).Time("start_time", startTime).Msg("Draft event starts in the past and will never remind or start")
	}

	s.metrics.IncrementCounter(metrics.EventsDrafted)
	s.metrics.SetGauge(metrics.EventsActive, int64(s.registry.Len()))
	log.Info().Str("event_id", event.ID).Str("creator_id", event.CreatorID).Time("start_time", startTime).Msg("Event draft created")

	return event, nil
}

// Publish posts the announcement of a draft and arms its reminder and start.
// Only the creator may publish; a transition already in the past is not armed.
func (s *EventService) Publish(ctx context.Context, eventID, requesterID string) (*models.GroupEvent, error) {
	unlock := s.locks.Lock(eventID)
	defer unlock()

	event, ok := s.registry.Get(eventID)
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "event %s", eventID)
	}
	if event.CreatorID != requesterID {
		return nil, errors.Wrapf(apperrors.ErrPermissionDenied, "member %s did not create event %s", requesterID, eventID)
	}
	if event.State != models.EventStateDraft {
		return nil, errors.Wrapf(apperrors.ErrInvalidState, "event %s is %s", eventID, event.State)
	}

	ref, err := s.dispatcher.SendChannelMessage(ctx, s.channelID, AnnouncementMessage(event, false))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to announce event %s", eventID)
	}

	now := s.clock.Now()
	reminderAt := event.StartTime.Add(-s.reminderLead)

	published, err := s.registry.Update(eventID, func(e *models.GroupEvent) error {
		e.State = models.EventStatePublished
		e.AnnouncementRef = &ref
		e.ReminderKey = ""
		e.StartKey = ""
		if reminderAt.After(now) {
			e.ReminderKey = reminderKey(eventID)
		}
		if e.StartTime.After(now) {
			e.StartKey = startKey(eventID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if published.ReminderKey != "" {
		if err := s.scheduler.Schedule(published.ReminderKey, reminderAt, s.reminderTask(eventID)); err != nil {
			log.Error().Err(err).Str("event_id", eventID).Msg("Failed to schedule event reminder")
		}
	}
	if published.StartKey != "" {
		if err := s.scheduler.Schedule(published.StartKey, published.StartTime, s.startTask(eventID)); err != nil {
			log.Error().Err(err).Str("event_id", eventID).Msg("Failed to schedule event start")
		}
	}

	s.record(ctx, audit.Entry{Kind: audit.EventPublished, EventID: eventID, ActorID: requesterID})
	s.metrics.IncrementCounter(metrics.EventsPublished)
	log.Info().
		Str("event_id", eventID).
		Bool("reminder_armed", published.ReminderKey != "").
		Bool("start_armed", published.StartKey != "").
		Msg("Event published")

	return published, nil
}

// Join adds memberID to the participants; joining twice is a no-op
func (s *EventService) Join(ctx context.Context, eventID, memberID string) (*models.GroupEvent, error) {
	unlock := s.locks.Lock(eventID)
	defer unlock()
	return s.registry.AddParticipant(eventID, memberID)
}

// Leave removes memberID from the participants; leaving without joining is a no-op
func (s *EventService) Leave(ctx context.Context, eventID, memberID string) (*models.GroupEvent, error) {
	unlock := s.locks.Lock(eventID)
	defer unlock()
	return s.registry.RemoveParticipant(eventID, memberID)
}

// Get returns a copy of the event
func (s *EventService) Get(eventID string) (*models.GroupEvent, bool) {
	return s.registry.Get(eventID)
}

// Cancel clears the scheduled transitions, removes the event and deletes its announcement.
// The creator and dev/admin members may cancel.
func (s *EventService) Cancel(ctx context.Context, eventID string, requester Requester) error {
	unlock := s.locks.Lock(eventID)
	defer unlock()

	event, ok := s.registry.Get(eventID)
	if !ok {
		return errors.Wrapf(apperrors.ErrNotFound, "event %s", eventID)
	}
	if event.CreatorID != requester.ID && !requester.Elevated {
		return errors.Wrapf(apperrors.ErrPermissionDenied, "member %s cannot cancel event %s", requester.ID, eventID)
	}
	if !event.Cancellable() {
		return errors.Wrapf(apperrors.ErrInvalidState, "event %s is %s", eventID, event.State)
	}

	s.scheduler.Cancel(reminderKey(eventID))
	s.scheduler.Cancel(startKey(eventID))
	s.registry.Delete(eventID)

	if event.AnnouncementRef != nil {
		if err := s.dispatcher.DeleteMessage(ctx, *event.AnnouncementRef); err != nil {
			s.sideEffectFailed(err, eventID, "Could not delete event announcement")
		}
	}

	s.record(ctx, audit.Entry{Kind: audit.EventCancelled, EventID: eventID, ActorID: requester.ID})
	s.metrics.IncrementCounter(metrics.EventsCancelled)
	s.metrics.SetGauge(metrics.EventsActive, int64(s.registry.Len()))
	log.Info().Str("event_id", eventID).Str("actor_id", requester.ID).Msg("Event cancelled")
	return nil
}

// FireReminder sends a direct message to every participant at the time of firing.
// A cancelled event is a no-op; a failed message does not stop the others.
func (s *EventService) FireReminder(ctx context.Context, eventID string) {
	unlock := s.locks.Lock(eventID)
	event, err := s.registry.Update(eventID, func(e *models.GroupEvent) error {
		if e.State != models.EventStatePublished {
			return errors.Wrapf(apperrors.ErrInvalidState, "event %s is %s", eventID, e.State)
		}
		e.State = models.EventStateReminded
		e.ReminderKey = ""
		return nil
	})
	unlock()
	if err != nil {
		log.Debug().Err(err).Str("event_id", eventID).Msg("Reminder skipped")
		return
	}

	msg := chat.Text(fmt.Sprintf(
		"Your group flight starts in %s! Departure: %s, Arrival: %s",
		formatLead(s.reminderLead), event.Departure, event.Arrival,
	))

	var sent, failed int
	for memberID := range event.Participants {
		if err := s.dispatcher.SendDirectMessage(ctx, memberID, msg); err != nil {
			failed++
			s.metrics.IncrementCounter(metrics.RemindersFailed)
			log.Warn().Err(err).Str("event_id", eventID).Str("member_id", memberID).Msg("Could not send event reminder")
			continue
		}
		sent++
		s.metrics.IncrementCounter(metrics.RemindersSent)
	}

	log.Info().Str("event_id", eventID).Int("sent", sent).Int("failed", failed).Msg("Event reminder delivered")
}

// FireStart marks the announcement as in progress and removes its controls.
// The event is not retried or rescheduled if anything is missing.
func (s *EventService) FireStart(ctx context.Context, eventID string) {
	unlock := s.locks.Lock(eventID)
	event, err := s.registry.Update(eventID, func(e *models.GroupEvent) error {
		if e.State != models.EventStatePublished && e.State != models.EventStateReminded {
			return errors.Wrapf(apperrors.ErrInvalidState, "event %s is %s", eventID, e.State)
		}
		e.State = models.EventStateStarted
		e.ReminderKey = ""
		e.StartKey = ""
		return nil
	})
	unlock()
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Start skipped")
		return
	}

	s.record(ctx, audit.Entry{Kind: audit.EventStarted, EventID: eventID})
	s.metrics.IncrementCounter(metrics.EventsStarted)

	if event.AnnouncementRef == nil {
		log.Warn().Str("event_id", eventID).Msg("Started event has no announcement")
		return
	}
	if err := s.dispatcher.EditMessage(ctx, *event.AnnouncementRef, AnnouncementMessage(event, true)); err != nil {
		s.sideEffectFailed(err, eventID, "Could not mark event announcement in progress")
		return
	}
	log.Info().Str("event_id", eventID).Msg("Event started")
}

func (s *EventService) reminderTask(eventID string) scheduler.Task {
	return func(ctx context.Context) { s.FireReminder(ctx, eventID) }
}

func (s *EventService) startTask(eventID string) scheduler.Task {
	return func(ctx context.Context) { s.FireStart(ctx, eventID) }
}

func (s *EventService) sideEffectFailed(err error, eventID, msg string) {
	s.metrics.IncrementCounter(metrics.SideEffectFailures)
	log.Warn().Err(err).Str("event_id", eventID).Msg(msg)
}

func (s *EventService) record(ctx context.Context, entry audit.Entry) {
	entry.At = s.clock.Now().UTC()
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("kind", string(entry.Kind)).Msg("Failed to record audit entry")
	}
}

// DraftPreview is the private reply shown to the creator before publishing
func DraftPreview(event *models.GroupEvent) chat.Message {
	return chat.Message{
		Content: fmt.Sprintf(
			"Preview:\nDeparture: %s\nArrival: %s\nRoute: %s\nStart time (UTC): %s",
			event.Departure, event.Arrival, event.Route, event.StartTime.Format(StartTimeLayout),
		),
		Buttons: []chat.Button{
			{CustomID: ConfirmEventPrefix + event.ID, Label: "Confirm and publish", Style: chat.ButtonSuccess},
		},
	}
}

// AnnouncementMessage renders the public card of an event. Once in progress it has no controls.
func AnnouncementMessage(event *models.GroupEvent, inProgress bool) chat.Message {
	embed := chat.Embed{
		Title: "Group Flight",
		Fields: []chat.EmbedField{
			{Name: "Departure", Value: event.Departure, Inline: true},
			{Name: "Arrival", Value: event.Arrival, Inline: true},
			{Name: "Route", Value: event.Route},
			{Name: "Start time", Value: event.StartTime.UTC().Format(time.RFC1123)},
		},
	}
	if inProgress {
		embed.Description = "Event in progress!"
		return chat.Message{Embeds: []chat.Embed{embed}, Buttons: []chat.Button{}}
	}

	return chat.Message{
		Embeds: []chat.Embed{embed},
		Buttons: []chat.Button{
			{CustomID: JoinEventPrefix + event.ID, Label: "Join", Style: chat.ButtonPrimary},
			{CustomID: LeaveEventPrefix + event.ID, Label: "Leave", Style: chat.ButtonSecondary},
			{CustomID: CancelEventPrefix + event.ID, Label: "Cancel event", Style: chat.ButtonDanger},
		},
	}
}

func formatLead(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return d.String()
}
