package services

import (
	"context"
	"fmt"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/audit"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/repositories"
	"example.com/flightguild/bot/internal/scheduler"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// BanService owns the timed ban lifecycle. The store is authoritative; the role swap and
// the re-entry notice are best-effort and only logged when they fail.
type BanService struct {
	store      repositories.BanStore
	scheduler  scheduler.Scheduler
	dispatcher chat.Dispatcher
	clock      clockwork.Clock
	roles      config.RolesConfig
	repentID   string
	audit      audit.Sink
	metrics    *metrics.Metrics
	locks      *keyedMutex
}

// NewBanService creates a new ban service
func NewBanService(
	store repositories.BanStore,
	sched scheduler.Scheduler,
	dispatcher chat.Dispatcher,
	clock clockwork.Clock,
	roles config.RolesConfig,
	channels config.ChannelsConfig,
	sink audit.Sink,
	m *metrics.Metrics,
) *BanService {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &BanService{
		store:      store,
		scheduler:  sched,
		dispatcher: dispatcher,
		clock:      clock,
		roles:      roles,
		repentID:   channels.Repent,
		audit:      sink,
		metrics:    m,
		locks:      newKeyedMutex(),
	}
}

func banKey(subjectID string) string {
	return "ban:" + subjectID
}

// ApplyBan bans subjectID for durationMinutes. Re-banning replaces the expiry and the pending reversal.
// The ban is in force once the store accepted it, whatever happens to the role swap.
func (s *BanService) ApplyBan(ctx context.Context, subjectID, actorID string, durationMinutes int) (models.BanRecord, error) {
	if durationMinutes <= 0 {
		return models.BanRecord{}, errors.Wrapf(apperrors.ErrInvalidDuration, "%d minutes", durationMinutes)
	}
	if subjectID == "" {
		return models.BanRecord{}, errors.Wrap(apperrors.ErrInvalidInput, "missing subject")
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	// the file store keeps milliseconds
	now := s.clock.Now().UTC()
	record := models.BanRecord{
		SubjectID: subjectID,
		ExpiresAt: now.Add(time.Duration(durationMinutes) * time.Minute).Truncate(time.Millisecond),
	}

	if err := s.store.Put(ctx, subjectID, record.ExpiresAt); err != nil {
		return models.BanRecord{}, errors.Wrapf(err, "failed to persist ban of %s", subjectID)
	}
	s.armReversal(subjectID, record.ExpiresAt)

	s.enforce(ctx, subjectID)
	s.record(ctx, audit.Entry{Kind: audit.BanApplied, SubjectID: subjectID, ActorID: actorID, ExpiresAt: record.ExpiresAt})
	s.metrics.IncrementCounter(metrics.BansApplied)

	log.Info().
		Str("subject_id", subjectID).
		Str("actor_id", actorID).
		Int("duration_minutes", durationMinutes).
		Time("expires_at", record.ExpiresAt).
		Msg("Ban applied")

	return record, nil
}

// Reverse ends the ban of subjectID now. Only the store removal can fail the call.
func (s *BanService) Reverse(ctx context.Context, subjectID string) error {
	unlock := s.locks.Lock(subjectID)
	defer unlock()
	return s.reverseLocked(ctx, subjectID, audit.Entry{Kind: audit.BanReversed, SubjectID: subjectID})
}

// Revoke lifts an active ban before its expiry
func (s *BanService) Revoke(ctx context.Context, subjectID, actorID string) error {
	unlock := s.locks.Lock(subjectID)
	defer unlock()

	_, ok, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return errors.Wrapf(err, "failed to read ban of %s", subjectID)
	}
	if !ok {
		return errors.Wrapf(apperrors.ErrNotFound, "no ban for %s", subjectID)
	}

	if err := s.reverseLocked(ctx, subjectID, audit.Entry{Kind: audit.BanRevoked, SubjectID: subjectID, ActorID: actorID}); err != nil {
		return err
	}
	s.metrics.IncrementCounter(metrics.BansRevoked)
	return nil
}

// IsActive reports whether subjectID is banned at the current instant
func (s *BanService) IsActive(ctx context.Context, subjectID string) (bool, error) {
	return s.store.IsActive(ctx, subjectID, s.clock.Now())
}

// List returns the bans still in force
func (s *BanService) List(ctx context.Context) ([]models.BanRecord, error) {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	active := make([]models.BanRecord, 0, len(records))
	for _, r := range records {
		if r.IsActive(now) {
			active = append(active, r)
		}
	}
	s.metrics.SetGauge(metrics.BansActive, int64(len(active)))
	return active, nil
}

// ReconcileOnStartup reverses every persisted ban that has already expired and re-arms the
// reversal of the others. A corrupt store is returned as is; the bot must not start on it.
func (s *BanService) ReconcileOnStartup(ctx context.Context) error {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load bans")
	}

	var reversed, rearmed int
	for _, r := range records {
		switch s.reconcile(ctx, r.SubjectID) {
		case reconcileRearmed:
			rearmed++
		case reconcileReversed:
			reversed++
		}
	}

	s.metrics.SetGauge(metrics.BansActive, int64(rearmed))
	log.Info().Int("reversed", reversed).Int("rearmed", rearmed).Msg("Bans reconciled")
	return nil
}

type reconcileOutcome int

const (
	reconcileSkipped reconcileOutcome = iota
	reconcileRearmed
	reconcileReversed
)

// reconcile decides from the record as stored once the subject lock is held, since a ban
// may have been applied or lifted after LoadAll.
func (s *BanService) reconcile(ctx context.Context, subjectID string) reconcileOutcome {
	unlock := s.locks.Lock(subjectID)
	defer unlock()

	record, ok, err := s.store.Get(ctx, subjectID)
	if err != nil {
		log.Error().Err(err).Str("subject_id", subjectID).Msg("Failed to read ban during reconciliation")
		return reconcileSkipped
	}
	if !ok {
		return reconcileSkipped
	}
	if record.IsActive(s.clock.Now()) {
		s.armReversal(subjectID, record.ExpiresAt)
		return reconcileRearmed
	}

	if err := s.reverseLocked(ctx, subjectID, audit.Entry{Kind: audit.BanReversed, SubjectID: subjectID}); err != nil {
		log.Error().Err(err).Str("subject_id", subjectID).Msg("Failed to reverse expired ban")
		return reconcileSkipped
	}
	return reconcileReversed
}

func (s *BanService) armReversal(subjectID string, at time.Time) {
	if err := s.scheduler.Schedule(banKey(subjectID), at, s.expire(subjectID)); err != nil {
		// the record stays authoritative; the next startup reconciles it
		log.Error().Err(err).Str("subject_id", subjectID).Time("at", at).Msg("Failed to schedule ban reversal")
	}
}

// expire is the scheduled reversal. It re-reads the store, so a callback left over from a
// replaced ban does nothing.
func (s *BanService) expire(subjectID string) scheduler.Task {
	return func(ctx context.Context) {
		unlock := s.locks.Lock(subjectID)
		defer unlock()

		record, ok, err := s.store.Get(ctx, subjectID)
		if err != nil {
			log.Error().Err(err).Str("subject_id", subjectID).Msg("Failed to read ban at expiry")
			return
		}
		if !ok {
			return
		}
		if record.IsActive(s.clock.Now()) {
			log.Debug().Str("subject_id", subjectID).Time("expires_at", record.ExpiresAt).Msg("Stale ban reversal ignored")
			return
		}

		if err := s.reverseLocked(ctx, subjectID, audit.Entry{Kind: audit.BanReversed, SubjectID: subjectID}); err != nil {
			log.Error().Err(err).Str("subject_id", subjectID).Msg("Failed to reverse ban")
		}
	}
}

func (s *BanService) reverseLocked(ctx context.Context, subjectID string, entry audit.Entry) error {
	s.scheduler.Cancel(banKey(subjectID))

	if err := s.store.Remove(ctx, subjectID); err != nil {
		return errors.Wrapf(err, "failed to remove ban of %s", subjectID)
	}

	s.restore(ctx, subjectID)
	s.notifyRepent(ctx, subjectID)
	s.record(ctx, entry)
	s.metrics.IncrementCounter(metrics.BansReversed)

	log.Info().Str("subject_id", subjectID).Msg("Ban reversed")
	return nil
}

// enforce swaps the member role for the ban role
func (s *BanService) enforce(ctx context.Context, subjectID string) {
	member, err := s.dispatcher.FetchMember(ctx, subjectID)
	if err != nil {
		s.sideEffectFailed(err, subjectID, "Could not fetch member to apply ban roles")
		return
	}
	if member.HasRole(s.roles.Member) {
		if err := s.dispatcher.RemoveRole(ctx, subjectID, s.roles.Member); err != nil {
			s.sideEffectFailed(err, subjectID, "Could not remove member role")
		}
	}
	if s.roles.Ban != "" {
		if err := s.dispatcher.AddRole(ctx, subjectID, s.roles.Ban); err != nil {
			s.sideEffectFailed(err, subjectID, "Could not add ban role")
		}
	}
}

// restore removes the ban role if the member still holds it
func (s *BanService) restore(ctx context.Context, subjectID string) {
	member, err := s.dispatcher.FetchMember(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.sideEffectFailed(err, subjectID, "Could not fetch member to lift ban role")
		}
		return
	}
	if !member.HasRole(s.roles.Ban) {
		return
	}
	if err := s.dispatcher.RemoveRole(ctx, subjectID, s.roles.Ban); err != nil {
		s.sideEffectFailed(err, subjectID, "Could not remove ban role")
	}
}

func (s *BanService) notifyRepent(ctx context.Context, subjectID string) {
	if s.repentID == "" {
		return
	}
	msg := chat.Text(fmt.Sprintf("<@%s> can take part again! (please request the member role again)", subjectID))
	if _, err := s.dispatcher.SendChannelMessage(ctx, s.repentID, msg); err != nil {
		s.sideEffectFailed(err, subjectID, "Could not send re-entry notice")
	}
}

func (s *BanService) sideEffectFailed(err error, subjectID, msg string) {
	s.metrics.IncrementCounter(metrics.SideEffectFailures)
	log.Warn().Err(err).Str("subject_id", subjectID).Msg(msg)
}

func (s *BanService) record(ctx context.Context, entry audit.Entry) {
	entry.At = s.clock.Now().UTC()
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("kind", string(entry.Kind)).Msg("Failed to record audit entry")
	}
}
