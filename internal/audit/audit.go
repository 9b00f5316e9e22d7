// Package audit describes moderation and event lifecycle entries and fans them out
// to the configured sinks. Recording is a best-effort side effect.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind names a lifecycle transition
type Kind string

const (
	BanApplied     Kind = "ban.applied"
	BanReversed    Kind = "ban.reversed"
	BanRevoked     Kind = "ban.revoked"
	EventPublished Kind = "event.published"
	EventCancelled Kind = "event.cancelled"
	EventStarted   Kind = "event.started"
	RoleApproved   Kind = "role.approved"
	RoleDenied     Kind = "role.denied"
)

// Entry is one audit record
type Entry struct {
	Kind      Kind      `json:"kind"`
	SubjectID string    `json:"subject_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	RoleID    string    `json:"role_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	At        time.Time `json:"at"`
}

// Sink records audit entries
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards entries
type Nop struct{}

// Record implements Sink
func (Nop) Record(context.Context, Entry) error { return nil }

// Multi records to every sink, logging failures individually
type Multi []Sink

// Record implements Sink; it never fails
func (m Multi) Record(ctx context.Context, entry Entry) error {
	for _, sink := range m {
		if err := sink.Record(ctx, entry); err != nil {
			log.Warn().Err(err).Str("kind", string(entry.Kind)).Msg("Failed to record audit entry")
		}
	}
	return nil
}
