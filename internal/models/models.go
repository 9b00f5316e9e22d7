package models

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// BanRecord is an active timed ban of a guild member
type BanRecord struct {
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsActive reports whether the ban is still in force at now
func (b BanRecord) IsActive(now time.Time) bool {
	return b.ExpiresAt.After(now)
}

// BanRow is the postgres representation of a BanRecord
type BanRow struct {
	SubjectID string    `gorm:"primaryKey;column:subject_id" json:"subject_id"`
	EndTime   int64     `gorm:"not null;column:end_time" json:"end_time"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default table name
func (BanRow) TableName() string {
	return "guild_bans"
}

// MessageRef locates a posted message
type MessageRef struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// IsZero reports whether the reference points nowhere
func (r MessageRef) IsZero() bool {
	return r.ChannelID == "" || r.MessageID == ""
}

// EventState is the lifecycle state of a group event
type EventState string

const (
	EventStateDraft     EventState = "draft"
	EventStatePublished EventState = "published"
	EventStateReminded  EventState = "reminded"
	EventStateStarted   EventState = "started"
)

// EventDraft holds the fields submitted when creating a group event
type EventDraft struct {
	Departure string `validate:"required,max=16"`
	Arrival   string `validate:"required,max=16"`
	Route     string `validate:"required,max=1024"`
	CreatorID string `validate:"required"`
}

// GroupEvent is a scheduled group flight
type GroupEvent struct {
	ID              string
	Departure       string
	Arrival         string
	Route           string
	StartTime       time.Time
	CreatorID       string
	State           EventState
	Participants    map[string]struct{}
	AnnouncementRef *MessageRef
	ReminderKey     string
	StartKey        string
}

// HasParticipant reports whether memberID joined the event
func (e *GroupEvent) HasParticipant(memberID string) bool {
	_, ok := e.Participants[memberID]
	return ok
}

// Clone returns a deep copy safe to read outside the registry
func (e *GroupEvent) Clone() *GroupEvent {
	c := *e
	c.Participants = make(map[string]struct{}, len(e.Participants))
	for id := range e.Participants {
		c.Participants[id] = struct{}{}
	}
	if e.AnnouncementRef != nil {
		ref := *e.AnnouncementRef
		c.AnnouncementRef = &ref
	}
	return &c
}

// Cancellable reports whether the event may still be cancelled
func (e *GroupEvent) Cancellable() bool {
	return e.State == EventStateDraft || e.State == EventStatePublished || e.State == EventStateReminded
}

// RoleRequest is a pending request for a guild role awaiting owner approval
type RoleRequest struct {
	ID          string
	UserID      string
	UserTag     string
	RoleID      string
	RoleName    string
	GuildID     string
	RequestedAt time.Time
}

// SetupModels runs migrations for the postgres ban store
func SetupModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&BanRow{}); err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
