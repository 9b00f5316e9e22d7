// Package chat is the notification surface the lifecycle controllers drive.
// It describes messages independently of the chat platform; DiscordDispatcher
// is the production implementation.
package chat

import (
	"context"
	"time"

	"example.com/flightguild/bot/internal/models"
)

// ButtonStyle is the visual weight of a button
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is an interactive control attached to a message
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

// EmbedField is a titled block within an embed
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich card
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
	Timestamp   time.Time
}

// Message is a platform-neutral outgoing message
type Message struct {
	Content string
	Embeds  []Embed
	Buttons []Button
}

// Text builds a plain text message
func Text(content string) Message {
	return Message{Content: content}
}

// Member is a guild member as seen by the dispatcher
type Member struct {
	ID      string
	Tag     string
	RoleIDs []string
}

// HasRole reports whether the member holds roleID
func (m *Member) HasRole(roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Dispatcher sends messages and mutates roles on the chat platform
type Dispatcher interface {
	AddRole(ctx context.Context, memberID, roleID string) error
	RemoveRole(ctx context.Context, memberID, roleID string) error
	FetchMember(ctx context.Context, memberID string) (*Member, error)
	SendDirectMessage(ctx context.Context, userID string, msg Message) error
	SendChannelMessage(ctx context.Context, channelID string, msg Message) (models.MessageRef, error)
	EditMessage(ctx context.Context, ref models.MessageRef, msg Message) error
	DeleteMessage(ctx context.Context, ref models.MessageRef) error
	MessageExists(ctx context.Context, ref models.MessageRef) (bool, error)
}
