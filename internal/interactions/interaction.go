// Package interactions routes slash commands, buttons, selects and modal submissions
// to the lifecycle services and turns their results into replies.
package interactions

import (
	"strings"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/services"
)

// Kind is the type of an incoming interaction
type Kind int

const (
	KindCommand Kind = iota + 1
	KindComponent
	KindModal
)

// Interaction is a platform-neutral view of an incoming interaction
type Interaction struct {
	Kind     Kind
	Name     string
	CustomID string
	Values   []string
	Options  map[string]string
	Fields   map[string]string
	GuildID  string
	Member   *chat.Member
}

// ResponseKind says how a response is delivered
type ResponseKind int

const (
	// Reply sends a new private message
	Reply ResponseKind = iota
	// Update replaces the message the component belongs to
	Update
	// ShowModal opens a form
	ShowModal
)

// SelectMenu is a single-choice dropdown
type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []config.Role
}

// TextInput is one field of a modal
type TextInput struct {
	CustomID  string
	Label     string
	Paragraph bool
}

// Modal is a form shown to the user
type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// Response is what the router answers with
type Response struct {
	Kind    ResponseKind
	Content string
	Buttons []chat.Button
	Select  *SelectMenu
	Modal   *Modal
}

func reply(content string) Response {
	return Response{Kind: Reply, Content: content}
}

func update(content string) Response {
	return Response{Kind: Update, Content: content}
}

// Command names
const (
	CommandGiveRole      = "give_role"
	CommandGroupFlight   = "group_flight"
	CommandAnnouncements = "send_announcements"
	CommandBan           = "give_band"
	CommandRevokeBan     = "revoke_band"
)

// Modal and field ids of the group flight form
const (
	GroupModalID = "group_modal"
	FieldDep     = "dep"
	FieldArr     = "arr"
	FieldRoute   = "route"
	FieldTime    = "time"
)

var componentPrefixes = []string{
	services.ConfirmEventPrefix,
	services.LeaveEventPrefix,
	services.CancelEventPrefix,
	services.JoinEventPrefix,
	services.ApproveReqPrefix,
	services.DenyReqPrefix,
}

// ParseCustomID splits a component custom id into its prefix and argument
func ParseCustomID(customID string) (prefix, arg string) {
	for _, p := range componentPrefixes {
		if strings.HasPrefix(customID, p) {
			return p, strings.TrimPrefix(customID, p)
		}
	}
	return customID, ""
}
