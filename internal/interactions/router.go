package interactions

import (
	"context"
	"fmt"
	"strconv"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/services"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Router maps interactions onto the services
type Router struct {
	bans          *services.BanService
	events        *services.EventService
	requests      *services.RoleRequestService
	announcements *services.AnnouncementService
	roles         config.RolesConfig
}

// NewRouter creates a new router
func NewRouter(
	bans *services.BanService,
	events *services.EventService,
	requests *services.RoleRequestService,
	announcements *services.AnnouncementService,
	roles config.RolesConfig,
) *Router {
	return &Router{
		bans:          bans,
		events:        events,
		requests:      requests,
		announcements: announcements,
		roles:         roles,
	}
}

// Dispatch handles one interaction and returns the reply for its author
func (r *Router) Dispatch(ctx context.Context, in Interaction) Response {
	if in.Member == nil {
		return reply("Unknown user.")
	}
	switch in.Kind {
	case KindCommand:
		return r.command(ctx, in)
	case KindComponent:
		return r.component(ctx, in)
	case KindModal:
		return r.modal(ctx, in)
	default:
		return reply("Unsupported interaction.")
	}
}

func (r *Router) requester(in Interaction) services.Requester {
	return services.Requester{ID: in.Member.ID, Elevated: r.roles.IsElevated(in.Member.RoleIDs)}
}

func (r *Router) command(ctx context.Context, in Interaction) Response {
	switch in.Name {
	case CommandGiveRole:
		return r.giveRole(ctx, in)
	case CommandGroupFlight:
		return Response{Kind: ShowModal, Modal: groupFlightModal()}
	case CommandAnnouncements:
		err := r.announcements.Announce(ctx, r.requester(in), in.Options["channel"], in.Options["message"])
		if err != nil {
			return denied(err, "Announcement rejected")
		}
		return reply("Announcement sent!")
	case CommandBan:
		return r.ban(ctx, in)
	case CommandRevokeBan:
		return r.revokeBan(ctx, in)
	default:
		return reply("Unknown command.")
	}
}

func (r *Router) giveRole(ctx context.Context, in Interaction) Response {
	if err := r.requests.CheckEligible(ctx, in.Member); err != nil {
		if errors.Is(err, apperrors.ErrPermissionDenied) {
			return reply("You are banned and cannot request roles.")
		}
		return denied(err, "Eligibility check failed")
	}

	if r.requests.NeedsMemberRole(in.Member) {
		return Response{
			Kind:    Reply,
			Content: "You need the Member role first. Press to request it:",
			Buttons: []chat.Button{{CustomID: services.RequestMemberID, Label: "Request Member role", Style: chat.ButtonPrimary}},
		}
	}

	roles := r.requests.RequestableRoles()
	if len(roles) == 0 {
		return reply("There are no roles you can request.")
	}
	return Response{
		Kind:    Reply,
		Content: "Choose the role you want to request:",
		Select:  &SelectMenu{CustomID: services.SelectRoleID, Placeholder: "Choose a role", Options: roles},
	}
}

func (r *Router) ban(ctx context.Context, in Interaction) Response {
	if err := services.RequireElevated(r.requester(in)); err != nil {
		return denied(err, "Ban rejected")
	}
	subjectID := in.Options["user"]
	duration, err := strconv.Atoi(in.Options["duration"])
	if err != nil {
		return denied(errors.Wrap(apperrors.ErrInvalidDuration, "duration is not a number"), "Ban rejected")
	}

	record, err := r.bans.ApplyBan(ctx, subjectID, in.Member.ID, duration)
	if err != nil {
		return denied(err, "Ban rejected")
	}
	return reply(fmt.Sprintf("Banned <@%s> for %d minutes, until %s UTC (ban role added).",
		record.SubjectID, duration, record.ExpiresAt.Format(services.StartTimeLayout)))
}

func (r *Router) revokeBan(ctx context.Context, in Interaction) Response {
	if err := services.RequireElevated(r.requester(in)); err != nil {
		return denied(err, "Revoke rejected")
	}
	subjectID := in.Options["user"]
	if err := r.bans.Revoke(ctx, subjectID, in.Member.ID); err != nil {
		return denied(err, "Revoke rejected")
	}
	return reply(fmt.Sprintf("Ban of <@%s> lifted.", subjectID))
}

func (r *Router) component(ctx context.Context, in Interaction) Response {
	switch in.CustomID {
	case services.RequestMemberID:
		return r.submit(ctx, in, r.roles.Member)
	case services.SelectRoleID:
		if len(in.Values) == 0 {
			return update("No role selected.")
		}
		return r.submit(ctx, in, in.Values[0])
	}

	prefix, arg := ParseCustomID(in.CustomID)
	switch prefix {
	case services.ApproveReqPrefix:
		if _, err := r.requests.Approve(ctx, arg, in.Member.ID); err != nil {
			return denied(err, "Approval failed")
		}
		return reply("Request approved.")
	case services.DenyReqPrefix:
		if _, err := r.requests.Deny(ctx, arg, in.Member.ID); err != nil {
			return denied(err, "Denial failed")
		}
		return reply("Request denied.")
	case services.ConfirmEventPrefix:
		if _, err := r.events.Publish(ctx, arg, in.Member.ID); err != nil {
			return denied(err, "Publish rejected")
		}
		return update("The event has been published!")
	case services.JoinEventPrefix:
		if _, err := r.events.Join(ctx, arg, in.Member.ID); err != nil {
			return denied(err, "Join rejected")
		}
		return reply("Joined!")
	case services.LeaveEventPrefix:
		if _, err := r.events.Leave(ctx, arg, in.Member.ID); err != nil {
			return denied(err, "Leave rejected")
		}
		return reply("You left the event.")
	case services.CancelEventPrefix:
		if err := r.events.Cancel(ctx, arg, r.requester(in)); err != nil {
			return denied(err, "Cancel rejected")
		}
		return reply("The event has been cancelled!")
	default:
		return reply("Unknown action.")
	}
}

func (r *Router) submit(ctx context.Context, in Interaction, roleID string) Response {
	if _, err := r.requests.Submit(ctx, in.Member, roleID); err != nil {
		log.Warn().Err(err).Str("member_id", in.Member.ID).Str("role_id", roleID).Msg("Role request rejected")
		if errors.Is(err, apperrors.ErrPermissionDenied) || errors.Is(err, apperrors.ErrInvalidInput) {
			return update(apperrors.UserMessage(err))
		}
		return update("Error sending request.")
	}
	return update("Request sent to owner for approval.")
}

func (r *Router) modal(ctx context.Context, in Interaction) Response {
	if in.CustomID != GroupModalID {
		return reply("Unknown form.")
	}
	draft := models.EventDraft{
		Departure: in.Fields[FieldDep],
		Arrival:   in.Fields[FieldArr],
		Route:     in.Fields[FieldRoute],
		CreatorID: in.Member.ID,
	}
	event, err := r.events.CreateDraft(ctx, draft, in.Fields[FieldTime])
	if err != nil {
		return denied(err, "Draft rejected")
	}
	preview := services.DraftPreview(event)
	return Response{Kind: Reply, Content: preview.Content, Buttons: preview.Buttons}
}

func groupFlightModal() *Modal {
	return &Modal{
		CustomID: GroupModalID,
		Title:    "Create Group Flight",
		Inputs: []TextInput{
			{CustomID: FieldDep, Label: "Departure (ICAO)"},
			{CustomID: FieldArr, Label: "Arrival (ICAO)"},
			{CustomID: FieldRoute, Label: "Route", Paragraph: true},
			{CustomID: FieldTime, Label: "Start time (UTC, YYYY-MM-DD HH:MM)"},
		},
	}
}

// denied logs err and turns it into a short reply
func denied(err error, msg string) Response {
	if errors.Is(err, apperrors.ErrPersistence) || errors.Is(err, apperrors.ErrCorruptState) {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Warn().Err(err).Msg(msg)
	}
	return reply(apperrors.UserMessage(err))
}
