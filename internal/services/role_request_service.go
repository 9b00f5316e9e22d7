package services

import (
	"context"
	"fmt"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/audit"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Custom ids of the role request controls
const (
	RequestMemberID  = "request_member"
	SelectRoleID     = "select_role"
	ApproveReqPrefix = "approve_"
	DenyReqPrefix    = "deny_"
)

// RoleRequestService routes role requests to the guild owner for approval
type RoleRequestService struct {
	registry   *repositories.RequestRegistry
	bans       repositories.BanStore
	dispatcher chat.Dispatcher
	clock      clockwork.Clock
	roles      config.RolesConfig
	guildID    string
	ownerID    string
	audit      audit.Sink
	metrics    *metrics.Metrics
}

// NewRoleRequestService creates a new role request service
func NewRoleRequestService(
	registry *repositories.RequestRegistry,
	bans repositories.BanStore,
	dispatcher chat.Dispatcher,
	clock clockwork.Clock,
	discord config.DiscordConfig,
	roles config.RolesConfig,
	sink audit.Sink,
	m *metrics.Metrics,
) *RoleRequestService {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &RoleRequestService{
		registry:   registry,
		bans:       bans,
		dispatcher: dispatcher,
		clock:      clock,
		roles:      roles,
		guildID:    discord.GuildID,
		ownerID:    discord.OwnerID,
		audit:      sink,
		metrics:    m,
	}
}

// CheckEligible rejects members under an active ban or holding the ban role
func (s *RoleRequestService) CheckEligible(ctx context.Context, member *chat.Member) error {
	if member.HasRole(s.roles.Ban) {
		return errors.Wrapf(apperrors.ErrPermissionDenied, "member %s holds the ban role", member.ID)
	}
	banned, err := s.bans.IsActive(ctx, member.ID, s.clock.Now())
	if err != nil {
		return errors.Wrap(err, "failed to check ban")
	}
	if banned {
		return errors.Wrapf(apperrors.ErrPermissionDenied, "member %s is banned", member.ID)
	}
	return nil
}

// NeedsMemberRole reports whether the member must obtain the member role before any other
func (s *RoleRequestService) NeedsMemberRole(member *chat.Member) bool {
	return !member.HasRole(s.roles.Member) && !member.HasRole(s.roles.Dev) && !member.HasRole(s.roles.Admin)
}

// RequestableRoles returns the configured roles a member may ask for; dev and admin never are
func (s *RoleRequestService) RequestableRoles() []config.Role {
	return lo.Filter(s.roles.Requestable, func(r config.Role, _ int) bool {
		return r.ID != s.roles.Dev && r.ID != s.roles.Admin
	})
}

// Submit stores a request for roleID and asks the owner to decide. If the owner cannot be
// reached the request is dropped and the error returned.
func (s *RoleRequestService) Submit(ctx context.Context, member *chat.Member, roleID string) (models.RoleRequest, error) {
	if err := s.CheckEligible(ctx, member); err != nil {
		return models.RoleRequest{}, err
	}
	if roleID == "" || roleID == s.roles.Dev || roleID == s.roles.Admin {
		return models.RoleRequest{}, errors.Wrapf(apperrors.ErrPermissionDenied, "role %q cannot be requested", roleID)
	}

	roleName, err := s.roleName(member, roleID)
	if err != nil {
		return models.RoleRequest{}, err
	}

	req := models.RoleRequest{
		ID:          uuid.NewString(),
		UserID:      member.ID,
		UserTag:     member.Tag,
		RoleID:      roleID,
		RoleName:    roleName,
		GuildID:     s.guildID,
		RequestedAt: s.clock.Now().UTC(),
	}
	s.registry.Put(req)

	if err := s.dispatcher.SendDirectMessage(ctx, s.ownerID, approvalMessage(req)); err != nil {
		s.registry.Delete(req.ID)
		return models.RoleRequest{}, errors.Wrap(err, "failed to reach the owner")
	}

	s.metrics.SetGauge(metrics.RoleRequestsPending, int64(s.registry.Len()))
	log.Info().Str("request_id", req.ID).Str("member_id", member.ID).Str("role_id", roleID).Msg("Role request submitted")
	return req, nil
}

// Approve grants the requested role. The first decision on a request wins.
func (s *RoleRequestService) Approve(ctx context.Context, requestID, approverID string) (models.RoleRequest, error) {
	req, err := s.take(requestID, approverID)
	if err != nil {
		return models.RoleRequest{}, err
	}

	if err := s.dispatcher.AddRole(ctx, req.UserID, req.RoleID); err != nil {
		return req, errors.Wrapf(err, "failed to grant role %s to %s", req.RoleID, req.UserID)
	}

	if err := s.dispatcher.SendDirectMessage(ctx, req.UserID, chat.Text("Your role request has been approved!")); err != nil {
		log.Warn().Err(err).Str("member_id", req.UserID).Msg("Could not notify member of approval")
	}
	s.record(ctx, audit.Entry{Kind: audit.RoleApproved, SubjectID: req.UserID, ActorID: approverID, RoleID: req.RoleID})
	log.Info().Str("request_id", req.ID).Str("member_id", req.UserID).Str("role_id", req.RoleID).Msg("Role request approved")
	return req, nil
}

// Deny drops the request and tells the member
func (s *RoleRequestService) Deny(ctx context.Context, requestID, approverID string) (models.RoleRequest, error) {
	req, err := s.take(requestID, approverID)
	if err != nil {
		return models.RoleRequest{}, err
	}

	if err := s.dispatcher.SendDirectMessage(ctx, req.UserID, chat.Text("Your role request has been denied.")); err != nil {
		log.Warn().Err(err).Str("member_id", req.UserID).Msg("Could not notify member of denial")
	}
	s.record(ctx, audit.Entry{Kind: audit.RoleDenied, SubjectID: req.UserID, ActorID: approverID, RoleID: req.RoleID})
	log.Info().Str("request_id", req.ID).Str("member_id", req.UserID).Msg("Role request denied")
	return req, nil
}

// OnMemberJoin gives new members of the guild the pending role
func (s *RoleRequestService) OnMemberJoin(ctx context.Context, guildID, userID string) {
	if guildID != s.guildID || s.roles.Pending == "" {
		return
	}
	if err := s.dispatcher.AddRole(ctx, userID, s.roles.Pending); err != nil {
		s.metrics.IncrementCounter(metrics.SideEffectFailures)
		log.Warn().Err(err).Str("member_id", userID).Msg("Could not add pending role")
		return
	}
	log.Info().Str("member_id", userID).Msg("Pending role added to new member")
}

func (s *RoleRequestService) take(requestID, approverID string) (models.RoleRequest, error) {
	if approverID != s.ownerID {
		return models.RoleRequest{}, errors.Wrapf(apperrors.ErrPermissionDenied, "member %s cannot decide role requests", approverID)
	}
	req, ok := s.registry.Take(requestID)
	if !ok {
		return models.RoleRequest{}, errors.Wrapf(apperrors.ErrNotFound, "role request %s", requestID)
	}
	s.metrics.SetGauge(metrics.RoleRequestsPending, int64(s.registry.Len()))
	return req, nil
}

func (s *RoleRequestService) roleName(member *chat.Member, roleID string) (string, error) {
	if roleID == s.roles.Member {
		return "Member", nil
	}
	if s.NeedsMemberRole(member) {
		return "", errors.Wrap(apperrors.ErrPermissionDenied, "the member role is required first")
	}
	role, ok := lo.Find(s.RequestableRoles(), func(r config.Role) bool { return r.ID == roleID })
	if !ok {
		return "", errors.Wrapf(apperrors.ErrInvalidInput, "role %s is not requestable", roleID)
	}
	return role.Name, nil
}

func (s *RoleRequestService) record(ctx context.Context, entry audit.Entry) {
	entry.At = s.clock.Now().UTC()
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("kind", string(entry.Kind)).Msg("Failed to record audit entry")
	}
}

func approvalMessage(req models.RoleRequest) chat.Message {
	return chat.Message{
		Embeds: []chat.Embed{{
			Title:       "Role Request",
			Description: fmt.Sprintf("User %s (%s) requests role %s.", req.UserTag, req.UserID, req.RoleName),
			Timestamp:   req.RequestedAt,
		}},
		Buttons: []chat.Button{
			{CustomID: ApproveReqPrefix + req.ID, Label: "Approve", Style: chat.ButtonSuccess},
			{CustomID: DenyReqPrefix + req.ID, Label: "Deny", Style: chat.ButtonDanger},
		},
	}
}
