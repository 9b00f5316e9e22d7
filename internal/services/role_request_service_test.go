package services

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/repositories"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testDiscord = config.DiscordConfig{GuildID: "guild-1", OwnerID: "owner"}

type requestFixture struct {
	svc      *RoleRequestService
	registry *repositories.RequestRegistry
	bans     *repositories.FileBanStore
	clock    *clockwork.FakeClock
	chat     *MockDispatcher
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	registry := repositories.NewRequestRegistry()
	bans := repositories.NewFileBanStore(filepath.Join(t.TempDir(), "bans.json"))
	d := new(MockDispatcher)
	svc := NewRoleRequestService(registry, bans, d, clock, testDiscord, testRoles, nil, nil)
	return &requestFixture{svc: svc, registry: registry, bans: bans, clock: clock, chat: d}
}

func (f *requestFixture) expectOwnerDM() {
	f.chat.On("SendDirectMessage", mock.Anything, "owner", mock.MatchedBy(func(msg chat.Message) bool {
		return len(msg.Buttons) == 2 &&
			strings.HasPrefix(msg.Buttons[0].CustomID, ApproveReqPrefix) &&
			strings.HasPrefix(msg.Buttons[1].CustomID, DenyReqPrefix)
	})).Return(nil).Once()
}

func TestSubmitMemberRole(t *testing.T) {
	f := newRequestFixture(t)
	f.expectOwnerDM()
	newcomer := &chat.Member{ID: "u1", Tag: "pilot#0001"}

	require.True(t, f.svc.NeedsMemberRole(newcomer))
	req, err := f.svc.Submit(context.Background(), newcomer, testRoles.Member)
	require.NoError(t, err)
	require.Equal(t, "Member", req.RoleName)
	require.Equal(t, "guild-1", req.GuildID)
	require.Equal(t, 1, f.registry.Len())
	f.chat.AssertExpectations(t)
}

func TestSubmitRules(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	member := &chat.Member{ID: "u1", RoleIDs: []string{testRoles.Member}}

	_, err := f.svc.Submit(ctx, member, testRoles.Dev)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = f.svc.Submit(ctx, member, "role-unknown")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	newcomer := &chat.Member{ID: "u2"}
	_, err = f.svc.Submit(ctx, newcomer, "role-a320")
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	withBanRole := &chat.Member{ID: "u3", RoleIDs: []string{testRoles.Ban}}
	_, err = f.svc.Submit(ctx, withBanRole, testRoles.Member)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	require.NoError(t, f.bans.Put(ctx, "u4", testStart.Add(time.Hour)))
	_, err = f.svc.Submit(ctx, &chat.Member{ID: "u4"}, testRoles.Member)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	require.Equal(t, 0, f.registry.Len())
	f.chat.AssertNotCalled(t, "SendDirectMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitDropsRequestWhenOwnerUnreachable(t *testing.T) {
	f := newRequestFixture(t)
	f.chat.On("SendDirectMessage", mock.Anything, "owner", mock.Anything).
		Return(apperrors.Mark(errors.New("cannot send messages to this user"), apperrors.ErrNotification)).Once()

	_, err := f.svc.Submit(context.Background(), &chat.Member{ID: "u1"}, testRoles.Member)
	require.ErrorIs(t, err, apperrors.ErrNotification)
	require.Equal(t, 0, f.registry.Len())
}

func TestApproveFirstDecisionWins(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	f.expectOwnerDM()
	member := &chat.Member{ID: "u1", RoleIDs: []string{testRoles.Member}}

	req, err := f.svc.Submit(ctx, member, "role-a320")
	require.NoError(t, err)
	require.Equal(t, "A320 Captain", req.RoleName)

	_, err = f.svc.Approve(ctx, req.ID, "not-owner")
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	f.chat.On("AddRole", mock.Anything, "u1", "role-a320").Return(nil).Once()
	f.chat.On("SendDirectMessage", mock.Anything, "u1", chat.Text("Your role request has been approved!")).Return(nil).Once()
	_, err = f.svc.Approve(ctx, req.ID, "owner")
	require.NoError(t, err)

	_, err = f.svc.Deny(ctx, req.ID, "owner")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.Approve(ctx, req.ID, "owner")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	f.chat.AssertExpectations(t)
}

func TestApproveReportsRoleFailure(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	req := models.RoleRequest{ID: "r1", UserID: "u1", RoleID: testRoles.Member}
	f.registry.Put(req)

	f.chat.On("AddRole", mock.Anything, "u1", testRoles.Member).
		Return(apperrors.Mark(errors.New("missing permissions"), apperrors.ErrRoleMutation)).Once()

	_, err := f.svc.Approve(ctx, "r1", "owner")
	require.ErrorIs(t, err, apperrors.ErrRoleMutation)
	f.chat.AssertNotCalled(t, "SendDirectMessage", mock.Anything, "u1", mock.Anything)
}

func TestDenyNotifiesMember(t *testing.T) {
	f := newRequestFixture(t)
	f.registry.Put(models.RoleRequest{ID: "r1", UserID: "u1", RoleID: testRoles.Member})

	f.chat.On("SendDirectMessage", mock.Anything, "u1", chat.Text("Your role request has been denied.")).
		Return(apperrors.Mark(errors.New("dms closed"), apperrors.ErrNotification)).Once()

	_, err := f.svc.Deny(context.Background(), "r1", "owner")
	require.NoError(t, err)
	require.Equal(t, 0, f.registry.Len())
	f.chat.AssertExpectations(t)
}

func TestRequestableRolesExcludeElevated(t *testing.T) {
	f := newRequestFixture(t)
	require.Equal(t, []config.Role{{ID: "role-a320", Name: "A320 Captain"}}, f.svc.RequestableRoles())
}

func TestOnMemberJoin(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)

	f.svc.OnMemberJoin(ctx, "other-guild", "u1")
	f.chat.AssertNotCalled(t, "AddRole", mock.Anything, mock.Anything, mock.Anything)

	f.chat.On("AddRole", mock.Anything, "u1", testRoles.Pending).Return(nil).Once()
	f.svc.OnMemberJoin(ctx, "guild-1", "u1")
	f.chat.AssertExpectations(t)
}
