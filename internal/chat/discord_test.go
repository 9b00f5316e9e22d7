package chat

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func TestToComponentsBuildsOneRow(t *testing.T) {
	components := toComponents([]Button{
		{CustomID: "group_join_1", Label: "Join", Style: ButtonPrimary},
		{CustomID: "group_cancelevent_1", Label: "Cancel event", Style: ButtonDanger},
	})
	require.Len(t, components, 1)

	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)

	cancel := row.Components[1].(discordgo.Button)
	require.Equal(t, "group_cancelevent_1", cancel.CustomID)
	require.Equal(t, discordgo.DangerButton, cancel.Style)
}

func TestToComponentsEmptyClearsControls(t *testing.T) {
	components := toComponents(nil)
	require.NotNil(t, components)
	require.Empty(t, components)
}

func TestToEmbeds(t *testing.T) {
	ts := time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC)
	embeds := toEmbeds([]Embed{{
		Title:     "Group Flight",
		Fields:    []EmbedField{{Name: "Departure", Value: "VVNB", Inline: true}},
		Timestamp: ts,
	}})
	require.Len(t, embeds, 1)
	require.Equal(t, "2099-01-01T10:00:00Z", embeds[0].Timestamp)
	require.True(t, embeds[0].Fields[0].Inline)
}

func TestMemberHasRole(t *testing.T) {
	m := &Member{ID: "1", RoleIDs: []string{"member", "pilot"}}
	require.True(t, m.HasRole("pilot"))
	require.False(t, m.HasRole("ban"))
	require.False(t, m.HasRole(""))
}

func TestMemberFromDiscord(t *testing.T) {
	m := MemberFromDiscord(&discordgo.Member{
		User:  &discordgo.User{ID: "9", Username: "pilot"},
		Roles: []string{"r1"},
	})
	require.Equal(t, "9", m.ID)
	require.Equal(t, []string{"r1"}, m.RoleIDs)
	require.Nil(t, MemberFromDiscord(nil))
}
