package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventDraftAndLifecycleStatesCoexist(t *testing.T) {
	draft := EventDraft{Departure: "EGLL", Arrival: "KJFK", Route: "DCT", CreatorID: "1"}
	require.Equal(t, "EGLL", draft.Departure)

	event := &GroupEvent{State: EventStateDraft}
	require.True(t, event.Cancellable())
	require.Equal(t, EventState("draft"), EventStateDraft)
}

func TestCancellableByState(t *testing.T) {
	cases := map[EventState]bool{
		EventStateDraft:     true,
		EventStatePublished: true,
		EventStateReminded:  true,
		EventStateStarted:   false,
	}
	for state, want := range cases {
		event := &GroupEvent{State: state}
		require.Equal(t, want, event.Cancellable(), string(state))
	}
}

func TestCloneCopiesParticipantsAndRef(t *testing.T) {
	event := &GroupEvent{
		Participants:    map[string]struct{}{"1": {}},
		AnnouncementRef: &MessageRef{ChannelID: "c", MessageID: "m"},
	}
	c := event.Clone()
	c.Participants["2"] = struct{}{}
	c.AnnouncementRef.MessageID = "other"

	require.False(t, event.HasParticipant("2"))
	require.Equal(t, "m", event.AnnouncementRef.MessageID)
}
