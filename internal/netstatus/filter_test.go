package netstatus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilterByPrefix(t *testing.T) {
	var feed Feed
	require.NoError(t, json.Unmarshal([]byte(sampleFeed), &feed))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	snapshot := Filter(feed, []string{"VV", "vl", "VD"}, now)

	require.Equal(t, []string{"VVTS_APP", "vlvt_ctr"}, callsigns(snapshot.Controllers))
	require.Len(t, snapshot.Pilots, 2)
	require.Equal(t, "HVN123", snapshot.Pilots[0].Callsign)
	require.Equal(t, "VJC9", snapshot.Pilots[1].Callsign)
	require.Equal(t, now, snapshot.FetchedAt)
}

func TestFilterShortCodes(t *testing.T) {
	feed := Feed{
		Controllers: []Controller{{Callsign: "V"}, {Callsign: ""}},
		Pilots:      []Pilot{{Callsign: "X", FlightPlan: &FlightPlan{Departure: "V", Arrival: ""}}},
	}
	snapshot := Filter(feed, []string{"VV"}, time.Now())
	require.Empty(t, snapshot.Controllers)
	require.Empty(t, snapshot.Pilots)
}

func callsigns(controllers []Controller) []string {
	out := make([]string, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, c.Callsign)
	}
	return out
}
