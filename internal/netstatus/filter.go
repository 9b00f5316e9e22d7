package netstatus

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Filter keeps controllers whose callsign and pilots whose departure or arrival
// starts with one of the two-letter prefixes, case-insensitively.
func Filter(feed Feed, prefixes []string, now time.Time) Snapshot {
	wanted := lo.Map(prefixes, func(p string, _ int) string { return strings.ToUpper(p) })
	matches := func(code string) bool {
		if len(code) < 2 {
			return false
		}
		return lo.Contains(wanted, strings.ToUpper(code[:2]))
	}

	controllers := lo.Filter(feed.Controllers, func(c Controller, _ int) bool {
		return matches(c.Callsign)
	})
	pilots := lo.Filter(feed.Pilots, func(p Pilot, _ int) bool {
		return p.FlightPlan != nil && (matches(p.FlightPlan.Departure) || matches(p.FlightPlan.Arrival))
	})

	return Snapshot{
		Controllers: controllers,
		Pilots:      pilots,
		FetchedAt:   now.UTC(),
	}
}
