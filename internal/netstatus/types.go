// Package netstatus polls the VATSIM network feed and keeps a status board message
// in the guild up to date. The poller and the board only talk through a channel.
package netstatus

import "time"

// Controller is an online air traffic controller
type Controller struct {
	Callsign  string `json:"callsign"`
	Name      string `json:"name"`
	Frequency string `json:"frequency,omitempty"`
}

// FlightPlan is the filed plan of a pilot
type FlightPlan struct {
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
}

// Pilot is a connected pilot
type Pilot struct {
	Callsign   string      `json:"callsign"`
	FlightPlan *FlightPlan `json:"flight_plan"`
}

// Feed is the part of the VATSIM v3 data feed the bot reads
type Feed struct {
	Controllers []Controller `json:"controllers"`
	Pilots      []Pilot      `json:"pilots"`
}

// Snapshot is the filtered view published to the board
type Snapshot struct {
	Controllers []Controller `json:"controllers"`
	Pilots      []Pilot      `json:"pilots"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// Update is one poll result; exactly one of Snapshot and Err is set
type Update struct {
	Snapshot *Snapshot
	Err      error
}
