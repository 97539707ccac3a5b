// Shared leaf types: vectors, telemetry records, setpoints, flight-log rows.
package telemetry

import (
	"math"
	"os"
	"time"
)

// Vec3 is a position or velocity in the mission frame, meters.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Dist returns the Euclidean distance between v and w.
func (v Vec3) Dist(w Vec3) float64 {
	return v.Sub(w).Norm()
}

// ClampNorm limits the length of v to max, preserving direction.
func (v Vec3) ClampNorm(max float64) Vec3 {
	n := v.Norm()
	if n <= max || n == 0 {
		return v
	}
	return v.Scale(max / n)
}

// Record is one telemetry sample for a vehicle, as produced by the external
// state-estimation collaborator.
type Record struct {
	VehicleID   int       `json:"vehicle_id"`
	Timestamp   time.Time `json:"ts"`
	Position    Vec3      `json:"position"`
	Velocity    Vec3      `json:"velocity"`
	Battery     float64   `json:"battery"`
	LinkHealthy bool      `json:"link_healthy"`
}

// Setpoint is the per-cycle target state sent to one vehicle. Produced fresh
// every cycle, never persisted.
type Setpoint struct {
	VehicleID int     `json:"vehicle_id"`
	Cycle     uint64  `json:"cycle"`
	Position  Vec3    `json:"position"`
	Velocity  Vec3    `json:"velocity"`
	Yaw       float64 `json:"yaw"`
}

// FlightRow represents one per-cycle flight record for GreptimeDB.
type FlightRow struct {
	MissionID string    `json:"mission_id"` // TAG
	VehicleID string    `json:"vehicle_id"` // TAG
	State     string    `json:"state"`      // FIELD
	Cycle     int64     `json:"cycle"`      // FIELD
	Clock     float64   `json:"clock"`      // FIELD, swarm clock seconds
	CmdX      float64   `json:"cmd_x"`      // FIELD
	CmdY      float64   `json:"cmd_y"`      // FIELD
	CmdZ      float64   `json:"cmd_z"`      // FIELD
	ActX      float64   `json:"act_x"`      // FIELD
	ActY      float64   `json:"act_y"`      // FIELD
	ActZ      float64   `json:"act_z"`      // FIELD
	Battery   float64   `json:"battery"`    // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// Event types recorded to the event log.
const (
	EventCommand    = "command"
	EventTransition = "transition"
	EventFault      = "fault"
)

// EventRow records a swarm-level event: a command broadcast, a state
// transition, or a safety fault.
type EventRow struct {
	MissionID  string    `json:"mission_id"` // TAG
	Type       string    `json:"event_type"` // TAG
	VehicleIDs []string  `json:"vehicle_ids"`
	Detail     string    `json:"detail"`
	Clock      float64   `json:"clock"`
	Timestamp  time.Time `json:"ts"` // TIME INDEX
}

// FlightTableName holds the table name used when writing flight rows to
// GreptimeDB. It defaults to "swarm_flight" but can be overridden via the
// SWARM_FLIGHT_TABLE environment variable.
var FlightTableName = func() string {
	if env := os.Getenv("SWARM_FLIGHT_TABLE"); env != "" {
		return env
	}
	return "swarm_flight"
}()

// EventTableName is the GreptimeDB table for event rows, overridable via
// SWARM_EVENT_TABLE.
var EventTableName = func() string {
	if env := os.Getenv("SWARM_EVENT_TABLE"); env != "" {
		return env
	}
	return "swarm_events"
}()

func (FlightRow) TableName() string {
	return FlightTableName
}

func (EventRow) TableName() string {
	return EventTableName
}
