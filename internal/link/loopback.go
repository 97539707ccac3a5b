package link

import (
	"math/rand"
	"sync"
	"time"

	"swarmctl/internal/config"
	"swarmctl/internal/telemetry"
)

// simVehicle is the integrated physics state of one simulated vehicle.
type simVehicle struct {
	position telemetry.Vec3
	velocity telemetry.Vec3
	battery  float64
	record   telemetry.Record
	hasRec   bool
}

// Loopback simulates the fleet in-process: each Send integrates the vehicle
// one cycle toward the commanded setpoint and synthesizes telemetry. Used for
// simulated flights and tests.
type Loopback struct {
	mu       sync.Mutex
	vehicles map[int]*simVehicle
	dt       float64
	maxSpeed float64
	noise    float64
	dropRate float64
	rand     *rand.Rand
	now      func() time.Time
}

// NewLoopback creates a simulated fleet at the roster home positions. dt is
// the dispatch cycle period in seconds.
func NewLoopback(roster []config.Vehicle, sim config.Sim, dt float64) *Loopback {
	l := &Loopback{
		vehicles: make(map[int]*simVehicle, len(roster)),
		dt:       dt,
		maxSpeed: sim.MaxSpeedMS,
		noise:    sim.DisturbanceSize,
		dropRate: sim.DropRate,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, v := range roster {
		sv := &simVehicle{
			position: telemetry.Vec3{X: v.Home.X, Y: v.Home.Y, Z: v.Home.Z},
			battery:  100,
		}
		sv.record = l.makeRecord(v.ID, sv)
		sv.hasRec = true
		l.vehicles[v.ID] = sv
	}
	return l
}

// Send integrates the vehicle toward the setpoint for one cycle. A configured
// drop rate silently loses commands, like the real radio.
func (l *Loopback) Send(vehicleID int, sp telemetry.Setpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sv, ok := l.vehicles[vehicleID]
	if !ok {
		return
	}
	if l.dropRate > 0 && l.rand.Float64() < l.dropRate {
		return
	}

	// Steer toward the target position, falling back to the commanded
	// velocity when the setpoint is velocity-only (safe-stop descent).
	vel := sp.Position.Sub(sv.position).Scale(1 / l.dt)
	if sp.Position == (telemetry.Vec3{}) && sp.Velocity != (telemetry.Vec3{}) {
		vel = sp.Velocity
	}
	vel = vel.ClampNorm(l.maxSpeed)
	if l.noise > 0 {
		vel = vel.Add(telemetry.Vec3{
			X: l.rand.NormFloat64() * l.noise,
			Y: l.rand.NormFloat64() * l.noise,
			Z: l.rand.NormFloat64() * l.noise,
		})
	}
	sv.position = sv.position.Add(vel.Scale(l.dt))
	if sv.position.Z < 0 {
		sv.position.Z = 0
	}
	sv.velocity = vel
	sv.battery -= 0.001
	if sv.battery < 0 {
		sv.battery = 0
	}
	sv.record = l.makeRecord(vehicleID, sv)
	sv.hasRec = true
}

// PollTelemetry returns the most recent synthesized record without blocking.
func (l *Loopback) PollTelemetry(vehicleID int) (telemetry.Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sv, ok := l.vehicles[vehicleID]
	if !ok || !sv.hasRec {
		return telemetry.Record{}, false
	}
	return sv.record, true
}

// Position returns the integrated position, for tests.
func (l *Loopback) Position(vehicleID int) telemetry.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sv, ok := l.vehicles[vehicleID]; ok {
		return sv.position
	}
	return telemetry.Vec3{}
}

func (l *Loopback) makeRecord(vehicleID int, sv *simVehicle) telemetry.Record {
	return telemetry.Record{
		VehicleID:   vehicleID,
		Timestamp:   l.now(),
		Position:    sv.position,
		Velocity:    sv.velocity,
		Battery:     sv.battery,
		LinkHealthy: true,
	}
}
