// Per-vehicle lifecycle state machine and runtime record.
package session

import (
	"errors"
	"fmt"
	"math"

	"swarmctl/internal/config"
	"swarmctl/internal/telemetry"
	"swarmctl/internal/trajectory"
)

// ErrPreconditionNotMet is returned when a command is not legal from the
// session's current state. The state is left unchanged.
var ErrPreconditionNotMet = errors.New("precondition not met")

// State is the lifecycle state of one vehicle.
type State int

const (
	Idle State = iota
	Arming
	TakingOff
	Executing
	Holding
	Landing
	Faulted
)

var stateNames = map[State]string{
	Idle:      "idle",
	Arming:    "arming",
	TakingOff: "taking_off",
	Executing: "executing",
	Holding:   "holding",
	Landing:   "landing",
	Faulted:   "faulted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Airborne reports whether the vehicle is expected to be in the air.
func (s State) Airborne() bool {
	switch s {
	case TakingOff, Executing, Holding, Landing:
		return true
	}
	return false
}

// Session is the mutable runtime record for one vehicle. It is owned by the
// dispatcher and is not safe for concurrent use on its own.
type Session struct {
	Vehicle config.Vehicle

	flight config.Flight
	staleS float64

	state       State
	faultReason string

	traj      *trajectory.Trajectory
	trajStart float64 // swarm clock when Executing began
	pausedAt  float64 // trajectory-relative time captured on pause

	ramp            *trajectory.Trajectory // takeoff or landing ramp
	rampStart       float64
	takeoffHeight   float64
	landingDeadline float64

	lastSetpoint telemetry.Setpoint
	hasSetpoint  bool

	lastTelemetry   telemetry.Record
	lastTelemetryAt float64 // swarm clock at ingestion; -Inf until first sample
	hasTelemetry    bool
}

// New creates an Idle session for one roster vehicle. staleS is the telemetry
// freshness threshold applied to the arm precondition.
func New(vehicle config.Vehicle, flight config.Flight, staleS float64) *Session {
	return &Session{
		Vehicle:         vehicle,
		flight:          flight,
		staleS:          staleS,
		state:           Idle,
		lastTelemetryAt: math.Inf(-1),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// FaultReason returns why the session is Faulted, or "".
func (s *Session) FaultReason() string {
	return s.faultReason
}

// HasTrajectory reports whether a flight path has been assigned.
func (s *Session) HasTrajectory() bool {
	return s.traj != nil
}

// Telemetry returns the last ingested record and whether one exists.
func (s *Session) Telemetry() (telemetry.Record, bool) {
	return s.lastTelemetry, s.hasTelemetry
}

// TelemetryAge returns swarm-clock seconds since the last telemetry sample;
// +Inf when none was ever received.
func (s *Session) TelemetryAge(now float64) float64 {
	return now - s.lastTelemetryAt
}

// LastSetpoint returns the most recently commanded setpoint and whether one
// was ever produced.
func (s *Session) LastSetpoint() (telemetry.Setpoint, bool) {
	return s.lastSetpoint, s.hasSetpoint
}

// Ingest stores a telemetry record. now is the swarm clock at receipt.
func (s *Session) Ingest(rec telemetry.Record, now float64) {
	s.lastTelemetry = rec
	s.lastTelemetryAt = now
	s.hasTelemetry = true
}

// Assign attaches a trajectory. Only legal while grounded.
func (s *Session) Assign(traj *trajectory.Trajectory) error {
	if s.state != Idle && s.state != Arming {
		return fmt.Errorf("%w: vehicle %d cannot accept a trajectory while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	s.traj = traj
	return nil
}

// Arm transitions Idle -> Arming. Requires fresh telemetry.
func (s *Session) Arm(now float64) error {
	if s.state != Idle {
		return fmt.Errorf("%w: vehicle %d cannot arm while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	if s.TelemetryAge(now) > s.staleS {
		return fmt.Errorf("%w: vehicle %d telemetry stale", ErrPreconditionNotMet, s.Vehicle.ID)
	}
	s.state = Arming
	return nil
}

// Takeoff transitions Arming -> TakingOff, planning the built-in vertical
// ramp from the vehicle's current position. The user trajectory is not
// touched.
func (s *Session) Takeoff(now, height, duration float64) error {
	if s.state != Arming {
		return fmt.Errorf("%w: vehicle %d cannot take off while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	from := telemetry.Vec3{X: s.Vehicle.Home.X, Y: s.Vehicle.Home.Y, Z: s.Vehicle.Home.Z}
	if s.hasTelemetry {
		from = s.lastTelemetry.Position
	}
	ramp, err := trajectory.TakeoffRamp(from, 0, height, duration)
	if err != nil {
		return err
	}
	s.ramp = ramp
	s.rampStart = now
	s.takeoffHeight = height
	s.state = TakingOff
	return nil
}

// Start transitions Holding -> Executing from the beginning of the assigned
// trajectory. Used when the vehicle took off without a trajectory and one was
// uploaded before flight, or to restart a completed trajectory.
func (s *Session) Start(now float64) error {
	if s.state != Holding {
		return fmt.Errorf("%w: vehicle %d cannot start while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	if s.traj == nil {
		return fmt.Errorf("%w: vehicle %d has no trajectory", ErrPreconditionNotMet, s.Vehicle.ID)
	}
	s.trajStart = now
	s.state = Executing
	return nil
}

// Pause transitions Executing -> Holding, capturing trajectory progress.
func (s *Session) Pause(now float64) error {
	if s.state != Executing {
		return fmt.Errorf("%w: vehicle %d cannot pause while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	s.pausedAt = now - s.trajStart
	s.state = Holding
	return nil
}

// Resume transitions Holding -> Executing, re-basing the trajectory start so
// that elapsed trajectory time continues without a jump.
func (s *Session) Resume(now float64) error {
	if s.state != Holding {
		return fmt.Errorf("%w: vehicle %d cannot resume while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	if s.traj == nil {
		return fmt.Errorf("%w: vehicle %d has no trajectory", ErrPreconditionNotMet, s.Vehicle.ID)
	}
	s.trajStart = now - s.pausedAt
	s.state = Executing
	return nil
}

// Land transitions any airborne state -> Landing, interpolating a descent
// ramp from the current commanded position.
func (s *Session) Land(now, duration float64) error {
	if !s.state.Airborne() {
		return fmt.Errorf("%w: vehicle %d cannot land while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
	}
	from := s.lastTelemetry.Position
	if s.hasSetpoint {
		from = s.lastSetpoint.Position
	}
	ramp, err := trajectory.LandingRamp(from, s.lastSetpoint.Yaw, 0, duration)
	if err != nil {
		return err
	}
	s.ramp = ramp
	s.rampStart = now
	s.landingDeadline = now + duration + s.flight.LandingTimeoutS
	s.state = Landing
	return nil
}

// Stop forces a non-Idle session into the Faulted safe-stop. Never fails.
func (s *Session) Stop() {
	if s.state == Idle {
		return
	}
	s.fault("operator stop")
}

// Fault forces the session into the absorbing Faulted state.
func (s *Session) Fault(reason string) {
	s.fault(reason)
}

func (s *Session) fault(reason string) {
	if s.state == Faulted {
		return
	}
	s.state = Faulted
	s.faultReason = reason
}

// Reset returns a Faulted session to Idle. The operator confirms physical
// safety out of band; nothing else clears a fault.
func (s *Session) Reset() error {
	if s.state != Faulted {
		return fmt.Errorf("%w: vehicle %d is not faulted", ErrPreconditionNotMet, s.Vehicle.ID)
	}
	s.state = Idle
	s.faultReason = ""
	s.ramp = nil
	s.hasSetpoint = false
	return nil
}

// Step advances automatic transitions and computes this cycle's candidate
// setpoint. ok is false when the session has nothing to send (grounded).
func (s *Session) Step(now float64, cycle uint64) (sp telemetry.Setpoint, ok bool) {
	switch s.state {
	case Idle, Arming:
		return telemetry.Setpoint{}, false

	case TakingOff:
		tt := now - s.rampStart
		st := s.ramp.Evaluate(tt)
		sp = s.fromState(st, cycle)
		if tt >= s.ramp.Duration() && s.hoverReached() {
			if s.traj != nil {
				s.trajStart = now
				s.state = Executing
			} else {
				s.pausedAt = 0
				s.state = Holding
			}
		}

	case Executing:
		tt := now - s.trajStart
		st := s.traj.Evaluate(tt)
		sp = s.fromState(st, cycle)
		if tt >= s.traj.Duration() {
			// Trajectory finished with no follow-up command: hold the
			// terminal setpoint indefinitely.
			s.pausedAt = s.traj.Duration()
			s.state = Holding
		}

	case Holding:
		sp = s.lastSetpoint
		sp.Cycle = cycle
		sp.Velocity = telemetry.Vec3{}

	case Landing:
		if s.groundContact() || now >= s.landingDeadline {
			s.state = Idle
			s.hasSetpoint = false
			return telemetry.Setpoint{}, false
		}
		st := s.ramp.Evaluate(now - s.rampStart)
		sp = s.fromState(st, cycle)

	case Faulted:
		sp = s.safeStop(cycle)

	default:
		return telemetry.Setpoint{}, false
	}

	s.lastSetpoint = sp
	s.hasSetpoint = true
	return sp, true
}

// fromState converts a trajectory state into a wire setpoint.
func (s *Session) fromState(st trajectory.State, cycle uint64) telemetry.Setpoint {
	return telemetry.Setpoint{
		VehicleID: s.Vehicle.ID,
		Cycle:     cycle,
		Position:  st.Position,
		Velocity:  st.Velocity,
		Yaw:       st.Yaw,
	}
}

// safeStop is the fixed descent setpoint a Faulted session emits every cycle.
func (s *Session) safeStop(cycle uint64) telemetry.Setpoint {
	pos := s.lastTelemetry.Position
	if s.hasSetpoint {
		pos = s.lastSetpoint.Position
	}
	return telemetry.Setpoint{
		VehicleID: s.Vehicle.ID,
		Cycle:     cycle,
		Position:  pos,
		Velocity:  telemetry.Vec3{Z: -s.flight.SafeDescentMS},
	}
}

// hoverReached reports whether telemetry confirms the takeoff altitude within
// tolerance. Without telemetry the ramp end is trusted.
func (s *Session) hoverReached() bool {
	if !s.hasTelemetry {
		return true
	}
	return math.Abs(s.lastTelemetry.Position.Z-s.takeoffHeight) <= s.flight.TakeoffToleranceM
}

// groundContact infers touchdown from telemetry: low height and near-zero
// velocity.
func (s *Session) groundContact() bool {
	if !s.hasTelemetry {
		return false
	}
	return s.lastTelemetry.Position.Z <= s.flight.GroundHeightM &&
		s.lastTelemetry.Velocity.Norm() <= s.flight.GroundSpeedMS
}
