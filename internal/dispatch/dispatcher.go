// Dispatcher orchestrating the swarm clock, command broadcast, and the
// per-cycle setpoint loop.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"swarmctl/internal/config"
	"swarmctl/internal/link"
	"swarmctl/internal/safety"
	"swarmctl/internal/session"
	"swarmctl/internal/telemetry"
	"swarmctl/internal/trajectory"
)

// ErrSwarmNotReady is returned when a command targets a faulted vehicle and
// is not itself a reset.
var ErrSwarmNotReady = errors.New("swarm not ready")

// ErrUnknownVehicle is returned when a command names a vehicle outside the
// roster.
var ErrUnknownVehicle = errors.New("unknown vehicle")

// FlightWriter is an interface to support different flight-log outputs.
type FlightWriter interface {
	Write(telemetry.FlightRow) error
}

// EventWriter handles command, transition, and fault events.
type EventWriter interface {
	WriteEvent(telemetry.EventRow) error
}

// Optional: flight writers may support batch mode.
type batchFlightWriter interface {
	WriteBatch([]telemetry.FlightRow) error
}

// Optional: event writers may support batch mode.
type batchEventWriter interface {
	WriteEvents([]telemetry.EventRow) error
}

// Dispatcher owns the swarm clock and every vehicle session. All cross-vehicle
// state transitions are serialized against the cycle loop by a single mutex,
// so a command lands either fully before or fully after a cycle's evaluation.
type Dispatcher struct {
	missionID string

	mu       sync.Mutex
	cfg      *config.MissionConfig
	sessions []*session.Session
	byID     map[int]*session.Session
	monitor  *safety.Monitor
	adapter  link.Adapter

	clock    float64 // swarm clock, seconds since mission start
	cycleNum uint64
	period   float64

	writer      FlightWriter
	eventWriter EventWriter
}

// New builds a Dispatcher with one Idle session per roster vehicle.
// eventWriter may be nil to skip event logging.
func New(cfg *config.MissionConfig, adapter link.Adapter, writer FlightWriter, eventWriter EventWriter) *Dispatcher {
	d := &Dispatcher{
		missionID:   cfg.MissionID,
		cfg:         cfg,
		byID:        make(map[int]*session.Session, len(cfg.Vehicles)),
		monitor:     safety.NewMonitor(cfg.Safety),
		adapter:     adapter,
		period:      1 / cfg.CycleRateHz,
		writer:      writer,
		eventWriter: eventWriter,
	}
	for _, v := range cfg.Vehicles {
		s := session.New(v, cfg.Flight, cfg.Safety.TelemetryStaleS)
		d.sessions = append(d.sessions, s)
		d.byID[v.ID] = s
	}
	return d
}

// Issue validates and broadcasts a command. The broadcast is all-or-nothing:
// every targeted session is prechecked before any is mutated, so no session
// ever observes a partial command. stop never fails.
func (d *Dispatcher) Issue(cmd session.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock

	if cmd.Kind == session.CmdStop {
		for _, s := range d.sessions {
			s.Stop()
		}
		d.recordCommand(cmd, d.allIDs())
		return nil
	}

	targets := d.sessions
	if cmd.Kind == session.CmdReset {
		s, ok := d.byID[cmd.VehicleID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownVehicle, cmd.VehicleID)
		}
		targets = []*session.Session{s}
	} else {
		for _, s := range d.sessions {
			if s.State() == session.Faulted {
				return fmt.Errorf("%w: vehicle %d is faulted (%s)", ErrSwarmNotReady, s.Vehicle.ID, s.FaultReason())
			}
		}
	}

	for _, s := range targets {
		if err := s.Can(cmd, now); err != nil {
			return err
		}
	}
	ids := make([]string, 0, len(targets))
	for _, s := range targets {
		if err := s.Apply(cmd, now); err != nil {
			// Can and Apply agree on preconditions; reaching here means a
			// defect in the state machine itself.
			return err
		}
		ids = append(ids, fmt.Sprintf("%d", s.Vehicle.ID))
	}
	d.recordCommand(cmd, ids)
	return nil
}

// UploadTrajectory parses a YAML trajectory description and assigns it to a
// grounded vehicle.
func (d *Dispatcher) UploadTrajectory(vehicleID int, desc []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.byID[vehicleID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVehicle, vehicleID)
	}
	traj, err := trajectory.Load(desc, d.cfg.Flight.ContinuityTol)
	if err != nil {
		return err
	}
	return s.Assign(traj)
}

// Ingest feeds an externally received telemetry record to its session. Safe
// to call concurrently with the cycle loop.
func (d *Dispatcher) Ingest(rec telemetry.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.byID[rec.VehicleID]; ok {
		s.Ingest(rec, d.clock)
	}
}

// Clock returns the swarm clock and cycle counter.
func (d *Dispatcher) Clock() (float64, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock, d.cycleNum
}

// MissionID returns the configured mission identifier.
func (d *Dispatcher) MissionID() string {
	return d.missionID
}

// VehicleStatus summarizes one session for status surfaces.
type VehicleStatus struct {
	VehicleID     int            `json:"vehicle_id"`
	Address       string         `json:"address"`
	State         string         `json:"state"`
	FaultReason   string         `json:"fault_reason,omitempty"`
	Position      telemetry.Vec3 `json:"position"`
	Battery       float64        `json:"battery"`
	TelemetryAge  float64        `json:"telemetry_age_s"`
	HasTrajectory bool           `json:"has_trajectory"`
}

// Status returns a snapshot of every session.
func (d *Dispatcher) Status() []VehicleStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]VehicleStatus, 0, len(d.sessions))
	for _, s := range d.sessions {
		st := VehicleStatus{
			VehicleID:     s.Vehicle.ID,
			Address:       s.Vehicle.Address,
			State:         s.State().String(),
			FaultReason:   s.FaultReason(),
			TelemetryAge:  s.TelemetryAge(d.clock),
			HasTrajectory: s.HasTrajectory(),
		}
		if rec, ok := s.Telemetry(); ok {
			st.Position = rec.Position
			st.Battery = rec.Battery
		}
		out = append(out, st)
	}
	return out
}

func (d *Dispatcher) allIDs() []string {
	ids := make([]string, 0, len(d.sessions))
	for _, s := range d.sessions {
		ids = append(ids, fmt.Sprintf("%d", s.Vehicle.ID))
	}
	return ids
}
