package session

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandKind enumerates the swarm command surface.
type CommandKind int

const (
	CmdArm CommandKind = iota
	CmdTakeoff
	CmdStart
	CmdPause
	CmdResume
	CmdLand
	CmdStop
	CmdReset
)

var kindNames = map[CommandKind]string{
	CmdArm:     "arm",
	CmdTakeoff: "takeoff",
	CmdStart:   "start",
	CmdPause:   "pause",
	CmdResume:  "resume",
	CmdLand:    "land",
	CmdStop:    "stop",
	CmdReset:   "reset",
}

func (k CommandKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one operator instruction. Swarm-wide commands carry VehicleID -1;
// reset targets a single vehicle.
type Command struct {
	ID        uuid.UUID
	Kind      CommandKind
	Height    float64 // takeoff target height
	Duration  float64 // takeoff/landing ramp duration
	VehicleID int
}

// Arm builds a swarm-wide arm command.
func Arm() Command {
	return Command{ID: uuid.New(), Kind: CmdArm, VehicleID: -1}
}

// TakeoffCmd builds a swarm-wide takeoff command.
func TakeoffCmd(height, duration float64) Command {
	return Command{ID: uuid.New(), Kind: CmdTakeoff, Height: height, Duration: duration, VehicleID: -1}
}

// StartCmd builds a swarm-wide trajectory start command.
func StartCmd() Command {
	return Command{ID: uuid.New(), Kind: CmdStart, VehicleID: -1}
}

// PauseCmd builds a swarm-wide pause command.
func PauseCmd() Command {
	return Command{ID: uuid.New(), Kind: CmdPause, VehicleID: -1}
}

// ResumeCmd builds a swarm-wide resume command.
func ResumeCmd() Command {
	return Command{ID: uuid.New(), Kind: CmdResume, VehicleID: -1}
}

// LandCmd builds a swarm-wide land command.
func LandCmd(duration float64) Command {
	return Command{ID: uuid.New(), Kind: CmdLand, Duration: duration, VehicleID: -1}
}

// StopCmd builds the global emergency stop.
func StopCmd() Command {
	return Command{ID: uuid.New(), Kind: CmdStop, VehicleID: -1}
}

// ResetCmd builds a per-vehicle fault reset.
func ResetCmd(vehicleID int) Command {
	return Command{ID: uuid.New(), Kind: CmdReset, VehicleID: vehicleID}
}

// Can reports whether cmd would be accepted right now, without mutating the
// session. Issue-time all-or-nothing validation depends on this being in
// lockstep with Apply.
func (s *Session) Can(cmd Command, now float64) error {
	switch cmd.Kind {
	case CmdArm:
		if s.state != Idle {
			return fmt.Errorf("%w: vehicle %d cannot arm while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
		}
		if s.TelemetryAge(now) > s.staleS {
			return fmt.Errorf("%w: vehicle %d telemetry stale", ErrPreconditionNotMet, s.Vehicle.ID)
		}
	case CmdTakeoff:
		if s.state != Arming {
			return fmt.Errorf("%w: vehicle %d cannot take off while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
		}
	case CmdStart:
		if s.state != Holding {
			return fmt.Errorf("%w: vehicle %d cannot start while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
		}
		if s.traj == nil {
			return fmt.Errorf("%w: vehicle %d has no trajectory", ErrPreconditionNotMet, s.Vehicle.ID)
		}
	case CmdPause:
		if s.state != Executing {
			return fmt.Errorf("%w: vehicle %d cannot pause while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
		}
	case CmdResume:
		if s.state != Holding {
			return fmt.Errorf("%w: vehicle %d cannot resume while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
		}
		if s.traj == nil {
			return fmt.Errorf("%w: vehicle %d has no trajectory", ErrPreconditionNotMet, s.Vehicle.ID)
		}
	case CmdLand:
		if !s.state.Airborne() {
			return fmt.Errorf("%w: vehicle %d cannot land while %s", ErrPreconditionNotMet, s.Vehicle.ID, s.state)
		}
	case CmdStop:
		// Always accepted.
	case CmdReset:
		if s.state != Faulted {
			return fmt.Errorf("%w: vehicle %d is not faulted", ErrPreconditionNotMet, s.Vehicle.ID)
		}
	default:
		return fmt.Errorf("%w: unknown command %d", ErrPreconditionNotMet, int(cmd.Kind))
	}
	return nil
}

// Apply executes cmd against the session.
func (s *Session) Apply(cmd Command, now float64) error {
	switch cmd.Kind {
	case CmdArm:
		return s.Arm(now)
	case CmdTakeoff:
		return s.Takeoff(now, cmd.Height, cmd.Duration)
	case CmdStart:
		return s.Start(now)
	case CmdPause:
		return s.Pause(now)
	case CmdResume:
		return s.Resume(now)
	case CmdLand:
		return s.Land(now, cmd.Duration)
	case CmdStop:
		s.Stop()
		return nil
	case CmdReset:
		return s.Reset()
	}
	return fmt.Errorf("%w: unknown command %d", ErrPreconditionNotMet, int(cmd.Kind))
}
