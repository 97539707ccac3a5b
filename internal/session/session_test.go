package session

import (
	"errors"
	"math"
	"testing"

	"swarmctl/internal/config"
	"swarmctl/internal/telemetry"
	"swarmctl/internal/trajectory"
)

var testFlight = config.Flight{
	TakeoffToleranceM: 0.1,
	GroundHeightM:     0.08,
	GroundSpeedMS:     0.05,
	LandingTimeoutS:   10,
	ContinuityTol:     0.01,
	SafeDescentMS:     0.5,
}

func newTestSession() *Session {
	v := config.Vehicle{ID: 1, Address: "radio://0/80/2M/E7E7E7E701", Home: config.Position{X: 0, Y: 0, Z: 0}}
	return New(v, testFlight, 0.5)
}

func feedTelemetry(s *Session, now float64, pos telemetry.Vec3) {
	s.Ingest(telemetry.Record{VehicleID: 1, Position: pos, LinkHealthy: true}, now)
}

func lineTraj(t *testing.T, duration, fromX, toX, z float64) *trajectory.Trajectory {
	t.Helper()
	seg := trajectory.Segment{
		Duration: duration,
		X:        []float64{fromX, (toX - fromX) / duration},
		Y:        []float64{0, 0},
		Z:        []float64{z, 0},
		Yaw:      []float64{0, 0},
	}
	traj, err := trajectory.New([]trajectory.Segment{seg}, 1e-6)
	if err != nil {
		t.Fatalf("trajectory.New: %v", err)
	}
	return traj
}

// flyToExecuting drives a session through arm/takeoff until it is Executing.
func flyToExecuting(t *testing.T, s *Session, traj *trajectory.Trajectory) float64 {
	t.Helper()
	feedTelemetry(s, 0, telemetry.Vec3{})
	if err := s.Assign(traj); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := s.Takeoff(0, 1.0, 2.0); err != nil {
		t.Fatalf("Takeoff: %v", err)
	}
	// Ramp done, telemetry at hover height.
	feedTelemetry(s, 2.0, telemetry.Vec3{Z: 1.0})
	if _, ok := s.Step(2.0, 1); !ok {
		t.Fatal("Step during takeoff produced no setpoint")
	}
	if s.State() != Executing {
		t.Fatalf("state after ramp = %s, want executing", s.State())
	}
	return 2.0
}

func TestArmRequiresFreshTelemetry(t *testing.T) {
	s := newTestSession()
	if err := s.Arm(10); !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("Arm without telemetry: err = %v, want ErrPreconditionNotMet", err)
	}
	feedTelemetry(s, 9.8, telemetry.Vec3{})
	if err := s.Arm(10); err != nil {
		t.Fatalf("Arm with fresh telemetry: %v", err)
	}
	if s.State() != Arming {
		t.Fatalf("state = %s, want arming", s.State())
	}
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	s := newTestSession()
	feedTelemetry(s, 0, telemetry.Vec3{})

	// takeoff from Idle
	if err := s.Takeoff(0, 1, 2); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Takeoff from idle: err = %v, want ErrPreconditionNotMet", err)
	}
	if s.State() != Idle {
		t.Errorf("state changed to %s after rejected takeoff", s.State())
	}
	// pause while grounded
	if err := s.Pause(0); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Pause from idle: err = %v, want ErrPreconditionNotMet", err)
	}
	// land while grounded
	if err := s.Land(0, 3); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Land from idle: err = %v, want ErrPreconditionNotMet", err)
	}
	// reset while not faulted
	if err := s.Reset(); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Reset from idle: err = %v, want ErrPreconditionNotMet", err)
	}
}

func TestTakeoffRampThenExecuting(t *testing.T) {
	s := newTestSession()
	traj := lineTraj(t, 4, 0, 2, 1)
	now := flyToExecuting(t, s, traj)

	sp, ok := s.Step(now+1, 2)
	if !ok {
		t.Fatal("Step returned no setpoint while executing")
	}
	// 1s into a 4s line from x=0 to x=2.
	if math.Abs(sp.Position.X-0.5) > 1e-9 {
		t.Errorf("X = %v, want 0.5", sp.Position.X)
	}
}

func TestPauseResumeRebasesTrajectoryTime(t *testing.T) {
	s := newTestSession()
	traj := lineTraj(t, 4, 0, 2, 1)
	start := flyToExecuting(t, s, traj)

	// Progress 1.5s into the trajectory, then pause.
	s.Step(start+1.5, 2)
	if err := s.Pause(start + 1.5); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	held, _ := s.Step(start+1.6, 3)

	// A long wall-clock gap passes while holding.
	if err := s.Resume(start + 20); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	sp, _ := s.Step(start+20.5, 4)

	// 2.0s of trajectory time total: x should be at 1.0 as if no gap occurred.
	if math.Abs(sp.Position.X-1.0) > 1e-9 {
		t.Errorf("post-resume X = %v, want 1.0", sp.Position.X)
	}
	if held.Position.X != sp.Position.X-0.25 {
		// held at 1.5s -> x=0.75; first post-resume step is 0.5s later -> x=1.0
		t.Errorf("held X = %v, resumed X = %v: rebasing broken", held.Position.X, sp.Position.X)
	}
}

func TestTrajectoryEndHoldsTerminalSetpoint(t *testing.T) {
	s := newTestSession()
	traj := lineTraj(t, 2, 0, 2, 1)
	start := flyToExecuting(t, s, traj)

	s.Step(start+2.5, 2)
	if s.State() != Holding {
		t.Fatalf("state past trajectory end = %s, want holding", s.State())
	}
	first, _ := s.Step(start+3, 3)
	for i := 0; i < 3; i++ {
		again, _ := s.Step(start+4+float64(i), uint64(4+i))
		if again.Position != first.Position {
			t.Fatalf("hold setpoint drifted: %+v vs %+v", again.Position, first.Position)
		}
	}
}

func TestLandingToIdleOnGroundContact(t *testing.T) {
	s := newTestSession()
	traj := lineTraj(t, 4, 0, 2, 1)
	now := flyToExecuting(t, s, traj)

	if err := s.Land(now, 3); err != nil {
		t.Fatalf("Land: %v", err)
	}
	if s.State() != Landing {
		t.Fatalf("state = %s, want landing", s.State())
	}
	// Mid-descent: still landing.
	feedTelemetry(s, now+1, telemetry.Vec3{Z: 0.6})
	if _, ok := s.Step(now+1, 2); !ok {
		t.Fatal("no setpoint mid-landing")
	}
	// Touchdown telemetry.
	feedTelemetry(s, now+3, telemetry.Vec3{Z: 0.02})
	if _, ok := s.Step(now+3, 3); ok {
		t.Fatal("setpoint emitted after touchdown")
	}
	if s.State() != Idle {
		t.Fatalf("state after touchdown = %s, want idle", s.State())
	}
}

func TestFaultIsAbsorbingUntilReset(t *testing.T) {
	s := newTestSession()
	traj := lineTraj(t, 4, 0, 2, 1)
	now := flyToExecuting(t, s, traj)

	s.Fault("separation with 2")
	if s.State() != Faulted {
		t.Fatalf("state = %s, want faulted", s.State())
	}
	// No command but reset is accepted.
	if err := s.Arm(now); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Arm while faulted: err = %v, want ErrPreconditionNotMet", err)
	}
	if err := s.Resume(now); !errors.Is(err, ErrPreconditionNotMet) {
		t.Errorf("Resume while faulted: err = %v, want ErrPreconditionNotMet", err)
	}
	// Safe-stop setpoint every cycle, descending.
	sp, ok := s.Step(now+1, 2)
	if !ok {
		t.Fatal("faulted session emitted no safe-stop setpoint")
	}
	if sp.Velocity.Z >= 0 {
		t.Errorf("safe-stop velocity Z = %v, want negative", sp.Velocity.Z)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state after reset = %s, want idle", s.State())
	}
	if s.FaultReason() != "" {
		t.Errorf("fault reason not cleared: %q", s.FaultReason())
	}
}

func TestStopIgnoresIdle(t *testing.T) {
	s := newTestSession()
	s.Stop()
	if s.State() != Idle {
		t.Fatalf("stop moved idle session to %s", s.State())
	}
}

func TestAssignRejectedWhileAirborne(t *testing.T) {
	s := newTestSession()
	traj := lineTraj(t, 4, 0, 2, 1)
	flyToExecuting(t, s, traj)
	if err := s.Assign(traj); !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("Assign while executing: err = %v, want ErrPreconditionNotMet", err)
	}
}

func TestTakeoffWithoutTrajectoryHolds(t *testing.T) {
	s := newTestSession()
	feedTelemetry(s, 0, telemetry.Vec3{})
	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := s.Takeoff(0, 1.0, 2.0); err != nil {
		t.Fatalf("Takeoff: %v", err)
	}
	feedTelemetry(s, 2, telemetry.Vec3{Z: 1.0})
	s.Step(2, 1)
	if s.State() != Holding {
		t.Fatalf("state = %s, want holding hover without trajectory", s.State())
	}
	// Upload mid-hover is rejected (grounded only), start without one too.
	if err := s.Start(2); !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("Start without trajectory: err = %v, want ErrPreconditionNotMet", err)
	}
}
