package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"swarmctl/internal/config"
	"swarmctl/internal/link"
	"swarmctl/internal/session"
	"swarmctl/internal/telemetry"
	"swarmctl/internal/trajectory"
)

type captureWriter struct {
	rows   []telemetry.FlightRow
	events []telemetry.EventRow
}

func (c *captureWriter) Write(r telemetry.FlightRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func (c *captureWriter) WriteEvent(e telemetry.EventRow) error {
	c.events = append(c.events, e)
	return nil
}

func testConfig() *config.MissionConfig {
	return &config.MissionConfig{
		MissionID: "test-mission",
		Vehicles: []config.Vehicle{
			{ID: 1, Address: "radio://0/80/2M/E7E7E7E701", Home: config.Position{X: 0, Y: 0, Z: 0}},
			{ID: 2, Address: "radio://0/80/2M/E7E7E7E702", Home: config.Position{X: 2, Y: 0, Z: 0}},
			{ID: 3, Address: "radio://0/80/2M/E7E7E7E703", Home: config.Position{X: 0, Y: 3, Z: 0}},
		},
		CycleRateHz: 50,
		Safety: config.Safety{
			Geofence: config.Geofence{
				Min: config.Position{X: -5, Y: -5, Z: -0.5},
				Max: config.Position{X: 5, Y: 5, Z: 5},
			},
			MinSeparationM:  0.3,
			TelemetryStaleS: 0.5,
			LinkTimeoutS:    2.0,
		},
		Flight: config.Flight{
			TakeoffToleranceM: 0.1,
			GroundHeightM:     0.05,
			GroundSpeedMS:     0.1,
			LandingTimeoutS:   2,
			ContinuityTol:     0.1,
			SafeDescentMS:     0.5,
		},
		Sim: config.Sim{MaxSpeedMS: 5},
	}
}

func newTestDispatcher(cfg *config.MissionConfig) (*Dispatcher, *link.Loopback, *captureWriter) {
	lb := link.NewLoopback(cfg.Vehicles, cfg.Sim, 1/cfg.CycleRateHz)
	w := &captureWriter{}
	return New(cfg, lb, w, w), lb, w
}

func feedAll(d *Dispatcher, cfg *config.MissionConfig) {
	for _, v := range cfg.Vehicles {
		d.Ingest(telemetry.Record{
			VehicleID:   v.ID,
			Position:    telemetry.Vec3{X: v.Home.X, Y: v.Home.Y, Z: v.Home.Z},
			Battery:     100,
			LinkHealthy: true,
		})
	}
}

func TestIssueAllOrNothing(t *testing.T) {
	cfg := testConfig()
	d, _, _ := newTestDispatcher(cfg)

	// Only vehicle 1 has telemetry; arming vehicle 2 must fail and leave
	// vehicle 1 untouched.
	d.Ingest(telemetry.Record{VehicleID: 1, Battery: 100, LinkHealthy: true})
	err := d.Issue(session.Arm())
	if !errors.Is(err, session.ErrPreconditionNotMet) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	for _, st := range d.Status() {
		if st.State != "idle" {
			t.Fatalf("vehicle %d state = %s, want idle", st.VehicleID, st.State)
		}
	}

	feedAll(d, cfg)
	if err := d.Issue(session.Arm()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	for _, st := range d.Status() {
		if st.State != "arming" {
			t.Fatalf("vehicle %d state = %s, want arming", st.VehicleID, st.State)
		}
	}
}

func TestStopAndReset(t *testing.T) {
	cfg := testConfig()
	d, _, w := newTestDispatcher(cfg)
	feedAll(d, cfg)
	if err := d.Issue(session.Arm()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	if err := d.Issue(session.StopCmd()); err != nil {
		t.Fatalf("stop must never fail, got %v", err)
	}
	for _, st := range d.Status() {
		if st.State != "faulted" || st.FaultReason != "operator stop" {
			t.Fatalf("vehicle %d: state=%s reason=%q", st.VehicleID, st.State, st.FaultReason)
		}
	}

	// Non-reset commands are refused while any vehicle is faulted.
	err := d.Issue(session.Arm())
	if !errors.Is(err, ErrSwarmNotReady) {
		t.Fatalf("expected ErrSwarmNotReady, got %v", err)
	}

	if err := d.Issue(session.ResetCmd(99)); !errors.Is(err, ErrUnknownVehicle) {
		t.Fatalf("expected ErrUnknownVehicle, got %v", err)
	}
	for _, v := range cfg.Vehicles {
		if err := d.Issue(session.ResetCmd(v.ID)); err != nil {
			t.Fatalf("reset %d: %v", v.ID, err)
		}
	}
	for _, st := range d.Status() {
		if st.State != "idle" || st.FaultReason != "" {
			t.Fatalf("vehicle %d not reset: state=%s reason=%q", st.VehicleID, st.State, st.FaultReason)
		}
	}

	var sawStop bool
	for _, ev := range w.events {
		if ev.Type == telemetry.EventCommand && strings.HasPrefix(ev.Detail, "stop ") {
			sawStop = true
			if len(ev.VehicleIDs) != len(cfg.Vehicles) {
				t.Fatalf("stop event targets %v, want all vehicles", ev.VehicleIDs)
			}
		}
	}
	if !sawStop {
		t.Fatalf("no stop command event recorded")
	}
}

func TestUploadTrajectory(t *testing.T) {
	cfg := testConfig()
	d, _, _ := newTestDispatcher(cfg)

	good := `
segments:
  - duration: 4
    x: [0, 0.5]
    y: [0]
    z: [1]
    yaw: [0]
`
	if err := d.UploadTrajectory(1, []byte(good)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if st := d.Status()[0]; !st.HasTrajectory {
		t.Fatalf("vehicle 1 should report a trajectory")
	}

	discontinuous := `
segments:
  - duration: 1
    x: [0, 1]
    y: [0]
    z: [1]
    yaw: [0]
  - duration: 1
    x: [5]
    y: [0]
    z: [1]
    yaw: [0]
`
	if err := d.UploadTrajectory(2, []byte(discontinuous)); !errors.Is(err, trajectory.ErrInvalidTrajectory) {
		t.Fatalf("expected ErrInvalidTrajectory, got %v", err)
	}
	if err := d.UploadTrajectory(99, []byte(good)); !errors.Is(err, ErrUnknownVehicle) {
		t.Fatalf("expected ErrUnknownVehicle, got %v", err)
	}
}

// Vehicles 1 and 2 fly straight lines that cross mid-mission while vehicle 3
// flies clear of both. Exactly the crossing pair must be faulted before their
// commanded positions meet, and vehicle 3 keeps executing.
func TestSeparationFaultAtCrossing(t *testing.T) {
	cfg := testConfig()
	d, lb, w := newTestDispatcher(cfg)
	ctx := context.Background()

	toward := `
segments:
  - duration: 4
    x: [0, 0.5]
    y: [0]
    z: [1]
    yaw: [0]
`
	opposing := `
segments:
  - duration: 4
    x: [2, -0.5]
    y: [0]
    z: [1]
    yaw: [0]
`
	if err := d.UploadTrajectory(1, []byte(toward)); err != nil {
		t.Fatalf("upload 1: %v", err)
	}
	if err := d.UploadTrajectory(2, []byte(opposing)); err != nil {
		t.Fatalf("upload 2: %v", err)
	}
	clear := `
segments:
  - duration: 4
    x: [0]
    y: [3, 0.25]
    z: [1]
    yaw: [0]
`
	if err := d.UploadTrajectory(3, []byte(clear)); err != nil {
		t.Fatalf("upload 3: %v", err)
	}

	d.step(ctx) // first cycle ingests loopback telemetry
	if err := d.Issue(session.Arm()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := d.Issue(session.TakeoffCmd(1.0, 1.0)); err != nil {
		t.Fatalf("takeoff: %v", err)
	}

	bothFaulted := false
	for i := 0; i < 400; i++ {
		d.step(ctx)
		sts := d.Status()
		if sts[0].State == "faulted" && sts[1].State == "faulted" {
			bothFaulted = true
			break
		}
	}
	if !bothFaulted {
		t.Fatalf("vehicles never faulted; states: %+v", d.Status())
	}
	sts := d.Status()
	for _, st := range sts[:2] {
		if !strings.Contains(st.FaultReason, "separation") {
			t.Fatalf("vehicle %d fault reason = %q, want separation", st.VehicleID, st.FaultReason)
		}
	}
	if sts[2].State != "executing" {
		t.Fatalf("vehicle 3 state = %s, want executing", sts[2].State)
	}

	// Commanded positions never reached the crossing point.
	if p1, p2 := lb.Position(1), lb.Position(2); p1.Dist(p2) < cfg.Safety.MinSeparationM/2 {
		t.Fatalf("vehicles converged to %.3fm apart", p1.Dist(p2))
	}

	var sawFault, sawTransition bool
	for _, ev := range w.events {
		switch ev.Type {
		case telemetry.EventFault:
			sawFault = true
			if len(ev.VehicleIDs) != 2 {
				t.Fatalf("separation fault event names %v, want the pair", ev.VehicleIDs)
			}
		case telemetry.EventTransition:
			if strings.Contains(ev.Detail, "taking_off -> executing") {
				sawTransition = true
			}
		}
	}
	if !sawFault {
		t.Fatalf("no fault event recorded")
	}
	if !sawTransition {
		t.Fatalf("no taking_off -> executing transition recorded")
	}
	if len(w.rows) == 0 {
		t.Fatalf("no flight rows written")
	}
}

func TestClockAdvancesPerCycle(t *testing.T) {
	cfg := testConfig()
	d, _, _ := newTestDispatcher(cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d.step(ctx)
	}
	clock, cycle := d.Clock()
	if cycle != 10 {
		t.Fatalf("cycle = %d, want 10", cycle)
	}
	want := 10 / cfg.CycleRateHz
	if diff := clock - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("clock = %v, want %v", clock, want)
	}
}
