// Per-cycle safety evaluation: geofence, separation, telemetry staleness.
package safety

import (
	"fmt"

	"swarmctl/internal/config"
	"swarmctl/internal/telemetry"
)

// ViolationKind names the invariant a fault violated.
type ViolationKind int

const (
	Geofence ViolationKind = iota
	Separation
	Stale
	LinkLost
)

var kindNames = map[ViolationKind]string{
	Geofence:   "geofence",
	Separation: "separation",
	Stale:      "telemetry_stale",
	LinkLost:   "link_lost",
}

func (k ViolationKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("violation(%d)", int(k))
}

// Fault names one vehicle and the invariant it violated this cycle.
type Fault struct {
	VehicleID int
	Kind      ViolationKind
	Partner   int // peer vehicle for separation faults, -1 otherwise
	Detail    string
}

// Candidate is the per-vehicle input to one safety check: the setpoint the
// dispatcher intends to send plus the last-known actual state.
type Candidate struct {
	VehicleID    int
	Command      telemetry.Vec3 // candidate setpoint position
	Actual       telemetry.Vec3 // last reported position
	HasActual    bool
	TelemetryAge float64 // swarm-clock seconds since last sample
}

// Monitor evaluates the safety invariants. It is stateless per cycle: Check
// is a pure function of its input.
type Monitor struct {
	cfg config.Safety
}

// NewMonitor creates a Monitor from the configured safety envelope.
func NewMonitor(cfg config.Safety) *Monitor {
	return &Monitor{cfg: cfg}
}

// Check evaluates geofence, then separation, then staleness over the full
// candidate set and returns every violation found. The caller acts on the
// whole set, not just the first.
func (m *Monitor) Check(cands []Candidate) []Fault {
	var faults []Fault
	faults = append(faults, m.checkGeofence(cands)...)
	faults = append(faults, m.checkSeparation(cands)...)
	faults = append(faults, m.checkStaleness(cands)...)
	return faults
}

func (m *Monitor) checkGeofence(cands []Candidate) []Fault {
	g := m.cfg.Geofence
	var faults []Fault
	for _, c := range cands {
		p := c.Command
		if p.X < g.Min.X || p.X > g.Max.X ||
			p.Y < g.Min.Y || p.Y > g.Max.Y ||
			p.Z < g.Min.Z || p.Z > g.Max.Z {
			faults = append(faults, Fault{
				VehicleID: c.VehicleID,
				Kind:      Geofence,
				Partner:   -1,
				Detail:    fmt.Sprintf("position (%.2f, %.2f, %.2f) outside fence", p.X, p.Y, p.Z),
			})
		}
	}
	return faults
}

// checkSeparation tests pairwise distance on candidate positions and, as a
// conservative backstop, on reported actual positions. Both vehicles of a
// violating pair are faulted; the one further off its commanded position is
// listed first.
func (m *Monitor) checkSeparation(cands []Candidate) []Fault {
	min := m.cfg.MinSeparationM
	var faults []Fault
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			a, b := cands[i], cands[j]
			dist := a.Command.Dist(b.Command)
			if a.HasActual && b.HasActual {
				if actual := a.Actual.Dist(b.Actual); actual < dist {
					dist = actual
				}
			}
			if dist >= min {
				continue
			}
			first, second := a, b
			if deviation(b) > deviation(a) {
				first, second = b, a
			}
			detail := fmt.Sprintf("%.2fm below minimum %.2fm", dist, min)
			faults = append(faults,
				Fault{VehicleID: first.VehicleID, Kind: Separation, Partner: second.VehicleID, Detail: detail},
				Fault{VehicleID: second.VehicleID, Kind: Separation, Partner: first.VehicleID, Detail: detail},
			)
		}
	}
	return faults
}

func (m *Monitor) checkStaleness(cands []Candidate) []Fault {
	var faults []Fault
	for _, c := range cands {
		switch {
		case c.TelemetryAge > m.cfg.LinkTimeoutS:
			faults = append(faults, Fault{
				VehicleID: c.VehicleID,
				Kind:      LinkLost,
				Partner:   -1,
				Detail:    fmt.Sprintf("no telemetry for %.2fs (timeout %.2fs)", c.TelemetryAge, m.cfg.LinkTimeoutS),
			})
		case c.TelemetryAge > m.cfg.TelemetryStaleS:
			faults = append(faults, Fault{
				VehicleID: c.VehicleID,
				Kind:      Stale,
				Partner:   -1,
				Detail:    fmt.Sprintf("telemetry %.2fs old (threshold %.2fs)", c.TelemetryAge, m.cfg.TelemetryStaleS),
			})
		}
	}
	return faults
}

// deviation measures how far a vehicle strayed from its commanded position.
func deviation(c Candidate) float64 {
	if !c.HasActual {
		return 0
	}
	return c.Actual.Dist(c.Command)
}
