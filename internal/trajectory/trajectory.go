// Piecewise polynomial flight paths with clamped evaluation.
package trajectory

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"swarmctl/internal/telemetry"
)

// ErrInvalidTrajectory is returned when a trajectory description fails
// construction-time validation.
var ErrInvalidTrajectory = errors.New("invalid trajectory")

// Segment is one polynomial piece, valid over [0, Duration]. Coefficients are
// ordered low degree first; all four axes must carry the same degree.
type Segment struct {
	Duration float64   `yaml:"duration"`
	X        []float64 `yaml:"x"`
	Y        []float64 `yaml:"y"`
	Z        []float64 `yaml:"z"`
	Yaw      []float64 `yaml:"yaw"`
}

// State is the evaluated target at one instant.
type State struct {
	Position telemetry.Vec3
	Velocity telemetry.Vec3
	Yaw      float64
	YawRate  float64
}

// Trajectory is an immutable ordered sequence of segments.
type Trajectory struct {
	segments []Segment
	duration float64
}

// description mirrors the on-disk YAML format.
type description struct {
	Segments []Segment `yaml:"segments"`
}

// New validates segments and builds a Trajectory. Validation fails when a
// segment has a non-positive duration, the per-axis coefficient slices
// disagree in degree, or position/velocity jump across a segment boundary by
// more than continuityTol.
func New(segments []Segment, continuityTol float64) (*Trajectory, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrInvalidTrajectory)
	}
	total := 0.0
	for i, seg := range segments {
		if seg.Duration <= 0 {
			return nil, fmt.Errorf("%w: segment %d: duration %v not positive", ErrInvalidTrajectory, i, seg.Duration)
		}
		n := len(seg.X)
		if n == 0 {
			return nil, fmt.Errorf("%w: segment %d: empty coefficients", ErrInvalidTrajectory, i)
		}
		if len(seg.Y) != n || len(seg.Z) != n || len(seg.Yaw) != n {
			return nil, fmt.Errorf("%w: segment %d: inconsistent coefficient degree", ErrInvalidTrajectory, i)
		}
		total += seg.Duration
	}
	for i := 1; i < len(segments); i++ {
		prev := evalSegment(segments[i-1], segments[i-1].Duration)
		next := evalSegment(segments[i], 0)
		if gap := prev.Position.Dist(next.Position); gap > continuityTol {
			return nil, fmt.Errorf("%w: position gap %.4fm at segment boundary %d", ErrInvalidTrajectory, gap, i)
		}
		if gap := prev.Velocity.Dist(next.Velocity); gap > continuityTol {
			return nil, fmt.Errorf("%w: velocity gap %.4fm/s at segment boundary %d", ErrInvalidTrajectory, gap, i)
		}
	}
	return &Trajectory{segments: segments, duration: total}, nil
}

// Load parses a YAML trajectory description and validates it.
func Load(data []byte, continuityTol float64) (*Trajectory, error) {
	var desc description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrajectory, err)
	}
	return New(desc.Segments, continuityTol)
}

// LoadFile reads and parses a trajectory description file.
func LoadFile(path string, continuityTol float64) (*Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data, continuityTol)
}

// Duration returns the total flight time of the trajectory.
func (t *Trajectory) Duration() float64 {
	return t.duration
}

// Evaluate returns the target state at time tt, clamped to [0, Duration].
// Evaluating past the end returns the terminal state (hold), never an error.
func (t *Trajectory) Evaluate(tt float64) State {
	if tt < 0 {
		tt = 0
	}
	rem := tt
	for i, seg := range t.segments {
		if rem <= seg.Duration || i == len(t.segments)-1 {
			if rem > seg.Duration {
				rem = seg.Duration
			}
			return evalSegment(seg, rem)
		}
		rem -= seg.Duration
	}
	// Unreachable: New rejects empty trajectories.
	return State{}
}

func evalSegment(seg Segment, tt float64) State {
	return State{
		Position: telemetry.Vec3{
			X: polyVal(seg.X, tt),
			Y: polyVal(seg.Y, tt),
			Z: polyVal(seg.Z, tt),
		},
		Velocity: telemetry.Vec3{
			X: polyDer(seg.X, tt),
			Y: polyDer(seg.Y, tt),
			Z: polyDer(seg.Z, tt),
		},
		Yaw:     polyVal(seg.Yaw, tt),
		YawRate: polyDer(seg.Yaw, tt),
	}
}

// polyVal evaluates a polynomial with low-order-first coefficients (Horner).
func polyVal(coeffs []float64, tt float64) float64 {
	v := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		v = v*tt + coeffs[i]
	}
	return v
}

// polyDer evaluates the first derivative of the polynomial.
func polyDer(coeffs []float64, tt float64) float64 {
	v := 0.0
	for i := len(coeffs) - 1; i >= 1; i-- {
		v = v*tt + float64(i)*coeffs[i]
	}
	return v
}

// rampSegment builds a single-axis smoothstep from a to b over duration: zero
// velocity at both ends, matching the firmware's planned vertical ramps.
func rampCoeffs(a, b, duration float64) []float64 {
	d := b - a
	return []float64{a, 0, 3 * d / (duration * duration), -2 * d / (duration * duration * duration)}
}

func holdCoeffs(v float64) []float64 {
	return []float64{v, 0, 0, 0}
}

// TakeoffRamp builds the built-in vertical climb from a hover start position
// to the target height. X, Y, and yaw are held.
func TakeoffRamp(from telemetry.Vec3, yaw, height, duration float64) (*Trajectory, error) {
	seg := Segment{
		Duration: duration,
		X:        holdCoeffs(from.X),
		Y:        holdCoeffs(from.Y),
		Z:        rampCoeffs(from.Z, height, duration),
		Yaw:      holdCoeffs(yaw),
	}
	return New([]Segment{seg}, 0)
}

// LandingRamp builds a vertical descent from the current commanded position
// down to groundZ.
func LandingRamp(from telemetry.Vec3, yaw, groundZ, duration float64) (*Trajectory, error) {
	seg := Segment{
		Duration: duration,
		X:        holdCoeffs(from.X),
		Y:        holdCoeffs(from.Y),
		Z:        rampCoeffs(from.Z, groundZ, duration),
		Yaw:      holdCoeffs(yaw),
	}
	return New([]Segment{seg}, 0)
}
