// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Position is a point in the mission frame, meters.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Vehicle identifies one fleet member: stable numeric id, radio address, and
// home (pad) position.
type Vehicle struct {
	ID      int      `yaml:"id"`
	Address string   `yaml:"address"`
	Home    Position `yaml:"home"`
}

// Geofence is an axis-aligned box every commanded position must stay inside.
type Geofence struct {
	Min Position `yaml:"min"`
	Max Position `yaml:"max"`
}

// Safety groups the invariant thresholds evaluated every cycle.
type Safety struct {
	Geofence         Geofence `yaml:"geofence"`
	MinSeparationM   float64  `yaml:"min_separation_m"`
	TelemetryStaleS  float64  `yaml:"telemetry_stale_s"`
	LinkTimeoutS     float64  `yaml:"link_timeout_s"`
}

// Flight groups the state-machine tuning knobs.
type Flight struct {
	TakeoffToleranceM float64 `yaml:"takeoff_tolerance_m"`
	GroundHeightM     float64 `yaml:"ground_height_m"`
	GroundSpeedMS     float64 `yaml:"ground_speed_ms"`
	LandingTimeoutS   float64 `yaml:"landing_timeout_s"`
	ContinuityTol     float64 `yaml:"continuity_tolerance"`
	SafeDescentMS     float64 `yaml:"safe_descent_ms"`
}

// Sim tunes the loopback link used for simulated flights and tests.
type Sim struct {
	MaxSpeedMS      float64 `yaml:"max_speed_ms"`
	DisturbanceSize float64 `yaml:"disturbance_size"`
	DropRate        float64 `yaml:"drop_rate"`
}

// MissionConfig is the root configuration: fleet roster, safety envelope, and
// dispatch loop settings.
type MissionConfig struct {
	MissionID   string    `yaml:"mission_id"`
	Vehicles    []Vehicle `yaml:"vehicles"`
	CycleRateHz float64   `yaml:"cycle_rate_hz"`
	Safety      Safety    `yaml:"safety"`
	Flight      Flight    `yaml:"flight"`
	Sim         Sim       `yaml:"sim"`
}

// Load loads YAML config and validates it against a CUE schema.
func Load(configPath, cueSchemaPath string) (*MissionConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg MissionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check enforces the invariants the CUE schema cannot express relationally.
func (c *MissionConfig) check() error {
	if len(c.Vehicles) == 0 {
		return fmt.Errorf("config: no vehicles in roster")
	}
	seen := make(map[int]bool, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if seen[v.ID] {
			return fmt.Errorf("config: duplicate vehicle id %d", v.ID)
		}
		seen[v.ID] = true
	}
	g := c.Safety.Geofence
	if g.Min.X >= g.Max.X || g.Min.Y >= g.Max.Y || g.Min.Z >= g.Max.Z {
		return fmt.Errorf("config: geofence min must be strictly below max on every axis")
	}
	if c.CycleRateHz <= 0 {
		return fmt.Errorf("config: cycle_rate_hz must be positive")
	}
	if c.Safety.LinkTimeoutS < c.Safety.TelemetryStaleS {
		return fmt.Errorf("config: link_timeout_s must not be below telemetry_stale_s")
	}
	return nil
}
