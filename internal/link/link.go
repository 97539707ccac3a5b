// Link adapters carry setpoints to vehicles and telemetry back, best effort.
package link

import (
	"swarmctl/internal/telemetry"
)

// Adapter abstracts the per-vehicle command/telemetry channel. Send is
// fire-and-forget and may silently drop; PollTelemetry never blocks. The
// dispatcher tolerates arbitrary loss on both directions.
type Adapter interface {
	Send(vehicleID int, sp telemetry.Setpoint)
	PollTelemetry(vehicleID int) (telemetry.Record, bool)
}
