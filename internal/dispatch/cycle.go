package dispatch

import (
	"context"
	"fmt"
	"time"

	"swarmctl/internal/logging"
	"swarmctl/internal/safety"
	"swarmctl/internal/session"
	"swarmctl/internal/telemetry"
)

// Run starts the fixed-rate dispatch loop and stops when the context is done.
func (d *Dispatcher) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	interval := time.Duration(d.period * float64(time.Second))
	log.Info("starting dispatcher", "mission_id", d.missionID, "cycle_rate_hz", d.cfg.CycleRateHz, "vehicles", len(d.sessions))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.step(ctx)
		case <-ctx.Done():
			log.Info("stopping dispatcher")
			return
		}
	}
}

// step runs one dispatch cycle: advance the clock, poll telemetry, compute
// candidate setpoints, gate them through the safety monitor, and send what
// passes. Faults force the implicated vehicles into safe-stop and the
// remaining vehicles are re-evaluated within the same cycle.
func (d *Dispatcher) step(ctx context.Context) {
	log := logging.FromContext(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cycleNum++
	d.clock += d.period
	now := d.clock

	for _, s := range d.sessions {
		if rec, ok := d.adapter.PollTelemetry(s.Vehicle.ID); ok {
			s.Ingest(rec, now)
		}
	}

	prev := make(map[int]session.State, len(d.sessions))
	for _, s := range d.sessions {
		prev[s.Vehicle.ID] = s.State()
	}

	var events []telemetry.EventRow

	// Candidate computation and the safety check repeat until the remaining
	// set passes. Each iteration faults at least one more vehicle, so this is
	// bounded by the fleet size and completes within the cycle.
	type pending struct {
		s  *session.Session
		sp telemetry.Setpoint
	}
	var approved []pending
	for {
		approved = approved[:0]
		var cands []safety.Candidate
		for _, s := range d.sessions {
			if s.State() == session.Faulted {
				continue
			}
			sp, ok := s.Step(now, d.cycleNum)
			if !ok {
				continue
			}
			cand := safety.Candidate{
				VehicleID:    s.Vehicle.ID,
				Command:      sp.Position,
				TelemetryAge: s.TelemetryAge(now),
			}
			if rec, has := s.Telemetry(); has {
				cand.Actual = rec.Position
				cand.HasActual = true
			}
			cands = append(cands, cand)
			approved = append(approved, pending{s, sp})
		}

		faults := d.monitor.Check(cands)
		if len(faults) == 0 {
			break
		}
		for _, f := range faults {
			s := d.byID[f.VehicleID]
			if s.State() == session.Faulted {
				continue
			}
			reason := f.Kind.String() + ": " + f.Detail
			s.Fault(reason)
			log.Warn("safety fault", "vehicle_id", f.VehicleID, "violation", f.Kind.String(), "detail", f.Detail)
			ev := telemetry.EventRow{
				MissionID:  d.missionID,
				Type:       telemetry.EventFault,
				VehicleIDs: []string{fmt.Sprintf("%d", f.VehicleID)},
				Detail:     reason,
				Clock:      now,
				Timestamp:  time.Now().UTC(),
			}
			if f.Partner >= 0 {
				ev.VehicleIDs = append(ev.VehicleIDs, fmt.Sprintf("%d", f.Partner))
			}
			events = append(events, ev)
		}
	}

	// Approved setpoints go out first, then the fixed safe-stop setpoints of
	// faulted sessions. Sends are fire-and-forget; nothing here waits.
	var rows []telemetry.FlightRow
	for _, p := range approved {
		d.adapter.Send(p.s.Vehicle.ID, p.sp)
		rows = append(rows, d.flightRow(p.s, p.sp, now))
	}
	for _, s := range d.sessions {
		if s.State() != session.Faulted {
			continue
		}
		if sp, ok := s.Step(now, d.cycleNum); ok {
			d.adapter.Send(s.Vehicle.ID, sp)
			rows = append(rows, d.flightRow(s, sp, now))
		}
	}

	for _, s := range d.sessions {
		cur := s.State()
		if cur == prev[s.Vehicle.ID] || cur == session.Faulted {
			continue
		}
		events = append(events, telemetry.EventRow{
			MissionID:  d.missionID,
			Type:       telemetry.EventTransition,
			VehicleIDs: []string{fmt.Sprintf("%d", s.Vehicle.ID)},
			Detail:     prev[s.Vehicle.ID].String() + " -> " + cur.String(),
			Clock:      now,
			Timestamp:  time.Now().UTC(),
		})
	}

	// Batch support if writer implements WriteBatch
	if bw, ok := d.writer.(batchFlightWriter); ok {
		if err := bw.WriteBatch(rows); err != nil {
			log.Error("batch write failed", "err", err)
		}
	} else {
		for _, row := range rows {
			if err := d.writer.Write(row); err != nil {
				log.Error("write failed", "vehicle_id", row.VehicleID, "err", err)
			}
		}
	}

	if len(events) > 0 && d.eventWriter != nil {
		if bw, ok := d.eventWriter.(batchEventWriter); ok {
			if err := bw.WriteEvents(events); err != nil {
				log.Error("event batch write failed", "err", err)
			}
		} else {
			for _, ev := range events {
				if err := d.eventWriter.WriteEvent(ev); err != nil {
					log.Error("event write failed", "err", err)
				}
			}
		}
	}
}

func (d *Dispatcher) flightRow(s *session.Session, sp telemetry.Setpoint, now float64) telemetry.FlightRow {
	row := telemetry.FlightRow{
		MissionID: d.missionID,
		VehicleID: fmt.Sprintf("%d", s.Vehicle.ID),
		State:     s.State().String(),
		Cycle:     int64(d.cycleNum),
		Clock:     now,
		CmdX:      sp.Position.X,
		CmdY:      sp.Position.Y,
		CmdZ:      sp.Position.Z,
		Timestamp: time.Now().UTC(),
	}
	if rec, ok := s.Telemetry(); ok {
		row.ActX = rec.Position.X
		row.ActY = rec.Position.Y
		row.ActZ = rec.Position.Z
		row.Battery = rec.Battery
	}
	return row
}

func (d *Dispatcher) recordCommand(cmd session.Command, ids []string) {
	if d.eventWriter == nil {
		return
	}
	ev := telemetry.EventRow{
		MissionID:  d.missionID,
		Type:       telemetry.EventCommand,
		VehicleIDs: ids,
		Detail:     cmd.Kind.String() + " " + cmd.ID.String(),
		Clock:      d.clock,
		Timestamp:  time.Now().UTC(),
	}
	_ = d.eventWriter.WriteEvent(ev)
}
