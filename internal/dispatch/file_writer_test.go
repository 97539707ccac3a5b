package dispatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swarmctl/internal/telemetry"
)

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	ts := time.Unix(0, 0).UTC()
	flightPath := filepath.Join(dir, "flight.jsonl")
	eventPath := filepath.Join(dir, "events.jsonl")

	fw, err := NewFileWriter(flightPath, eventPath)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	row := telemetry.FlightRow{
		MissionID: "m1",
		VehicleID: "2",
		State:     "executing",
		Cycle:     7,
		Clock:     0.14,
		CmdX:      1.5,
		CmdZ:      1.0,
		ActZ:      0.98,
		Battery:   99,
		Timestamp: ts,
	}
	if err := fw.Write(row); err != nil {
		t.Fatalf("write flight: %v", err)
	}
	ev := telemetry.EventRow{
		MissionID:  "m1",
		Type:       telemetry.EventTransition,
		VehicleIDs: []string{"2"},
		Detail:     "taking_off -> executing",
		Clock:      0.14,
		Timestamp:  ts,
	}
	if err := fw.WriteEvent(ev); err != nil {
		t.Fatalf("write event: %v", err)
	}
	fw.Close()

	data, err := os.ReadFile(flightPath)
	if err != nil {
		t.Fatalf("read flight file: %v", err)
	}
	var gotRow telemetry.FlightRow
	if err := json.Unmarshal(data, &gotRow); err != nil {
		t.Fatalf("decode flight: %v", err)
	}
	if gotRow.VehicleID != row.VehicleID || gotRow.CmdX != row.CmdX || gotRow.Cycle != row.Cycle {
		t.Fatalf("unexpected flight row: %#v", gotRow)
	}

	data, err = os.ReadFile(eventPath)
	if err != nil {
		t.Fatalf("read event file: %v", err)
	}
	var gotEv telemetry.EventRow
	if err := json.Unmarshal(data, &gotEv); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if gotEv.Type != ev.Type || gotEv.Detail != ev.Detail {
		t.Fatalf("unexpected event row: %#v", gotEv)
	}
}

func TestFileWriterNoEventLog(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(filepath.Join(dir, "flight.jsonl"), "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer fw.Close()
	if err := fw.WriteEvent(telemetry.EventRow{MissionID: "m1"}); err != nil {
		t.Fatalf("expected event write to be a no-op, got %v", err)
	}
}
