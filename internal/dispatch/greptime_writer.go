package dispatch

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"strconv"

	"swarmctl/internal/telemetry"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// greptimeClient abstracts the ingester client for testing.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes flight rows and events to GreptimeDB via the
// ingester client.
type GreptimeDBWriter struct {
	client      greptimeClient
	flightTable string
	eventTable  string
}

// NewGreptimeDBWriter creates a new GreptimeDB writer. Table names may be
// empty to use the defaults.
func NewGreptimeDBWriter(endpoint, database, flightTable, eventTable string) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(endpoint)
	if host, portStr, splitErr := net.SplitHostPort(endpoint); splitErr == nil {
		cfg = greptime.NewConfig(host)
		if port, portErr := strconv.Atoi(portStr); portErr == nil {
			cfg = cfg.WithPort(port)
		}
	}
	cfg = cfg.WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if flightTable == "" {
		flightTable = telemetry.FlightTableName
	}
	if eventTable == "" {
		eventTable = telemetry.EventTableName
	}
	return &GreptimeDBWriter{
		client:      client,
		flightTable: flightTable,
		eventTable:  eventTable,
	}, nil
}

// Write inserts a single flight row.
func (w *GreptimeDBWriter) Write(row telemetry.FlightRow) error {
	return w.WriteBatch([]telemetry.FlightRow{row})
}

// WriteBatch inserts multiple flight rows.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.FlightRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx := ingesterContext.New(context.Background())

	tbl, err := table.New(w.flightTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("mission_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("vehicle_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("state", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("cycle", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("clock", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("cmd_x", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("cmd_y", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("cmd_z", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("act_x", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("act_y", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("act_z", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("battery", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, r := range rows {
		if err := tbl.AddRow(
			r.MissionID, r.VehicleID,
			r.State, r.Cycle, r.Clock,
			r.CmdX, r.CmdY, r.CmdZ,
			r.ActX, r.ActY, r.ActZ,
			r.Battery, r.Timestamp,
		); err != nil {
			return err
		}
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		log.Printf("[GreptimeDBWriter] flight write failed: %v", err)
		return err
	}
	return nil
}

// WriteEvent inserts a single event row.
func (w *GreptimeDBWriter) WriteEvent(e telemetry.EventRow) error {
	return w.WriteEvents([]telemetry.EventRow{e})
}

// WriteEvents inserts multiple event rows. Vehicle ids are stored as a JSON
// column.
func (w *GreptimeDBWriter) WriteEvents(rows []telemetry.EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx := ingesterContext.New(context.Background())

	tbl, err := table.New(w.eventTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("mission_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("event_type", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("vehicle_ids", types.JSON); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("detail", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("clock", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, e := range rows {
		ids, err := json.Marshal(e.VehicleIDs)
		if err != nil {
			return err
		}
		if err := tbl.AddRow(
			e.MissionID, e.Type,
			string(ids), e.Detail, e.Clock,
			e.Timestamp,
		); err != nil {
			return err
		}
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		log.Printf("[GreptimeDBWriter] event write failed: %v", err)
		return err
	}
	return nil
}
