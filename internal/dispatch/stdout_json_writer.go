package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"swarmctl/internal/telemetry"
)

// JSONStdoutWriter prints flight rows and events as JSON to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a flight row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.FlightRow) error {
	data, _ := json.Marshal(row)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteBatch outputs multiple flight rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.FlightRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent outputs an event row in JSON format.
func (w *JSONStdoutWriter) WriteEvent(e telemetry.EventRow) error {
	data, _ := json.Marshal(e)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteEvents outputs multiple event rows in JSON format.
func (w *JSONStdoutWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, e := range rows {
		_ = w.WriteEvent(e)
	}
	return nil
}
