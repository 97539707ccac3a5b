package dispatch

import (
	"swarmctl/internal/telemetry"
)

// MultiWriter fan-outs flight rows and events to multiple writers.
type MultiWriter struct {
	flightWriters []FlightWriter
	eventWriters  []EventWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(fws []FlightWriter, ews []EventWriter) *MultiWriter {
	return &MultiWriter{flightWriters: fws, eventWriters: ews}
}

// Write sends a flight row to all writers.
func (mw *MultiWriter) Write(row telemetry.FlightRow) error {
	for _, w := range mw.flightWriters {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple flight rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.FlightRow) error {
	for _, w := range mw.flightWriters {
		if bw, ok := w.(batchFlightWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEvent sends an event row to all event writers.
func (mw *MultiWriter) WriteEvent(e telemetry.EventRow) error {
	for _, w := range mw.eventWriters {
		if err := w.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvents sends multiple event rows to all event writers, using batch if supported.
func (mw *MultiWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, w := range mw.eventWriters {
		if bw, ok := w.(batchEventWriter); ok {
			if err := bw.WriteEvents(rows); err != nil {
				return err
			}
			continue
		}
		for _, e := range rows {
			if err := w.WriteEvent(e); err != nil {
				return err
			}
		}
	}
	return nil
}
