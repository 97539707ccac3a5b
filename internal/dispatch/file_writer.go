package dispatch

import (
	"encoding/json"
	"os"

	"swarmctl/internal/telemetry"
)

// FileWriter writes flight rows and events to JSONL files.
type FileWriter struct {
	flightFile *os.File
	eventFile  *os.File
	flightEnc  *json.Encoder
	eventEnc   *json.Encoder
}

// NewFileWriter creates a FileWriter. eventPath may be empty to skip the
// event log.
func NewFileWriter(flightPath, eventPath string) (*FileWriter, error) {
	ff, err := os.Create(flightPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{flightFile: ff, flightEnc: json.NewEncoder(ff)}
	if eventPath != "" {
		ef, err := os.Create(eventPath)
		if err != nil {
			ff.Close()
			return nil, err
		}
		fw.eventFile = ef
		fw.eventEnc = json.NewEncoder(ef)
	}
	return fw, nil
}

// Write logs a single flight row.
func (f *FileWriter) Write(row telemetry.FlightRow) error {
	return f.flightEnc.Encode(row)
}

// WriteBatch logs multiple flight rows.
func (f *FileWriter) WriteBatch(rows []telemetry.FlightRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent logs a single event row, if enabled.
func (f *FileWriter) WriteEvent(e telemetry.EventRow) error {
	if f.eventEnc == nil {
		return nil
	}
	return f.eventEnc.Encode(e)
}

// WriteEvents logs multiple event rows.
func (f *FileWriter) WriteEvents(rows []telemetry.EventRow) error {
	for _, e := range rows {
		if err := f.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.flightFile != nil {
		if e := f.flightFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.eventFile != nil {
		if e := f.eventFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
