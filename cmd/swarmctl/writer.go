package main

import (
	"os"

	"golang.org/x/term"

	"swarmctl/internal/config"
	"swarmctl/internal/dispatch"
)

// newWriters sets up flight and event writers based on flags and env vars.
// It returns the writers and a cleanup function to close any resources.
func newWriters(cfg *config.MissionConfig, printOnly bool, logFile string, tui bool) (dispatch.FlightWriter, dispatch.EventWriter, func(), error) {
	cleanup := func() {}

	writer, eventWriter, closeBase, err := baseWriters(cfg, printOnly, tui)
	if err != nil {
		return nil, nil, nil, err
	}
	if logFile == "" {
		return writer, eventWriter, closeBase, nil
	}

	fw, err := dispatch.NewFileWriter(logFile, logFile+".events")
	if err != nil {
		closeBase()
		return nil, nil, nil, err
	}
	mw := dispatch.NewMultiWriter(
		[]dispatch.FlightWriter{writer, fw},
		[]dispatch.EventWriter{eventWriter, fw},
	)
	cleanup = func() {
		fw.Close()
		closeBase()
	}
	return mw, mw, cleanup, nil
}

// baseWriters chooses the underlying writers: the TUI console on a terminal,
// GreptimeDB when configured, STDOUT JSON otherwise.
func baseWriters(cfg *config.MissionConfig, printOnly bool, tui bool) (dispatch.FlightWriter, dispatch.EventWriter, func(), error) {
	if printOnly {
		w := dispatch.NewJSONStdoutWriter()
		return w, w, func() {}, nil
	}

	if tui && term.IsTerminal(int(os.Stdout.Fd())) {
		w := dispatch.NewTUIWriter(cfg)
		return w, w, func() { w.Close() }, nil
	}

	if os.Getenv("GREPTIMEDB_ENDPOINT") == "" {
		w := dispatch.NewJSONStdoutWriter()
		return w, w, func() {}, nil
	}

	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	flightTable := os.Getenv("SWARM_FLIGHT_TABLE")
	eventTable := os.Getenv("SWARM_EVENT_TABLE")
	w, err := dispatch.NewGreptimeDBWriter(endpoint, "public", flightTable, eventTable)
	if err != nil {
		return nil, nil, nil, err
	}
	return w, w, func() {}, nil
}
