package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmctl/internal/dispatch"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a flight log file",
	Long:  "replay feeds flight rows from a log file back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writer, _, cleanup, err := newWriters(nil, replayPrintOnly, "", false)
		if err != nil {
			return err
		}
		defer cleanup()
		return dispatch.ReplayFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to flight log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print flight rows to STDOUT instead of writing to DB")
	replayCmd.MarkFlagRequired("input")
}
