package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmctl/internal/trajectory"
)

var checkTolerance float64

var checkCmd = &cobra.Command{
	Use:   "check <trajectory.yaml>",
	Short: "Validate a trajectory description file",
	Long:  "check parses a trajectory YAML file and verifies segment durations, coefficient degrees, and boundary continuity.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		traj, err := trajectory.LoadFile(args[0], checkTolerance)
		if err != nil {
			return err
		}
		start := traj.Evaluate(0)
		end := traj.Evaluate(traj.Duration())
		fmt.Printf("%s: ok\n", args[0])
		fmt.Printf("  duration: %.2fs\n", traj.Duration())
		fmt.Printf("  start:    (%.2f, %.2f, %.2f)\n", start.Position.X, start.Position.Y, start.Position.Z)
		fmt.Printf("  end:      (%.2f, %.2f, %.2f)\n", end.Position.X, end.Position.Y, end.Position.Z)
		return nil
	},
}

func init() {
	checkCmd.Flags().Float64Var(&checkTolerance, "tolerance", 0.1, "Continuity tolerance at segment boundaries (m, m/s)")
}
