package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swarmctl/internal/admin"
	"swarmctl/internal/config"
	"swarmctl/internal/dispatch"
	"swarmctl/internal/link"
	"swarmctl/internal/logging"
)

var (
	flyPrintOnly  bool
	flyConfigPath string
	flySchemaPath string
	flyLogFile    string
	flyNoTUI      bool
	flyUDPListen  string
	flyAdminAddr  string
)

var flyCmd = &cobra.Command{
	Use:   "fly",
	Short: "Run a mission against the fleet",
	Long:  "fly loads the mission config, connects the link adapter, and runs the fixed-rate dispatch loop with the admin surface on the side.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), log))
		defer cancel()

		cfg, err := config.Load(flyConfigPath, flySchemaPath)
		if err != nil {
			return err
		}

		writer, eventWriter, cleanup, err := newWriters(cfg, flyPrintOnly, flyLogFile, !flyNoTUI)
		if err != nil {
			return err
		}
		defer cleanup()

		adapter, closeAdapter, err := newAdapter(cfg)
		if err != nil {
			return err
		}
		defer closeAdapter()

		d := dispatch.New(cfg, adapter, writer, eventWriter)

		srv := admin.NewServer(d)
		go func() {
			log.Info("admin surface listening", "addr", flyAdminAddr)
			if err := srv.Start(flyAdminAddr); err != nil && err != http.ErrServerClosed {
				log.Error("admin server failed", "err", err)
			}
		}()

		go d.Run(ctx)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		cancel()
		log.Info("mission stopped", "mission_id", cfg.MissionID)
		return nil
	},
}

// newAdapter selects the link: UDP when a listen address is given, otherwise
// the in-process loopback fleet.
func newAdapter(cfg *config.MissionConfig) (link.Adapter, func(), error) {
	if flyUDPListen != "" {
		addrs := make(map[int]string, len(cfg.Vehicles))
		for _, v := range cfg.Vehicles {
			addrs[v.ID] = v.Address
		}
		u, err := link.NewUDP(addrs, flyUDPListen)
		if err != nil {
			return nil, nil, err
		}
		return u, func() { u.Close() }, nil
	}
	lb := link.NewLoopback(cfg.Vehicles, cfg.Sim, 1/cfg.CycleRateHz)
	return lb, func() {}, nil
}

func init() {
	flyCmd.Flags().BoolVar(&flyPrintOnly, "print-only", false, "Print flight rows to STDOUT instead of writing to DB")
	flyCmd.Flags().StringVar(&flyConfigPath, "config", "config/fleet.yaml", "Path to mission configuration YAML")
	flyCmd.Flags().StringVar(&flySchemaPath, "schema", "schemas/fleet.cue", "Path to CUE schema file")
	flyCmd.Flags().StringVar(&flyLogFile, "log-file", "", "Path to export flight/event logs (JSONL)")
	flyCmd.Flags().BoolVar(&flyNoTUI, "no-tui", false, "Disable the terminal fleet console")
	flyCmd.Flags().StringVar(&flyUDPListen, "udp-listen", "", "Telemetry listen address; enables the UDP link instead of loopback")
	flyCmd.Flags().StringVar(&flyAdminAddr, "admin-addr", ":8080", "Admin surface listen address")
}
