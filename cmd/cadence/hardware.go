package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cadencehttp "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/analysis"
	"github.com/spf13/cobra"
)

var hardwareCmd = &cobra.Command{
	Use:   "hardware",
	Short: "Run the simulated hardware controller",
	Long: `Serves a simulated camera, translation stage and status reporter over HTTP
and owns the high-speed generator lease between runs. A second listener
serves the image analysis used when a definition sets NeedsAnalysis.

Point the orchestrator at it with --hardware-url and share a redis.addr so
the lease handoff crosses processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := openLocker()
		defer st.Close()

		rig := memory.NewRig(memory.WithLeaseHolder(st.locker, cfg.LeaseTTL))
		if err := rig.Hold(ctx); err != nil {
			return fmt.Errorf("failed to take the high-speed lease: %w", err)
		}

		hw := &http.Server{
			Addr: cfg.Hardware.Addr,
			Handler: cadencehttp.NewHardwareHandler(cadencehttp.HardwareService{
				Imaging:  rig.Imaging(),
				Stage:    rig.Stage(),
				Reporter: rig.Reporter(),
				Releaser: rig.Releaser(),
				Camera:   rig.Camera(),
				Trigger:  rig.Trigger,
			}, cadencehttp.WithHardwareLogger(logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		an := &http.Server{
			Addr:              cfg.Hardware.AnalyzerAddr,
			Handler:           cadencehttp.NewAnalyzerHandler(analysis.NewStats(), logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("hardware controller listening", "address", hw.Addr, "analyzer", an.Addr)
		return serveUntilDone(ctx, hw, an)
	},
}

func init() {
	hardwareCmd.Flags().String("addr", "", "Hardware controller address (default :1172)")
	hardwareCmd.Flags().String("analyzer-addr", "", "Analysis service address (default :1188)")
	for key, flag := range map[string]string{
		"hardware.addr":          "addr",
		"hardware.analyzer_addr": "analyzer-addr",
	} {
		if err := v.BindPFlag(key, hardwareCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	rootCmd.AddCommand(hardwareCmd)
}
