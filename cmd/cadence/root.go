package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/cadence/internal/config"
	"github.com/aretw0/cadence/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

var (
	v      = viper.New()
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence runs timed pattern experiments on lab hardware",
	Long: `Cadence loads experiment definitions, builds their digital and analog
patterns and drives the camera, translation stage and pattern generators
through one run at a time, archiving every run for replay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, file)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(loaded.LogLevel)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(level)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			if exit.Err != nil {
				fmt.Fprintln(os.Stderr, "Error:", exit.Err)
			}
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: ./cadence.yaml or $HOME/.cadence/cadence.yaml)")
	flags.String("data-dir", "", "Directory for run archives and the run index")
	flags.String("scripts-dir", "", "Directory containing experiment definitions")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("hardware-url", "", "Base URL of the hardware controller")
	flags.Bool("simulate", false, "Drive simulated hardware in-process instead of the hardware controller")

	for key, flag := range map[string]string{
		"data_dir":     "data-dir",
		"scripts_dir":  "scripts-dir",
		"log_level":    "log-level",
		"hardware_url": "hardware-url",
		"simulate":     "simulate",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
