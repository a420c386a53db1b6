package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aretw0/cadence/internal/presentation/tui"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <definition>",
	Short: "Run one experiment",
	Long: `Loads a definition (registry:<name> or a path under the scripts directory),
applies the --set overrides and executes one run on the hardware.

Exits 2 when the run fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseSets(mustStringArray(cmd, "set"))
		if err != nil {
			return err
		}
		req := domain.RunRequest{Definition: args[0], Overrides: overrides}
		if save, ok := saveFlag(cmd); ok {
			req.Save = &save
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl, closeAll, err := setup(ctx)
		if err != nil {
			return err
		}
		defer closeAll()
		if cmd.Flags().Changed("batch") {
			batch, _ := cmd.Flags().GetInt("batch")
			ctrl.SetBatchNumber(batch)
		}

		result, runErr := ctrl.Run(ctx, req)
		return printResult(cmd, result, runErr)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <archive>",
	Short: "Run an archived experiment again",
	Long:  `Restores the definition and parameters stored in a run archive and executes them as a new run.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl, closeAll, err := setup(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		result, runErr := ctrl.RunReplica(ctx, args[0])
		return printResult(cmd, result, runErr)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <definition>",
	Short: "Run an experiment once per value of a parameter",
	Long: `Runs the definition once for every value in --values, setting --param to
that value. The scan stops at the first failed run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		param, _ := cmd.Flags().GetString("param")
		values, _ := cmd.Flags().GetStringSlice("values")
		if param == "" || len(values) == 0 {
			return fmt.Errorf("scan needs --param and --values")
		}
		base, err := parseSets(mustStringArray(cmd, "set"))
		if err != nil {
			return err
		}
		save, explicit := saveFlag(cmd)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl, closeAll, err := setup(ctx)
		if err != nil {
			return err
		}
		defer closeAll()
		if !explicit {
			save = ctrl.SaveEnabled()
		}

		for i, raw := range values {
			params := make(map[string]any, len(base)+1)
			for k, val := range base {
				params[k] = val
			}
			params[param] = parseValue(raw)

			logger.Info("scan step", "step", i+1, "of", len(values), param, raw)
			result, runErr := ctrl.RemoteRun(ctx, args[0], params, save)
			if err := printResult(cmd, result, runErr); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, scanCmd} {
		c.Flags().StringArray("set", nil, "Override a parameter (key=value, repeatable)")
		c.Flags().Bool("save", true, "Archive the run (defaults to the save setting)")
		c.Flags().Bool("no-save", false, "Do not archive the run")
		c.MarkFlagsMutuallyExclusive("save", "no-save")
		c.Flags().Bool("json", false, "Print the result as JSON")
	}
	runCmd.Flags().Int("batch", 0, "Batch number recorded with the run")
	replayCmd.Flags().Bool("json", false, "Print the result as JSON")
	scanCmd.Flags().String("param", "", "Parameter to scan")
	scanCmd.Flags().StringSlice("values", nil, "Comma separated values of the scanned parameter")

	rootCmd.AddCommand(runCmd, replayCmd, scanCmd)
}

// printResult writes the run outcome and maps a failed run to exit code 2.
func printResult(cmd *cobra.Command, result *domain.RunResult, runErr error) error {
	if result == nil {
		return runErr
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, tui.Output(os.Stdout, tui.RunReport(result, runErr)))
	}
	if !result.Success {
		return &ExitError{Code: 2}
	}
	return nil
}

// saveFlag reports the per-run save choice and whether one was given.
func saveFlag(cmd *cobra.Command) (save, explicit bool) {
	if noSave, _ := cmd.Flags().GetBool("no-save"); noSave {
		return false, true
	}
	if cmd.Flags().Changed("save") {
		save, _ = cmd.Flags().GetBool("save")
		return save, true
	}
	return false, false
}

func mustStringArray(cmd *cobra.Command, name string) []string {
	values, _ := cmd.Flags().GetStringArray(name)
	return values
}

// parseSets turns key=value pairs into parameter overrides.
func parseSets(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		out[key] = parseValue(raw)
	}
	return out, nil
}

// parseValue reads ints, floats and booleans; anything else stays a string.
func parseValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
