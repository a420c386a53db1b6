package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/presentation/graph"
	"github.com/aretw0/cadence/internal/presentation/tui"
	"github.com/aretw0/cadence/pkg/adapters/file"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/spf13/cobra"
)

// planner builds a Controller that never touches the lab: definitions are
// loaded and built against a simulated rig and nothing is recorded.
func planner() (*cadence.Controller, error) {
	return cadence.New(cfg.ScriptsDir,
		memory.NewRig().Hardware(),
		file.NewArchive(cfg.DataDir, file.WithLogger(logger)),
		memory.NewLocker(),
		cadence.WithConfig(cfg.Runtime()),
		cadence.WithLogger(logger),
	)
}

var scriptsCmd = &cobra.Command{
	Use:     "scripts",
	Aliases: []string{"definitions"},
	Short:   "List the available experiment definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := planner()
		if err != nil {
			return err
		}
		defs, err := ctrl.Definitions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.Output(os.Stdout, tui.DefinitionTable(defs)))
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [definition...]",
	Short: "Load and build definitions without running them",
	Long: `Loads every given definition (or every available one), checks its parameters
and builds its pattern. Nothing is sent to the hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := planner()
		if err != nil {
			return err
		}
		refs := args
		if len(refs) == 0 {
			defs, err := ctrl.Definitions(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range defs {
				refs = append(refs, d.Ref)
			}
		}

		out := cmd.OutOrStdout()
		var failed []string
		for _, ref := range refs {
			_, pattern, err := ctrl.Plan(cmd.Context(), ref, nil)
			if err != nil {
				failed = append(failed, ref)
				fmt.Fprintf(out, "❌ %s: %v\n", ref, err)
				continue
			}
			fmt.Fprintf(out, "✅ %s (%d ticks)\n", ref, pattern.Length)
		}
		if len(failed) > 0 {
			return &ExitError{Code: 1, Err: errors.New("invalid definitions: " + strings.Join(failed, ", "))}
		}
		return nil
	},
}

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <definition>",
	Short: "Export the pattern timeline of a definition",
	Long:  `Builds the definition's pattern and prints it as a Mermaid gantt chart, one bar per channel level.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseSets(mustStringArray(cmd, "set"))
		if err != nil {
			return err
		}
		critical, _ := cmd.Flags().GetStringSlice("critical")

		ctrl, err := planner()
		if err != nil {
			return err
		}
		def, pattern, err := ctrl.Plan(cmd.Context(), args[0], overrides)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(def.Name, pattern, cfg.ClockHz, &graph.Overlay{Critical: critical}))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack()
		if err != nil {
			return err
		}
		defer st.Close()

		filter := domain.HistoryFilter{}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if cmd.Flags().Changed("batch") {
			batch, _ := cmd.Flags().GetInt("batch")
			filter.Batch = &batch
		}
		runs, err := st.index.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.Output(os.Stdout, tui.HistoryTable(runs)))
		return nil
	},
}

func init() {
	graphCmd.Flags().StringArray("set", nil, "Override a parameter (key=value, repeatable)")
	graphCmd.Flags().StringSlice("critical", []string{"cameraTrigger"}, "Channels highlighted in the chart")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs")
	historyCmd.Flags().Int("batch", 0, "Only runs of this batch number")

	rootCmd.AddCommand(scriptsCmd, validateCmd, graphCmd, historyCmd)
}
