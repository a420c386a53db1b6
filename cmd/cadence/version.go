package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of cadence",
	Run: func(cmd *cobra.Command, args []string) {
		if banner, _ := cmd.Flags().GetBool("banner"); banner {
			tui.PrintBanner(cmd.OutOrStdout())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cadence version %s\n", strings.TrimSpace(cadence.Version))
	},
}

func init() {
	versionCmd.Flags().Bool("banner", false, "Print the banner")
	rootCmd.AddCommand(versionCmd)
}
