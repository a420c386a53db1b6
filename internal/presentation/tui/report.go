package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
)

// RunReport renders a run result as markdown.
func RunReport(result *domain.RunResult, runErr error) string {
	var sb strings.Builder
	status := "✅ success"
	if !result.Success {
		status = "❌ failed"
	}
	fmt.Fprintf(&sb, "# Run %s\n\n", orDash(result.ExperimentID))
	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Status | %s |\n", status)
	fmt.Fprintf(&sb, "| Outcome | %s |\n", result.Outcome)
	fmt.Fprintf(&sb, "| Phase | %s |\n", result.Phase)
	fmt.Fprintf(&sb, "| Images | %d |\n", result.ImageCount)
	fmt.Fprintf(&sb, "| Archive | %s |\n", orDash(result.ArchivePath))
	fmt.Fprintf(&sb, "| Run ID | `%s` |\n", orDash(result.CorrelationID))
	if result.ErrorKind != "" {
		fmt.Fprintf(&sb, "| Error kind | %s |\n", result.ErrorKind)
	}

	if runErr != nil {
		fmt.Fprintf(&sb, "\n> **Error:** %s\n", runErr)
	}
	if msg := strings.TrimSpace(result.Message); msg != "" {
		sb.WriteString("\n## Log\n\n")
		for _, line := range strings.Split(msg, "\n") {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}
	return sb.String()
}

// HistoryTable renders indexed runs as a markdown table.
func HistoryTable(runs []domain.RunSummary) string {
	if len(runs) == 0 {
		return "_No runs recorded._\n"
	}
	var sb strings.Builder
	sb.WriteString("| Experiment | Definition | Outcome | Batch | Images | Archive |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range runs {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %d | %s |\n",
			r.ExperimentID, r.Definition, r.Outcome, r.BatchNumber, r.ImageCount, orDash(r.ArchivePath))
	}
	return sb.String()
}

// DefinitionTable renders the available definitions as a markdown table.
func DefinitionTable(defs []domain.DefinitionInfo) string {
	if len(defs) == 0 {
		return "_No definitions found._\n"
	}
	var sb strings.Builder
	sb.WriteString("| Reference | Kind | Description |\n|---|---|---|\n")
	for _, d := range defs {
		fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", d.Ref, d.Kind, d.Description)
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
