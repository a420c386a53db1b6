package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Cadence banner.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`   ____          _                      `, "#38bdf8"},
		{`  / ___|__ _  __| | ___ _ __   ___ ___  `, "#22d3ee"},
		{` | |   / _' |/ _' |/ _ \ '_ \ / __/ _ \ `, "#2dd4bf"},
		{` | |__| (_| | (_| |  __/ | | | (_|  __/ `, "#34d399"},
		{`  \____\__,_|\__,_|\___|_| |_|\___\___| `, "#4ade80"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Status colours an outcome for terminal output.
func Status(success bool, text string) string {
	p := termenv.ColorProfile()
	if success {
		return termenv.String(text).Foreground(p.Color("#22c55e")).Bold().String()
	}
	return termenv.String(text).Foreground(p.Color("#ef4444")).Bold().String()
}
