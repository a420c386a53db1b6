package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
)

// Overlay marks channels to emphasize on the timeline.
type Overlay struct {
	// Critical channels are drawn with the crit style (e.g. the camera trigger).
	Critical []string
}

// GenerateMermaid renders a built pattern as a Mermaid gantt chart.
// The time axis is in clock ticks. Digital channels show one bar per high
// interval; analog channels show one bar per non-zero constant segment.
func GenerateMermaid(title string, pattern *domain.Pattern, clockHz int, overlay *Overlay) string {
	critical := make(map[string]bool)
	if overlay != nil {
		for _, ch := range overlay.Critical {
			critical[ch] = true
		}
	}

	var sb strings.Builder
	sb.WriteString("gantt\n")
	fmt.Fprintf(&sb, "    title %s\n", sanitizeLabel(title))
	sb.WriteString("    dateFormat x\n")
	sb.WriteString("    axisFormat %L\n")
	sb.WriteString("    todayMarker off\n")
	fmt.Fprintf(&sb, "    %%%% %d ticks @ %d Hz\n", pattern.Length, clockHz)

	writeDigital(&sb, "d", domain.TrackDigital, pattern.Digital, critical)
	writeDigital(&sb, "h", domain.TrackHighSpeed, pattern.HighSpeed, critical)

	if len(pattern.Analog.Channels) > 0 {
		fmt.Fprintf(&sb, "    section %s\n", domain.TrackAnalog)
		for _, ch := range pattern.Analog.Channels {
			for i, seg := range segments(pattern.Analog.Samples[ch]) {
				label := fmt.Sprintf("%s = %s", ch, strconv.FormatFloat(seg.value, 'g', -1, 64))
				writeTask(&sb, label, "a", ch, i, seg.start, seg.end, critical[ch])
			}
		}
	}
	return sb.String()
}

func writeDigital(sb *strings.Builder, prefix string, kind domain.TrackKind, p domain.DigitalPattern, critical map[string]bool) {
	if len(p.Channels) == 0 {
		return
	}
	fmt.Fprintf(sb, "    section %s\n", kind)
	for bit, ch := range p.Channels {
		mask := uint32(1) << uint(bit)
		levels := make([]float64, len(p.Words))
		for t, w := range p.Words {
			if w&mask != 0 {
				levels[t] = 1
			}
		}
		for i, seg := range segments(levels) {
			writeTask(sb, ch, prefix, ch, i, seg.start, seg.end, critical[ch])
		}
	}
}

func writeTask(sb *strings.Builder, label, prefix, channel string, n, start, end int, crit bool) {
	tags := ""
	if crit {
		tags = "crit, "
	}
	fmt.Fprintf(sb, "    %s :%s%s_%s_%d, %d, %d\n", sanitizeLabel(label), tags, prefix, sanitizeMermaidID(channel), n, start, end)
}

type segment struct {
	start, end int
	value      float64
}

// segments returns the maximal runs of equal non-zero samples.
func segments(samples []float64) []segment {
	var out []segment
	for t := 0; t < len(samples); {
		v := samples[t]
		end := t + 1
		for end < len(samples) && samples[end] == v {
			end++
		}
		if v != 0 {
			out = append(out, segment{start: t, end: end, value: v})
		}
		t = end
	}
	return out
}

func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, ":", " ")
	s = strings.ReplaceAll(s, "#", " ")
	return strings.ReplaceAll(s, ";", " ")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "\\", "_")
}
