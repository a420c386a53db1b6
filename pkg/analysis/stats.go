// Package analysis computes image statistics for the analysis report.
package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/aretw0/cadence/pkg/domain"
)

// FrameStats summarizes one image.
type FrameStats struct {
	Min  uint16  `json:"min" yaml:"min"`
	Max  uint16  `json:"max" yaml:"max"`
	Mean float64 `json:"mean" yaml:"mean"`
	Sum  uint64  `json:"sum" yaml:"sum"`
}

// Compute returns the statistics of img.
func Compute(img domain.Image) FrameStats {
	if len(img.Pix) == 0 {
		return FrameStats{}
	}
	s := FrameStats{Min: math.MaxUint16}
	for _, p := range img.Pix {
		if p < s.Min {
			s.Min = p
		}
		if p > s.Max {
			s.Max = p
		}
		s.Sum += uint64(p)
	}
	s.Mean = float64(s.Sum) / float64(len(img.Pix))
	return s
}

// Stats is an in-process ports.Analyzer.
type Stats struct{}

// NewStats creates the statistics analyzer.
func NewStats() *Stats { return &Stats{} }

// Analyze reports per-frame statistics and the frame count.
func (Stats) Analyze(ctx context.Context, experimentID string, images []domain.Image, params domain.ParameterSet) (map[string]any, error) {
	frames := make([]any, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(img.Pix) != img.Width*img.Height {
			return nil, fmt.Errorf("frame %d is malformed: %d pixels for %dx%d", i, len(img.Pix), img.Width, img.Height)
		}
		s := Compute(img)
		frames = append(frames, map[string]any{
			"min":  int(s.Min),
			"max":  int(s.Max),
			"mean": s.Mean,
			"sum":  s.Sum,
		})
	}
	return map[string]any{
		"experiment_id": experimentID,
		"frame_count":   len(images),
		"frames":        frames,
	}, nil
}
