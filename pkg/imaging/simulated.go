package imaging

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// Simulated is a Backend producing synthetic frames.
// External acquisitions complete when Fire is called, which the simulated
// high-speed generator does when it outputs its pattern.
type Simulated struct {
	Width    int
	Height   int
	Exposure time.Duration

	mu         sync.Mutex
	fire       chan struct{}
	stop       chan struct{}
	drop       bool
	seq        int
	attributes string
}

// NewSimulated creates a backend of the given frame size.
func NewSimulated(width, height int) *Simulated {
	return &Simulated{
		Width:    width,
		Height:   height,
		Exposure: 20 * time.Millisecond,
		fire:     make(chan struct{}, 1),
		stop:     make(chan struct{}, 1),
	}
}

// Fire pulses the external trigger line. A pulse is latched until the next
// external acquisition consumes it or Stop clears it.
func (s *Simulated) Fire() {
	select {
	case s.fire <- struct{}{}:
	default:
	}
}

// DropFrames makes external acquisitions end without data.
func (s *Simulated) DropFrames(drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = drop
}

func (s *Simulated) Acquire(ctx context.Context, req Acquisition, armed func()) ([]domain.Image, error) {
	drain(s.stop)
	armed()

	if req.Trigger == TriggerExternal {
		select {
		case <-s.fire:
		case <-s.stop:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		drop := s.drop
		s.mu.Unlock()
		if drop {
			return nil, nil
		}
	} else {
		timer := time.NewTimer(s.Exposure)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stop:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	images := make([]domain.Image, req.Frames)
	for i := range images {
		images[i] = s.frame()
	}
	return images, nil
}

// frame renders a diagonal gradient that shifts with every exposure.
func (s *Simulated) frame() domain.Image {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	img := domain.Image{Width: s.Width, Height: s.Height, Pix: make([]uint16, s.Width*s.Height)}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.Pix[y*s.Width+x] = uint16((x + y + seq) * 257)
		}
	}
	return img
}

func (s *Simulated) Stop() error {
	drain(s.fire)
	select {
	case s.stop <- struct{}{}:
	default:
	}
	return nil
}

func (s *Simulated) Configure(attributes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes = attributes
	return nil
}

func (s *Simulated) Close() error { return nil }

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
