package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// GeneratorConfig configures a pattern generator before output.
type GeneratorConfig struct {
	ClockHz int
	Length  int
}

// DigitalGenerator outputs digital patterns.
type DigitalGenerator interface {
	Configure(ctx context.Context, cfg GeneratorConfig) error
	Output(ctx context.Context, pattern domain.DigitalPattern) error
	Stop(ctx context.Context) error
}

// HighSpeedGenerator is the shared high-speed digital generator.
// It is opened per run and closed before the resource is handed back.
type HighSpeedGenerator interface {
	DigitalGenerator
	Close() error
}

// HighSpeedFactory opens a local handle on the high-speed generator.
// It must only be called once the external holder released the device.
type HighSpeedFactory interface {
	Open(ctx context.Context) (HighSpeedGenerator, error)
}

// AnalogGenerator outputs analog patterns. Output waits for the external trigger.
type AnalogGenerator interface {
	Configure(ctx context.Context, cfg GeneratorConfig, pattern domain.AnalogPattern) error
	OutputAndWait(ctx context.Context, pattern domain.AnalogPattern) error
	Stop(ctx context.Context) error
}
