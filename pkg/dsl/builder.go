package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
)

// Builder accumulates the tracks of one sequence.
type Builder struct {
	spec domain.SequenceSpec
	errs []error
}

// NewSequence creates an empty sequence builder.
func NewSequence() *Builder {
	return &Builder{}
}

// Digital returns a builder for a channel of the digital track.
func (b *Builder) Digital(channel string) *ChannelBuilder {
	return &ChannelBuilder{builder: b, track: domain.TrackDigital, channel: channel}
}

// HighSpeed returns a builder for a channel of the high-speed digital track.
func (b *Builder) HighSpeed(channel string) *ChannelBuilder {
	return &ChannelBuilder{builder: b, track: domain.TrackHighSpeed, channel: channel}
}

// Analog returns a builder for an analog channel.
func (b *Builder) Analog(channel string) *AnalogBuilder {
	return &AnalogBuilder{builder: b, channel: channel}
}

// TriggerAnalogFrom records the digital line that starts the analog output.
func (b *Builder) TriggerAnalogFrom(channel string) *Builder {
	b.spec.AnalogTrigger = channel
	return b
}

// Build returns the accumulated sequence, or every recorded builder error.
func (b *Builder) Build() (*domain.SequenceSpec, error) {
	if len(b.errs) > 0 {
		return nil, domain.NewError(domain.KindPatternBuild, "dsl", errors.Join(b.errs...))
	}
	spec := b.spec
	spec.Digital = append([]domain.Edge(nil), b.spec.Digital...)
	spec.HighSpeed = append([]domain.Edge(nil), b.spec.HighSpeed...)
	spec.Analog = append([]domain.AnalogPoint(nil), b.spec.Analog...)
	return &spec, nil
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

// ChannelBuilder adds edges to one digital channel.
type ChannelBuilder struct {
	builder *Builder
	track   domain.TrackKind
	channel string
}

// High drives the channel high from tick at.
func (c *ChannelBuilder) High(at int) *ChannelBuilder {
	return c.edge(at, true)
}

// Low drives the channel low from tick at.
func (c *ChannelBuilder) Low(at int) *ChannelBuilder {
	return c.edge(at, false)
}

// Pulse drives the channel high at tick at for duration ticks.
func (c *ChannelBuilder) Pulse(at, duration int) *ChannelBuilder {
	if duration <= 0 {
		c.builder.fail("%s/%s: pulse at %d has non-positive duration %d", c.track, c.channel, at, duration)
		return c
	}
	return c.edge(at, true).edge(at+duration, false)
}

// Train emits count pulses of duration ticks, one every interval ticks from start.
func (c *ChannelBuilder) Train(start, count, interval, duration int) *ChannelBuilder {
	if interval <= duration {
		c.builder.fail("%s/%s: train interval %d must exceed pulse duration %d", c.track, c.channel, interval, duration)
		return c
	}
	for i := 0; i < count; i++ {
		c.Pulse(start+i*interval, duration)
	}
	return c
}

func (c *ChannelBuilder) edge(at int, high bool) *ChannelBuilder {
	e := domain.Edge{Channel: c.channel, At: at, High: high}
	if c.track == domain.TrackHighSpeed {
		c.builder.spec.HighSpeed = append(c.builder.spec.HighSpeed, e)
	} else {
		c.builder.spec.Digital = append(c.builder.spec.Digital, e)
	}
	return c
}

// AnalogBuilder adds points to one analog channel.
type AnalogBuilder struct {
	builder *Builder
	channel string
}

// Set holds value from tick at.
func (a *AnalogBuilder) Set(at int, value float64) *AnalogBuilder {
	a.builder.spec.Analog = append(a.builder.spec.Analog, domain.AnalogPoint{Channel: a.channel, At: at, Value: value})
	return a
}

// Ramp steps linearly from one value to another between ticks from and to.
func (a *AnalogBuilder) Ramp(from, to int, start, end float64, steps int) *AnalogBuilder {
	if steps <= 0 || to <= from {
		a.builder.fail("analog/%s: invalid ramp %d..%d in %d steps", a.channel, from, to, steps)
		return a
	}
	for i := 0; i <= steps; i++ {
		at := from + (to-from)*i/steps
		a.Set(at, start+(end-start)*float64(i)/float64(steps))
	}
	return a
}
