package domain

import (
	"fmt"
	"sort"
)

// MaxDigitalChannels is the width of a digital pattern word.
const MaxDigitalChannels = 32

// TrackKind names one of the three timing tracks.
type TrackKind string

const (
	TrackDigital   TrackKind = "digital"
	TrackHighSpeed TrackKind = "hsdigital"
	TrackAnalog    TrackKind = "analog"
)

// Edge sets a digital channel to a level from tick At onwards.
type Edge struct {
	Channel string `json:"channel" yaml:"channel"`
	At      int    `json:"at" yaml:"at"`
	High    bool   `json:"high" yaml:"high"`
}

// AnalogPoint sets an analog channel to Value from tick At onwards.
type AnalogPoint struct {
	Channel string  `json:"channel" yaml:"channel"`
	At      int     `json:"at" yaml:"at"`
	Value   float64 `json:"value" yaml:"value"`
}

// SequenceSpec holds the unbuilt tracks of one experiment.
// Times are clock ticks; values are already resolved against the parameter set.
type SequenceSpec struct {
	Digital   []Edge        `json:"digital,omitempty" yaml:"digital,omitempty"`
	HighSpeed []Edge        `json:"hsdigital,omitempty" yaml:"hsdigital,omitempty"`
	Analog    []AnalogPoint `json:"analog,omitempty" yaml:"analog,omitempty"`

	// AnalogTrigger names the digital line that starts the analog output.
	// It is passed to the analog generator and is not checked here.
	AnalogTrigger string `json:"analog_trigger,omitempty" yaml:"analog_trigger,omitempty"`
}

// DigitalPattern is a built digital track: one 32-bit word per tick.
// Bit i carries Channels[i].
type DigitalPattern struct {
	Channels []string
	Words    []uint32
}

// Len returns the number of ticks.
func (p DigitalPattern) Len() int { return len(p.Words) }

// Level reports the level of channel at tick.
func (p DigitalPattern) Level(channel string, tick int) bool {
	for i, name := range p.Channels {
		if name == channel {
			return p.Words[tick]&(1<<uint(i)) != 0
		}
	}
	return false
}

// AnalogPattern is a built analog track: one sample per tick per channel.
type AnalogPattern struct {
	Ticks    int
	Channels []string
	Samples  map[string][]float64
	Trigger  string
}

// Len returns the number of ticks.
func (p AnalogPattern) Len() int { return p.Ticks }

// Pattern is a fully built Sequence ready to be sent to the generators.
type Pattern struct {
	Length    int
	Digital   DigitalPattern
	HighSpeed DigitalPattern
	Analog    AnalogPattern
}

// Lengths returns the built length of every track.
func (p *Pattern) Lengths() map[TrackKind]int {
	return map[TrackKind]int{
		TrackDigital:   p.Digital.Len(),
		TrackHighSpeed: p.HighSpeed.Len(),
		TrackAnalog:    p.Analog.Len(),
	}
}

// CheckLength verifies every track was built to length.
func (p *Pattern) CheckLength(length int) error {
	for _, kind := range []TrackKind{TrackDigital, TrackHighSpeed, TrackAnalog} {
		if got := p.Lengths()[kind]; got != length {
			return NewError(KindPatternBuild, "check length",
				fmt.Errorf("%s track has %d ticks, generator configured for %d", kind, got, length))
		}
	}
	return nil
}

// Build renders every track to exactly length ticks.
func (s *SequenceSpec) Build(length int) (*Pattern, error) {
	if length <= 0 {
		return nil, NewError(KindPatternBuild, "build", fmt.Errorf("pattern length must be positive, got %d", length))
	}

	digital, err := buildDigital(TrackDigital, s.Digital, length)
	if err != nil {
		return nil, err
	}
	hs, err := buildDigital(TrackHighSpeed, s.HighSpeed, length)
	if err != nil {
		return nil, err
	}
	analog, err := buildAnalog(s.Analog, length)
	if err != nil {
		return nil, err
	}
	analog.Trigger = s.AnalogTrigger

	return &Pattern{
		Length:    length,
		Digital:   digital,
		HighSpeed: hs,
		Analog:    analog,
	}, nil
}

func buildDigital(kind TrackKind, edges []Edge, length int) (DigitalPattern, error) {
	channels := digitalChannels(edges)
	if len(channels) > MaxDigitalChannels {
		return DigitalPattern{}, NewError(KindPatternBuild, string(kind),
			fmt.Errorf("%d channels exceed the %d-bit word", len(channels), MaxDigitalChannels))
	}
	bit := make(map[string]int, len(channels))
	for i, name := range channels {
		bit[name] = i
	}

	// Per channel, tick -> level. Conflicting levels at the same tick are rejected.
	perChannel := make(map[string]map[int]bool, len(channels))
	for _, e := range edges {
		if e.Channel == "" {
			return DigitalPattern{}, NewError(KindPatternBuild, string(kind), fmt.Errorf("edge at tick %d has no channel", e.At))
		}
		if e.At < 0 || e.At >= length {
			return DigitalPattern{}, NewError(KindPatternBuild, string(kind),
				fmt.Errorf("edge on %q at tick %d is outside [0, %d)", e.Channel, e.At, length))
		}
		ticks := perChannel[e.Channel]
		if ticks == nil {
			ticks = make(map[int]bool)
			perChannel[e.Channel] = ticks
		}
		if prev, ok := ticks[e.At]; ok && prev != e.High {
			return DigitalPattern{}, NewError(KindPatternBuild, string(kind),
				fmt.Errorf("conflicting edges on %q at tick %d", e.Channel, e.At))
		}
		ticks[e.At] = e.High
	}

	words := make([]uint32, length)
	for name, ticks := range perChannel {
		mask := uint32(1) << uint(bit[name])
		level := false
		for t := 0; t < length; t++ {
			if v, ok := ticks[t]; ok {
				level = v
			}
			if level {
				words[t] |= mask
			}
		}
	}

	return DigitalPattern{Channels: channels, Words: words}, nil
}

func buildAnalog(points []AnalogPoint, length int) (AnalogPattern, error) {
	byChannel := make(map[string][]AnalogPoint)
	for _, p := range points {
		if p.Channel == "" {
			return AnalogPattern{}, NewError(KindPatternBuild, string(TrackAnalog), fmt.Errorf("analog point at tick %d has no channel", p.At))
		}
		if p.At < 0 || p.At >= length {
			return AnalogPattern{}, NewError(KindPatternBuild, string(TrackAnalog),
				fmt.Errorf("point on %q at tick %d is outside [0, %d)", p.Channel, p.At, length))
		}
		byChannel[p.Channel] = append(byChannel[p.Channel], p)
	}

	channels := make([]string, 0, len(byChannel))
	for name := range byChannel {
		channels = append(channels, name)
	}
	sort.Strings(channels)

	samples := make(map[string][]float64, len(channels))
	for _, name := range channels {
		pts := byChannel[name]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].At < pts[j].At })
		for i := 1; i < len(pts); i++ {
			if pts[i].At == pts[i-1].At && pts[i].Value != pts[i-1].Value {
				return AnalogPattern{}, NewError(KindPatternBuild, string(TrackAnalog),
					fmt.Errorf("conflicting values on %q at tick %d", name, pts[i].At))
			}
		}

		out := make([]float64, length)
		next, value := 0, 0.0
		for t := 0; t < length; t++ {
			for next < len(pts) && pts[next].At == t {
				value = pts[next].Value
				next++
			}
			out[t] = value
		}
		samples[name] = out
	}

	return AnalogPattern{Ticks: length, Channels: channels, Samples: samples}, nil
}

func digitalChannels(edges []Edge) []string {
	seen := make(map[string]struct{})
	for _, e := range edges {
		seen[e.Channel] = struct{}{}
	}
	channels := make([]string, 0, len(seen))
	for name := range seen {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels
}
