package definition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Document is a declarative experiment.
// Tick and value fields accept a number or the name of a parameter; names are
// resolved against the merged parameter set when the sequence is produced.
type Document struct {
	Name          string         `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
	Digital       []EdgeSpec     `json:"digital,omitempty" yaml:"digital,omitempty" mapstructure:"digital"`
	HighSpeed     []EdgeSpec     `json:"hsdigital,omitempty" yaml:"hsdigital,omitempty" mapstructure:"hsdigital"`
	Analog        []PointSpec    `json:"analog,omitempty" yaml:"analog,omitempty" mapstructure:"analog"`
	Pulses        []PulseSpec    `json:"pulses,omitempty" yaml:"pulses,omitempty" mapstructure:"pulses"`
	AnalogTrigger string         `json:"analog_trigger,omitempty" yaml:"analog_trigger,omitempty" mapstructure:"analog_trigger"`
}

// EdgeSpec drives a digital channel to Level from tick At.
// Level is a bool, "high"/"low", 0/1 or a parameter name.
type EdgeSpec struct {
	Channel string `json:"channel" yaml:"channel" mapstructure:"channel"`
	At      any    `json:"at" yaml:"at" mapstructure:"at"`
	Level   any    `json:"level" yaml:"level" mapstructure:"level"`
}

// PointSpec holds an analog channel at Value from tick At.
type PointSpec struct {
	Channel string `json:"channel" yaml:"channel" mapstructure:"channel"`
	At      any    `json:"at" yaml:"at" mapstructure:"at"`
	Value   any    `json:"value" yaml:"value" mapstructure:"value"`
}

// PulseSpec expands to a rising edge at At and a falling edge Duration ticks later.
// Track is "digital" (default) or "hsdigital".
type PulseSpec struct {
	Channel  string `json:"channel" yaml:"channel" mapstructure:"channel"`
	Track    string `json:"track,omitempty" yaml:"track,omitempty" mapstructure:"track"`
	At       any    `json:"at" yaml:"at" mapstructure:"at"`
	Duration any    `json:"duration" yaml:"duration" mapstructure:"duration"`
}

// Decode builds a Document from loosely typed data such as YAML frontmatter.
func Decode(data map[string]any) (*Document, error) {
	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &doc,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return &doc, nil
}

// Defaults returns a normalized copy of the declared parameters.
func (d *Document) Defaults() domain.ParameterSet {
	return domain.ParameterSet(d.Parameters).Clone().Normalize()
}

// Sequence resolves every track against params.
func (d *Document) Sequence(params domain.ParameterSet) (*domain.SequenceSpec, error) {
	r := resolver{params: params}
	spec := &domain.SequenceSpec{AnalogTrigger: d.AnalogTrigger}

	for i, e := range d.Digital {
		edge, err := r.edge(fmt.Sprintf("digital[%d]", i), e)
		if err != nil {
			return nil, err
		}
		spec.Digital = append(spec.Digital, edge)
	}
	for i, e := range d.HighSpeed {
		edge, err := r.edge(fmt.Sprintf("hsdigital[%d]", i), e)
		if err != nil {
			return nil, err
		}
		spec.HighSpeed = append(spec.HighSpeed, edge)
	}
	for i, p := range d.Pulses {
		where := fmt.Sprintf("pulses[%d]", i)
		at, err := r.tick(where+".at", p.At)
		if err != nil {
			return nil, err
		}
		dur, err := r.tick(where+".duration", p.Duration)
		if err != nil {
			return nil, err
		}
		if dur <= 0 {
			return nil, buildError(where, fmt.Errorf("duration must be positive, got %d", dur))
		}
		edges := []domain.Edge{
			{Channel: p.Channel, At: at, High: true},
			{Channel: p.Channel, At: at + dur, High: false},
		}
		switch domain.TrackKind(strings.ToLower(p.Track)) {
		case "", domain.TrackDigital:
			spec.Digital = append(spec.Digital, edges...)
		case domain.TrackHighSpeed:
			spec.HighSpeed = append(spec.HighSpeed, edges...)
		default:
			return nil, buildError(where, fmt.Errorf("unknown track %q", p.Track))
		}
	}
	for i, p := range d.Analog {
		where := fmt.Sprintf("analog[%d]", i)
		at, err := r.tick(where+".at", p.At)
		if err != nil {
			return nil, err
		}
		v, err := r.number(where+".value", p.Value)
		if err != nil {
			return nil, err
		}
		spec.Analog = append(spec.Analog, domain.AnalogPoint{Channel: p.Channel, At: at, Value: v})
	}
	return spec, nil
}

type resolver struct {
	params domain.ParameterSet
}

func buildError(where string, err error) error {
	return domain.NewError(domain.KindPatternBuild, where, err)
}

func (r resolver) edge(where string, e EdgeSpec) (domain.Edge, error) {
	at, err := r.tick(where+".at", e.At)
	if err != nil {
		return domain.Edge{}, err
	}
	high, err := r.level(where+".level", e.Level)
	if err != nil {
		return domain.Edge{}, err
	}
	return domain.Edge{Channel: e.Channel, At: at, High: high}, nil
}

func (r resolver) lookup(where string, v any) (any, error) {
	name, ok := v.(string)
	if !ok {
		return v, nil
	}
	if value, found := r.params[name]; found {
		return value, nil
	}
	if f, err := strconv.ParseFloat(name, 64); err == nil {
		return f, nil
	}
	return nil, buildError(where, fmt.Errorf("unresolved parameter reference %q", name))
}

func (r resolver) number(where string, v any) (float64, error) {
	if v == nil {
		return 0, buildError(where, fmt.Errorf("value is required"))
	}
	resolved, err := r.lookup(where, v)
	if err != nil {
		return 0, err
	}
	f, err := domain.ToFloat(resolved)
	if err != nil {
		return 0, buildError(where, err)
	}
	return f, nil
}

func (r resolver) tick(where string, v any) (int, error) {
	f, err := r.number(where, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, buildError(where, fmt.Errorf("tick %v is not a whole number", f))
	}
	return int(f), nil
}

func (r resolver) level(where string, v any) (bool, error) {
	if name, ok := v.(string); ok && !isLevelWord(name) {
		value, found := r.params[name]
		if !found {
			return false, buildError(where, fmt.Errorf("unresolved level %q", name))
		}
		v = value
	}
	return parseLevel(where, v)
}

func isLevelWord(s string) bool {
	switch strings.ToLower(s) {
	case "high", "on", "true", "low", "off", "false":
		return true
	}
	return false
}

func parseLevel(where string, v any) (bool, error) {
	switch l := v.(type) {
	case bool:
		return l, nil
	case string:
		switch strings.ToLower(l) {
		case "high", "on", "true":
			return true, nil
		case "low", "off", "false":
			return false, nil
		}
		return false, buildError(where, fmt.Errorf("level must be high/low, got %q", l))
	case nil:
		return false, buildError(where, fmt.Errorf("level is required"))
	default:
		n, err := domain.ToInt(v)
		if err != nil || (n != 0 && n != 1) {
			return false, buildError(where, fmt.Errorf("level must be high/low, got %v", v))
		}
		return n == 1, nil
	}
}
