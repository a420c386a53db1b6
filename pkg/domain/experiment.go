package domain

import (
	"fmt"
	"time"
)

// Experiment is the capability contract of a loadable experiment.
// Defaults declares the parameter set; Sequence produces the unbuilt tracks
// for a resolved parameter set.
type Experiment interface {
	Defaults() ParameterSet
	Sequence(params ParameterSet) (*SequenceSpec, error)
}

// SourceKind identifies how a definition was produced.
type SourceKind string

const (
	SourceRegistry SourceKind = "registry" // Statically typed Go plugin
	SourceCUE      SourceKind = "cue"      // Declarative CUE file
	SourceDocument SourceKind = "document" // Declarative Markdown/YAML/JSON document
)

// Definition is a loaded experiment with its resolved parameters.
// Every load yields its own Parameters; definitions never share them.
type Definition struct {
	Name       string
	Ref        string
	Kind       SourceKind
	SourcePath string
	Source     []byte
	// SourceExt is the extension used when archiving Source (".cue", ".md", ".plugin", ...).
	SourceExt  string
	Parameters ParameterSet
	Experiment Experiment
}

// Sequence asks the experiment for its tracks under the resolved parameters.
func (d *Definition) Sequence() (*SequenceSpec, error) {
	spec, err := d.Experiment.Sequence(d.Parameters.Clone())
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		return nil, NewError(KindPatternBuild, "sequence", err)
	}
	if spec == nil {
		return nil, NewError(KindPatternBuild, "sequence", fmt.Errorf("experiment %q produced no sequence", d.Name))
	}
	return spec, nil
}

// Build produces the pattern at the declared PatternLength.
func (d *Definition) Build() (*Pattern, error) {
	length, err := d.Parameters.Int(ParamPatternLength)
	if err != nil {
		return nil, NewError(KindPatternBuild, "pattern length", err)
	}
	spec, err := d.Sequence()
	if err != nil {
		return nil, err
	}
	return spec.Build(length)
}

// Gates are the optional-hardware flags of a run.
type Gates struct {
	Camera   bool
	Stage    bool
	Analysis bool
}

// GatesOf reads the gating flags from a resolved parameter set.
func GatesOf(p ParameterSet) Gates {
	return Gates{
		Camera:   p.Flag(ParamNeedsCamera),
		Stage:    p.Flag(ParamNeedsStage),
		Analysis: p.Flag(ParamNeedsAnalysis) || p.Flag(ParamAbsAnalysis),
	}
}

// StageMotion holds the kinematic parameters used to arm the translation stage.
type StageMotion struct {
	Acceleration float64 `json:"acceleration"`
	Deceleration float64 `json:"deceleration"`
	Distance     float64 `json:"distance"`
	Velocity     float64 `json:"velocity"`
}

// StageMotionOf reads the stage kinematics from a resolved parameter set.
func StageMotionOf(p ParameterSet) (StageMotion, error) {
	var m StageMotion
	fields := []struct {
		key string
		dst *float64
	}{
		{ParamTSAcceleration, &m.Acceleration},
		{ParamTSDeceleration, &m.Deceleration},
		{ParamTSDistance, &m.Distance},
		{ParamTSVelocity, &m.Velocity},
	}
	for _, f := range fields {
		v, err := p.Float(f.key)
		if err != nil {
			return StageMotion{}, NewError(KindConfiguration, "stage kinematics", err)
		}
		*f.dst = v
	}
	return m, nil
}

// ExperimentIDLayout is the Go layout of an experiment ID (yyyyMMdd_HHmmss).
const ExperimentIDLayout = "20060102_150405"

// FormatExperimentID renders t as an experiment ID.
func FormatExperimentID(t time.Time) string {
	return t.Format(ExperimentIDLayout)
}

// ParseExperimentID parses an ID produced by FormatExperimentID in the local zone.
func ParseExperimentID(id string) (time.Time, error) {
	return time.ParseInLocation(ExperimentIDLayout, id, time.Local)
}

// DefinitionInfo describes a definition available for loading.
type DefinitionInfo struct {
	Ref         string     `json:"ref"`
	Name        string     `json:"name"`
	Kind        SourceKind `json:"kind"`
	Description string     `json:"description,omitempty"`
}
