package experiments

import (
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/dsl"
)

const MOTLoadName = "mot-load"

// NewMOTLoad returns a load, release and image sequence.
// The MOT beams and coils stay on for loadTime ticks, then the probe fires
// NumberOfFrames camera exposures frameGap ticks apart.
func NewMOTLoad() domain.Experiment {
	defaults := domain.ParameterSet{
		domain.ParamPatternLength:  1000,
		domain.ParamNumberOfFrames: 2,
		domain.ParamNeedsCamera:    true,
		domain.ParamNeedsStage:     false,
		domain.ParamNeedsAnalysis:  false,
		domain.ParamTSAcceleration: 100.0,
		domain.ParamTSDeceleration: 100.0,
		domain.ParamTSDistance:     10.0,
		domain.ParamTSVelocity:     5.0,

		"loadTime":    500,
		"releaseTime": 20,
		"exposure":    10,
		"frameGap":    200,
		"coilCurrent": 2.5,
	}
	return dsl.NewExperiment(defaults, motLoadSequence)
}

func motLoadSequence(p domain.ParameterSet) (*domain.SequenceSpec, error) {
	load, err := p.Int("loadTime")
	if err != nil {
		return nil, err
	}
	release, err := p.Int("releaseTime")
	if err != nil {
		return nil, err
	}
	exposure, err := p.Int("exposure")
	if err != nil {
		return nil, err
	}
	gap, err := p.Int("frameGap")
	if err != nil {
		return nil, err
	}
	frames, err := p.Int(domain.ParamNumberOfFrames)
	if err != nil {
		return nil, err
	}
	current, err := p.Float("coilCurrent")
	if err != nil {
		return nil, err
	}

	seq := dsl.NewSequence()
	seq.Digital("analogTrigger").Pulse(0, 1)
	seq.Digital("motAOM").High(0).Low(load)
	seq.Analog("coils").Set(0, current).Set(load, 0)
	probe := load + release
	for i := 0; i < frames; i++ {
		at := probe + i*gap
		seq.Digital("probeAOM").Pulse(at, exposure)
		seq.HighSpeed("cameraTrigger").Pulse(at, exposure)
	}
	seq.TriggerAnalogFrom("analogTrigger")
	return seq.Build()
}
