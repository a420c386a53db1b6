package experiments

import (
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/dsl"
)

const DualValveName = "dual-valve"

// Channel names driven by the dual-valve sequence.
const (
	ChannelDischarge = "discharge"
	ChannelValve1    = "valve1"
	ChannelValve2    = "valve2"
)

// NewDualValve returns the two-valve shot sequence.
// Every shot fires the discharge, opens valve 1 after dischargeToValve1 ticks
// and valve 2 a further valve1ToValve2 ticks later. Shots repeat
// sequenceLength times every sequenceInterval ticks, offset by padStart.
func NewDualValve() domain.Experiment {
	defaults := domain.ParameterSet{
		"dischargeLength":   20,
		"dischargeToValve1": 150,
		"valve1ToValve2":    10,
		"valve1PulseLength": 1000,
		"valve2PulseLength": 1000,
		"sequenceLength":    2,
		"sequenceInterval":  100000,
		"clockFrequency":    1000000,
		"internalClock":     true,
		"padShots":          0,
		"padStart":          0,
		"fullWidth":         true,
		"lowGroup":          true,

		domain.ParamNeedsCamera:   false,
		domain.ParamNeedsStage:    false,
		domain.ParamNeedsAnalysis: false,
	}
	defaults[domain.ParamPatternLength] = dualValveLength(100000, 2, 0)
	return dsl.NewExperiment(defaults, dualValveSequence)
}

func dualValveLength(interval, shots, padShots int) int {
	return interval * shots * (padShots + 1)
}

func dualValveSequence(p domain.ParameterSet) (*domain.SequenceSpec, error) {
	var discharge, toValve1, v1ToV2, v1Len, v2Len int
	var shots, interval, padShots, padStart int
	ints := []struct {
		key string
		dst *int
	}{
		{"dischargeLength", &discharge},
		{"dischargeToValve1", &toValve1},
		{"valve1ToValve2", &v1ToV2},
		{"valve1PulseLength", &v1Len},
		{"valve2PulseLength", &v2Len},
		{"sequenceLength", &shots},
		{"sequenceInterval", &interval},
		{"padShots", &padShots},
		{"padStart", &padStart},
	}
	for _, f := range ints {
		n, err := p.Int(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = n
	}

	length, err := p.Int(domain.ParamPatternLength)
	if err != nil {
		return nil, err
	}
	if need := dualValveLength(interval, shots, padShots); length < need {
		return nil, fmt.Errorf("PatternLength %d is shorter than the %d ticks the shot sequence needs", length, need)
	}

	seq := dsl.NewSequence()
	for shot := 0; shot < shots; shot++ {
		start := padStart + shot*interval
		valve1 := start + toValve1
		seq.Digital(ChannelDischarge).Pulse(start, discharge)
		seq.Digital(ChannelValve1).Pulse(valve1, v1Len)
		seq.Digital(ChannelValve2).Pulse(valve1+v1ToV2, v2Len)
	}
	return seq.Build()
}
