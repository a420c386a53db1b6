package dsl

import "github.com/aretw0/cadence/pkg/domain"

// SequenceFunc produces the tracks of an experiment for resolved parameters.
type SequenceFunc func(params domain.ParameterSet) (*domain.SequenceSpec, error)

// Experiment adapts a default parameter set and a SequenceFunc to domain.Experiment.
type Experiment struct {
	defaults domain.ParameterSet
	sequence SequenceFunc
}

// NewExperiment creates an experiment from its defaults and sequence function.
func NewExperiment(defaults domain.ParameterSet, fn SequenceFunc) *Experiment {
	return &Experiment{defaults: defaults, sequence: fn}
}

// Defaults returns a fresh copy of the declared parameters.
func (e *Experiment) Defaults() domain.ParameterSet {
	return e.defaults.Clone()
}

// Sequence produces the tracks for params.
func (e *Experiment) Sequence(params domain.ParameterSet) (*domain.SequenceSpec, error) {
	return e.sequence(params)
}
