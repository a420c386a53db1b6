package schema

import (
	"sort"

	"github.com/aretw0/cadence/pkg/domain"
)

// Schema is a map of field names to their expected types.
type Schema map[string]Type

// Validate checks if data conforms to the schema.
// Fields are checked in name order; every failure is reported.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		fieldType := schema[name]
		value, exists := data[name]
		if !exists {
			if !isOptional(fieldType) {
				errs = append(errs, &ValidationError{Key: name, Reason: "required"})
			}
			continue
		}
		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Parameters returns the schema of the parameters read by the orchestrator.
func Parameters() Schema {
	return Schema{
		domain.ParamPatternLength:  PositiveInt(),
		domain.ParamNeedsCamera:    Optional(Bool()),
		domain.ParamNeedsStage:     Optional(Bool()),
		domain.ParamNeedsAnalysis:  Optional(Bool()),
		domain.ParamAbsAnalysis:    Optional(Bool()),
		domain.ParamNumberOfFrames: Optional(PositiveInt()),
		domain.ParamTSAcceleration: Optional(Float()),
		domain.ParamTSDeceleration: Optional(Float()),
		domain.ParamTSDistance:     Optional(Float()),
		domain.ParamTSVelocity:     Optional(Float()),
	}
}

// ValidateParameters checks params against s and the conditional rules of the
// gating flags: a camera run needs NumberOfFrames, a stage run needs its kinematics.
func ValidateParameters(s Schema, params domain.ParameterSet) error {
	var errs []error
	if err := Validate(s, params); err != nil {
		errs = append(errs, ValidationErrors(err)...)
	}

	gates := domain.GatesOf(params)
	var required []string
	if gates.Camera {
		required = append(required, domain.ParamNumberOfFrames)
	}
	if gates.Stage {
		required = append(required,
			domain.ParamTSAcceleration, domain.ParamTSDeceleration,
			domain.ParamTSDistance, domain.ParamTSVelocity)
	}
	for _, key := range required {
		if !params.Has(key) {
			errs = append(errs, &ValidationError{Key: key, Reason: "required when its gating flag is set"})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
