// Package schema validates experiment parameter sets.
//
// A Schema maps parameter names to types. Types accept every numeric shape a
// definition source can produce (Go ints, YAML floats, json.Number, CUE values),
// so a schema can be checked right after parameters are merged, before any
// pattern is built or hardware touched.
//
// Basic usage:
//
//	s := schema.Schema{
//	    "PatternLength": schema.PositiveInt(),
//	    "NeedsCamera":   schema.Optional(schema.Bool()),
//	}
//
//	if err := schema.Validate(s, params); err != nil {
//	    // err is an *AggregateError listing every failing field
//	}
//
// Parameters returns the schema of the parameters the orchestrator itself reads,
// and ValidateParameters adds the conditional rules (a camera run needs a frame
// count, a stage run needs its kinematics).
package schema
