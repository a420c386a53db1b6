/*
Package dsl provides a Go DSL for building experiment sequences.

It lets statically typed experiment plugins describe their timing tracks with a
fluent builder instead of hand-assembling edge slices. Times are clock ticks.

Example usage:

	seq := dsl.NewSequence()

	seq.Digital("trigger").Pulse(10, 5)
	seq.Digital("aom").High(0).Low(800)
	seq.HighSpeed("camera").Pulse(400, 2)
	seq.Analog("coil").Set(0, 1.5).Ramp(100, 200, 1.5, 0, 10)
	seq.TriggerAnalogFrom("trigger")

	spec, err := seq.Build()

Wrap a sequence function with NewExperiment to obtain a domain.Experiment that a
registry can serve.
*/
package dsl
