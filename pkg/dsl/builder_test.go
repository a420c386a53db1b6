package dsl_test

import (
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	t.Run("Tracks", func(t *testing.T) {
		seq := dsl.NewSequence()
		seq.Digital("trig").Pulse(10, 5)
		seq.HighSpeed("camera").High(40).Low(42)
		seq.Analog("coil").Set(0, 1.5)
		seq.TriggerAnalogFrom("trig")

		spec, err := seq.Build()
		require.NoError(t, err)
		assert.Equal(t, []domain.Edge{
			{Channel: "trig", At: 10, High: true},
			{Channel: "trig", At: 15, High: false},
		}, spec.Digital)
		assert.Equal(t, []domain.Edge{
			{Channel: "camera", At: 40, High: true},
			{Channel: "camera", At: 42, High: false},
		}, spec.HighSpeed)
		assert.Equal(t, []domain.AnalogPoint{{Channel: "coil", At: 0, Value: 1.5}}, spec.Analog)
		assert.Equal(t, "trig", spec.AnalogTrigger)

		pattern, err := spec.Build(50)
		require.NoError(t, err)
		assert.True(t, pattern.Digital.Level("trig", 12))
		assert.False(t, pattern.Digital.Level("trig", 15))
		assert.True(t, pattern.HighSpeed.Level("camera", 41))
	})

	t.Run("Train", func(t *testing.T) {
		seq := dsl.NewSequence()
		seq.HighSpeed("camera").Train(100, 3, 20, 2)

		spec, err := seq.Build()
		require.NoError(t, err)
		require.Len(t, spec.HighSpeed, 6)
		assert.Equal(t, 140, spec.HighSpeed[4].At)
		assert.True(t, spec.HighSpeed[4].High)
	})

	t.Run("Ramp", func(t *testing.T) {
		seq := dsl.NewSequence()
		seq.Analog("coil").Ramp(0, 100, 2, 0, 4)

		spec, err := seq.Build()
		require.NoError(t, err)
		require.Len(t, spec.Analog, 5)
		assert.Equal(t, domain.AnalogPoint{Channel: "coil", At: 50, Value: 1}, spec.Analog[2])
		assert.Equal(t, domain.AnalogPoint{Channel: "coil", At: 100, Value: 0}, spec.Analog[4])
	})

	t.Run("Errors Are Collected", func(t *testing.T) {
		seq := dsl.NewSequence()
		seq.Digital("a").Pulse(0, 0)
		seq.Digital("b").Train(0, 2, 5, 5)
		seq.Analog("c").Ramp(10, 5, 0, 1, 2)

		_, err := seq.Build()
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindPatternBuild))
		assert.Contains(t, err.Error(), "non-positive duration")
		assert.Contains(t, err.Error(), "train interval")
		assert.Contains(t, err.Error(), "invalid ramp")
	})

	t.Run("Build Copies", func(t *testing.T) {
		seq := dsl.NewSequence()
		seq.Digital("a").High(0)
		first, err := seq.Build()
		require.NoError(t, err)

		seq.Digital("a").Low(5)
		assert.Len(t, first.Digital, 1)
	})
}
