package domain_test

import (
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, id string) time.Time {
	t.Helper()
	ts, err := domain.ParseExperimentID(id)
	require.NoError(t, err)
	return ts
}

func TestSequenceSpec_Build(t *testing.T) {
	spec := &domain.SequenceSpec{
		Digital: []domain.Edge{
			{Channel: "trigger", At: 2, High: true},
			{Channel: "trigger", At: 4, High: false},
			{Channel: "aom", At: 0, High: true},
		},
		HighSpeed: []domain.Edge{
			{Channel: "camera", At: 5, High: true},
		},
		Analog: []domain.AnalogPoint{
			{Channel: "coil", At: 1, Value: 1.5},
			{Channel: "coil", At: 3, Value: -0.5},
		},
		AnalogTrigger: "trigger",
	}

	t.Run("Every Track Has The Requested Length", func(t *testing.T) {
		for _, length := range []int{6, 10, 1000} {
			p, err := spec.Build(length)
			require.NoError(t, err)
			for kind, got := range p.Lengths() {
				assert.Equal(t, length, got, "track %s", kind)
			}
			assert.NoError(t, p.CheckLength(length))
		}
	})

	t.Run("Digital Levels Hold Between Edges", func(t *testing.T) {
		p, err := spec.Build(6)
		require.NoError(t, err)

		assert.Equal(t, []string{"aom", "trigger"}, p.Digital.Channels)
		levels := make([]bool, 6)
		for i := range levels {
			levels[i] = p.Digital.Level("trigger", i)
		}
		assert.Equal(t, []bool{false, false, true, true, false, false}, levels)
		assert.True(t, p.Digital.Level("aom", 5))
		assert.Equal(t, uint32(0b11), p.Digital.Words[2])
	})

	t.Run("Analog Samples Hold Between Points", func(t *testing.T) {
		p, err := spec.Build(5)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1.5, 1.5, -0.5, -0.5}, p.Analog.Samples["coil"])
		assert.Equal(t, "trigger", p.Analog.Trigger)
	})

	t.Run("Empty Spec Still Builds To Length", func(t *testing.T) {
		p, err := (&domain.SequenceSpec{}).Build(100)
		require.NoError(t, err)
		assert.Equal(t, 100, p.Digital.Len())
		assert.Equal(t, 100, p.HighSpeed.Len())
		assert.Equal(t, 100, p.Analog.Len())
	})
}

func TestSequenceSpec_BuildErrors(t *testing.T) {
	tooMany := make([]domain.Edge, 0, 33)
	for i := 0; i < 33; i++ {
		tooMany = append(tooMany, domain.Edge{Channel: string(rune('A' + i)), At: 0, High: true})
	}

	cases := []struct {
		name   string
		spec   domain.SequenceSpec
		length int
	}{
		{"Zero Length", domain.SequenceSpec{}, 0},
		{"Edge Past End", domain.SequenceSpec{Digital: []domain.Edge{{Channel: "a", At: 10}}}, 10},
		{"Negative Edge", domain.SequenceSpec{HighSpeed: []domain.Edge{{Channel: "a", At: -1}}}, 10},
		{"Conflicting Edges", domain.SequenceSpec{Digital: []domain.Edge{
			{Channel: "a", At: 3, High: true}, {Channel: "a", At: 3, High: false},
		}}, 10},
		{"Too Many Channels", domain.SequenceSpec{Digital: tooMany}, 10},
		{"Analog Without Channel", domain.SequenceSpec{Analog: []domain.AnalogPoint{{At: 1}}}, 10},
		{"Conflicting Analog", domain.SequenceSpec{Analog: []domain.AnalogPoint{
			{Channel: "c", At: 1, Value: 1}, {Channel: "c", At: 1, Value: 2},
		}}, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.spec.Build(tc.length)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindPatternBuild), "got %v", err)
		})
	}
}

func TestPattern_CheckLength(t *testing.T) {
	p, err := (&domain.SequenceSpec{}).Build(50)
	require.NoError(t, err)

	err = p.CheckLength(100)
	assert.True(t, domain.IsKind(err, domain.KindPatternBuild))
}
