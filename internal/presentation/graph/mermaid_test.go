package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/cadence/internal/presentation/graph"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probePattern(t *testing.T) *domain.Pattern {
	t.Helper()
	spec := domain.SequenceSpec{
		Digital: []domain.Edge{
			{Channel: "trig", At: 0, High: true},
			{Channel: "trig", At: 1, High: false},
			{Channel: "shutter", At: 2, High: true},
			{Channel: "shutter", At: 5, High: false},
		},
		HighSpeed: []domain.Edge{
			{Channel: "cameraTrigger", At: 6, High: true},
			{Channel: "cameraTrigger", At: 8, High: false},
		},
		Analog: []domain.AnalogPoint{
			{Channel: "coils", At: 0, Value: 1.5},
			{Channel: "coils", At: 4, Value: 0},
		},
		AnalogTrigger: "trig",
	}
	p, err := spec.Build(10)
	require.NoError(t, err)
	return p
}

func TestGenerateMermaid_Golden(t *testing.T) {
	out := graph.GenerateMermaid("probe", probePattern(t), 10000, &graph.Overlay{Critical: []string{"cameraTrigger"}})

	g := goldie.New(t)
	g.Assert(t, "probe_timeline", []byte(out))
}

func TestGenerateMermaid(t *testing.T) {
	t.Run("Repeated Pulses Get Distinct IDs", func(t *testing.T) {
		spec := domain.SequenceSpec{Digital: []domain.Edge{
			{Channel: "valve-1", At: 1, High: true},
			{Channel: "valve-1", At: 2, High: false},
			{Channel: "valve-1", At: 5, High: true},
			{Channel: "valve-1", At: 6, High: false},
		}}
		p, err := spec.Build(8)
		require.NoError(t, err)

		out := graph.GenerateMermaid("dual: valve", p, 1000, nil)
		assert.Contains(t, out, "valve-1 :d_valve_1_0, 1, 2")
		assert.Contains(t, out, "valve-1 :d_valve_1_1, 5, 6")
		assert.Contains(t, out, "title dual  valve")
		assert.NotContains(t, out, "section analog")
		assert.NotContains(t, out, "crit")
	})

	t.Run("Held Level Runs To The End", func(t *testing.T) {
		spec := domain.SequenceSpec{Digital: []domain.Edge{{Channel: "mot", At: 3, High: true}}}
		p, err := spec.Build(8)
		require.NoError(t, err)

		out := graph.GenerateMermaid("hold", p, 1000, nil)
		assert.True(t, strings.Contains(out, "mot :d_mot_0, 3, 8"), out)
	})
}
