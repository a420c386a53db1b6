package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSet_Merge(t *testing.T) {
	defaults := domain.ParameterSet{"A": 1, "B": 2, "C": 3}

	t.Run("Override Keys Replace Defaults", func(t *testing.T) {
		resolved := defaults.Merge(map[string]any{"A": 10, "B": "two"})

		assert.Equal(t, domain.ParameterSet{"A": 10, "B": "two", "C": 3}, resolved)
		assert.Equal(t, domain.ParameterSet{"A": 1, "B": 2, "C": 3}, defaults, "defaults must not change")
	})

	t.Run("New Keys Are Added", func(t *testing.T) {
		resolved := defaults.Merge(map[string]any{"D": true})
		assert.Equal(t, true, resolved["D"])
		assert.Len(t, resolved, 4)
	})

	t.Run("Nil Overrides Keep Defaults", func(t *testing.T) {
		assert.Equal(t, defaults, defaults.Merge(nil))
	})

	t.Run("Nested Values Are Not Shared", func(t *testing.T) {
		base := domain.ParameterSet{"M": map[string]any{"x": 1}}
		clone := base.Merge(nil)
		clone["M"].(map[string]any)["x"] = 2
		assert.Equal(t, 1, base["M"].(map[string]any)["x"])
	})
}

func TestParameterSet_Accessors(t *testing.T) {
	p := domain.ParameterSet{
		"int":      42,
		"int64":    int64(7),
		"whole":    3.0,
		"frac":     2.5,
		"num":      json.Number("12"),
		"numFloat": json.Number("0.25"),
		"flag":     true,
		"strFlag":  "true",
		"name":     "mot",
	}

	t.Run("Int", func(t *testing.T) {
		for key, want := range map[string]int{"int": 42, "int64": 7, "whole": 3, "num": 12} {
			got, err := p.Int(key)
			require.NoError(t, err, key)
			assert.Equal(t, want, got, key)
		}
		_, err := p.Int("frac")
		assert.Error(t, err)
		_, err = p.Int("missing")
		assert.Error(t, err)
		_, err = p.Int("name")
		assert.Error(t, err)
	})

	t.Run("Float", func(t *testing.T) {
		f, err := p.Float("numFloat")
		require.NoError(t, err)
		assert.Equal(t, 0.25, f)

		f, err = p.Float("int")
		require.NoError(t, err)
		assert.Equal(t, 42.0, f)
	})

	t.Run("Flag", func(t *testing.T) {
		assert.True(t, p.Flag("flag"))
		assert.True(t, p.Flag("strFlag"))
		assert.False(t, p.Flag("missing"))
		assert.False(t, p.Flag("int"))
	})

	t.Run("Keys Are Sorted", func(t *testing.T) {
		keys := domain.ParameterSet{"b": 1, "a": 2, "c": 3}.Keys()
		assert.Equal(t, []string{"a", "b", "c"}, keys)
	})
}

func TestToInt_Overflow(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"huge float", 1e30},
		{"negative huge float", -1e30},
		{"two to the 63", math.Pow(2, 63)},
		{"huge float32", float32(1e20)},
		{"huge json number", json.Number("1e30")},
		{"max uint", uint(math.MaxUint)},
		{"max uint64", uint64(math.MaxUint64)},
		{"nan", math.NaN()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.ToInt(tc.in)
			assert.Error(t, err)
		})
	}

	t.Run("Bounds Still Convert", func(t *testing.T) {
		got, err := domain.ToInt(float64(math.MinInt64))
		require.NoError(t, err)
		assert.Equal(t, math.MinInt64, got)

		got, err = domain.ToInt(uint(math.MaxInt64))
		require.NoError(t, err)
		assert.Equal(t, math.MaxInt64, got)
	})
}

func TestParameterSet_Normalize(t *testing.T) {
	p := domain.ParameterSet{
		"n":  json.Number("5"),
		"f":  json.Number("5.5"),
		"u":  uint16(9),
		"f2": float32(1.5),
		"l":  []any{json.Number("1"), "x"},
	}

	got := p.Normalize()
	assert.Equal(t, 5, got["n"])
	assert.Equal(t, 5.5, got["f"])
	assert.Equal(t, 9, got["u"])
	assert.Equal(t, 1.5, got["f2"])
	assert.Equal(t, []any{1, "x"}, got["l"])
}

func TestGatesOf(t *testing.T) {
	assert.Equal(t, domain.Gates{}, domain.GatesOf(domain.ParameterSet{}))
	assert.Equal(t, domain.Gates{Camera: true, Analysis: true},
		domain.GatesOf(domain.ParameterSet{"NeedsCamera": true, "AbsAnalysis": true}))
}

func TestExperimentID_Shape(t *testing.T) {
	id := domain.FormatExperimentID(mustParse(t, "20240102_030405"))
	assert.Regexp(t, `^\d{8}_\d{6}$`, id)
	assert.Equal(t, "20240102_030405", id)
}
