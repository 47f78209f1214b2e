package router

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsAccessors(t *testing.T) {
	p := Params{
		"name":     "Cube",
		"size":     2.5,
		"count":    3.0,
		"visible":  true,
		"location": []any{1.0, 2.0, 3.0},
		"images":   []any{"a.png", "b.png"},
		"nothing":  nil,
	}

	s, err := p.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Cube", s)

	s, err = p.StringOr("nothing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)

	f, err := p.Float("size")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	n, err := p.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = p.Int("size")
	assert.EqualError(t, err, "parameter 'size' must be an integer")

	b, err := p.Bool("visible")
	require.NoError(t, err)
	assert.True(t, b)

	v, err := p.Vector("location", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)

	def := []float64{1, 1, 1}
	v, err = p.VectorOr("scale", def)
	require.NoError(t, err)
	v[0] = 9
	assert.Equal(t, 1.0, def[0], "VectorOr must copy the default")

	ss, err := p.StringSlice("images")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, ss)
}

func TestParamsErrors(t *testing.T) {
	p := Params{"name": 7.0, "location": []any{1.0, "x", 3.0}}

	_, err := p.String("missing")
	assert.EqualError(t, err, "missing required parameter 'missing'")

	_, err = p.String("name")
	assert.EqualError(t, err, "parameter 'name' must be a string")

	_, err = p.Vector("location", 3)
	assert.EqualError(t, err, "parameter 'location' must be a list of 3 numbers")

	_, err = p.Vector("name", 3)
	assert.Error(t, err)
}

func TestParamsExpect(t *testing.T) {
	p := Params{"name": "Cube", "colour": "red", "bogus": 1.0}

	assert.NoError(t, p.Expect("name", "colour", "bogus"))
	assert.EqualError(t, p.Expect("name"), "unexpected parameter 'bogus', 'colour'")
}

func TestParamsRejectOutOfRangeNumbers(t *testing.T) {
	p := Params{
		"huge":   1e20,
		"scale":  []any{1e17, 1.0, 1.0},
		"inf":    math.Inf(1),
		"nanvec": []any{math.NaN(), 0.0, 0.0},
		"edge":   []any{MaxVectorComponent, -MaxVectorComponent, 0.0},
	}

	_, err := p.Int("huge")
	assert.EqualError(t, err, "parameter 'huge' is out of range")

	_, err = p.Vector("scale", 3)
	assert.EqualError(t, err, "parameter 'scale' values must be within ±1e+09")

	_, err = p.Float("inf")
	assert.EqualError(t, err, "parameter 'inf' must be a number")

	_, err = p.Vector("nanvec", 3)
	assert.Error(t, err)

	v, err := p.Vector("edge", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1e9, -1e9, 0}, v)
}

func TestValidComponent(t *testing.T) {
	tests := []struct {
		f    float64
		want bool
	}{
		{0, true},
		{-3.5, true},
		{MaxVectorComponent, true},
		{MaxVectorComponent * 2, false},
		{math.Inf(-1), false},
		{math.NaN(), false},
	}
	for _, tt := range tests {
		if got := ValidComponent(tt.f); got != tt.want {
			t.Errorf("ValidComponent(%g) = %v, want %v", tt.f, got, tt.want)
		}
	}
}
