package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBands_ConstantSeries(t *testing.T) {
	series := []float64{42, 42, 42, 42, 42}
	b := ComputeBands(series, 3, 2)

	require.Len(t, b.Mid, len(series))
	for i := range series {
		assert.Equal(t, 42.0, b.Mid[i])
		assert.Equal(t, 42.0, b.Upper[i])
		assert.Equal(t, 42.0, b.Lower[i])
	}
}

func TestComputeBands_TwoElements(t *testing.T) {
	b := ComputeBands([]float64{1, 3}, 2, 2)

	require.Len(t, b.Mid, 2)
	assert.Equal(t, 1.0, b.Mid[0])
	assert.Equal(t, 2.0, b.Mid[1])

	// Window {1,3}: population sd = 1, mult = 2.
	assert.Equal(t, 4.0, b.Upper[1])
	assert.Equal(t, 0.0, b.Lower[1])
}

func TestComputeBands_ShortSeriesNoNaN(t *testing.T) {
	for _, series := range [][]float64{nil, {7}, {7, 8}, {7, 8, 9}} {
		b := ComputeBands(series, 20, 2)
		require.Len(t, b.Mid, len(series))
		for i := range series {
			assert.False(t, math.IsNaN(b.Mid[i]))
			assert.False(t, math.IsNaN(b.Upper[i]))
			assert.False(t, math.IsNaN(b.Lower[i]))
		}
	}
}

func TestComputeBands_WindowSlides(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6}
	b := ComputeBands(series, 3, 1)

	// Index 5 window is {4,5,6}.
	assert.Equal(t, 5.0, b.Mid[5])
	sd := math.Sqrt(2.0 / 3.0)
	assert.InDelta(t, 5+sd, b.Upper[5], 1e-12)
	assert.InDelta(t, 5-sd, b.Lower[5], 1e-12)
}

func TestComputeBands_PeriodClamped(t *testing.T) {
	b := ComputeBands([]float64{10, 20}, 0, 2)
	// Period below 1 degenerates to single-sample windows.
	assert.Equal(t, []float64{10, 20}, b.Mid)
	assert.Equal(t, []float64{10, 20}, b.Upper)
}

func TestSeriesVolatility(t *testing.T) {
	assert.Equal(t, 0.0, SeriesVolatility(nil))
	assert.Equal(t, 0.0, SeriesVolatility([]float64{5}))
	assert.InDelta(t, 1.0, SeriesVolatility([]float64{1, 3}), 1e-12)
	assert.Equal(t, 0.0, SeriesVolatility([]float64{2, 2, 2}))
}
