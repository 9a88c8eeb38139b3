package heatmap

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRowStatsOrdering(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 200; trial++ {
		row := make([]float64, 1+rng.IntN(20))
		for j := range row {
			if rng.IntN(5) == 0 {
				row[j] = math.NaN()
				continue
			}
			row[j] = rng.NormFloat64() * 100
		}
		m := mustDense(t, [][]float64{row})
		s := ComputeRowStats(m, 0)
		if s.ValidCount == 0 {
			continue
		}
		assert.LessOrEqual(t, s.Min, s.Mean)
		assert.LessOrEqual(t, s.Mean, s.Max)
	}
}

func TestComputeRowStatsSkipsMissing(t *testing.T) {
	m := mustDense(t, [][]float64{{math.NaN(), 2, 4}})
	s := ComputeRowStats(m, 0)
	assert.Equal(t, RowStats{Min: 2, Max: 4, Mean: 3, ValidCount: 2}, s)
}

func TestComputeRowStatsAllMissing(t *testing.T) {
	m := mustDense(t, [][]float64{{math.NaN(), math.NaN()}})
	s := ComputeRowStats(m, 0)
	assert.True(t, math.IsInf(s.Min, 1))
	assert.True(t, math.IsInf(s.Max, -1))
	assert.True(t, math.IsNaN(s.Mean))
	assert.False(t, s.MeanDefined())
}

func TestStatsCacheIdempotent(t *testing.T) {
	m := mustDense(t, [][]float64{{1, 2, 3}, {10, 20, 30}})
	c := NewStatsCache(m)

	first := c.StatsFor(0)
	require.Equal(t, first, c.StatsFor(0))

	other := c.StatsFor(1)
	assert.Equal(t, 20.0, other.Mean)
	assert.Equal(t, first, c.StatsFor(0))

	c.Invalidate()
	assert.Equal(t, first, c.StatsFor(0))
}

func TestComputeGlobalStats(t *testing.T) {
	m := mustDense(t, [][]float64{{1, 2}, {100, 200}})
	s := ComputeGlobalStats(m)
	assert.Equal(t, RowStats{Min: 1, Max: 200, Mean: 75.75, ValidCount: 4}, s)
}

func TestComputeRowStatsMeanStaysInRange(t *testing.T) {
	m := mustDense(t, [][]float64{
		{0.1, 0.1, 0.1},
		{1e308, 1.5e308},
		{1e308, 1e308},
		{-1.5e308, 1.5e308, 1.5e308},
	})
	for row := 0; row < m.RowCount(); row++ {
		s := ComputeRowStats(m, row)
		require.False(t, math.IsNaN(s.Mean), "row %d", row)
		assert.LessOrEqual(t, s.Min, s.Mean, "row %d", row)
		assert.LessOrEqual(t, s.Mean, s.Max, "row %d", row)
	}
	assert.Equal(t, 0.1, ComputeRowStats(m, 0).Mean)
	assert.InDelta(t, 1.25e308, ComputeRowStats(m, 1).Mean, 1e293)
}

func TestSlotsNearFloatLimit(t *testing.T) {
	m := mustDense(t, [][]float64{{1e308, 1.5e308}, {-1.5e308, 1.5e308}})
	for row := 0; row < 2; row++ {
		table := ComputeSlots(ComputeRowStats(m, row), ResponseLinear, 12)
		for i, b := range table.Bounds {
			require.False(t, math.IsNaN(b) || math.IsInf(b, 0), "row %d bound %d = %v", row, i, b)
			if i > 0 {
				assert.GreaterOrEqual(t, b, table.Bounds[i-1])
			}
		}
		assert.Equal(t, 0, BucketFor(table, m.Value(row, 0)))
		assert.Equal(t, 11, BucketFor(table, m.Value(row, 1)))
	}
}
