package heatmap

import "math"

// RowStats summarises the non-missing values of a row, or of the whole
// matrix in global mode.
type RowStats struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	ValidCount int     `json:"valid_count"`
}

// MeanDefined reports whether Mean was computed from at least one value.
func (s RowStats) MeanDefined() bool {
	return s.ValidCount > 0
}

type accumulator struct {
	min, max, sum float64
	// running is an overflow-free mean used when sum leaves the float range.
	running float64
	n       int
}

func newAccumulator() accumulator {
	return accumulator{min: math.Inf(1), max: math.Inf(-1)}
}

func (a *accumulator) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
	a.running += v/float64(a.n) - a.running/float64(a.n)
}

func (a accumulator) stats() RowStats {
	mean := math.NaN()
	if a.n > 0 {
		mean = a.sum / float64(a.n)
		if math.IsInf(mean, 0) || math.IsNaN(mean) {
			mean = a.running
		}
		// Rounding may leave the mean just outside the observed range.
		mean = math.Max(a.min, math.Min(a.max, mean))
	}
	return RowStats{Min: a.min, Max: a.max, Mean: mean, ValidCount: a.n}
}

// ComputeRowStats scans one storage row. A row with no values yields
// Min=+Inf, Max=-Inf and an undefined (NaN) mean.
func ComputeRowStats(m Matrix, row int) RowStats {
	acc := newAccumulator()
	for j, cols := 0, m.ColumnCount(); j < cols; j++ {
		acc.add(m.Value(row, j))
	}
	return acc.stats()
}

// ComputeGlobalStats scans every cell of m.
func ComputeGlobalStats(m Matrix) RowStats {
	acc := newAccumulator()
	for i, rows := 0, m.RowCount(); i < rows; i++ {
		for j, cols := 0, m.ColumnCount(); j < cols; j++ {
			acc.add(m.Value(i, j))
		}
	}
	return acc.stats()
}

// StatsCache memoizes the statistics of the last requested row. Access in
// row order is cheap; random access recomputes on every call. It is not safe
// for concurrent use.
type StatsCache struct {
	m       Matrix
	lastRow int
	last    RowStats
}

// NewStatsCache returns an empty cache over m.
func NewStatsCache(m Matrix) *StatsCache {
	return &StatsCache{m: m, lastRow: -1}
}

// StatsFor returns the statistics of storage row row.
func (c *StatsCache) StatsFor(row int) RowStats {
	if row != c.lastRow {
		c.last = ComputeRowStats(c.m, row)
		c.lastRow = row
	}
	return c.last
}

// Invalidate drops the memoized row.
func (c *StatsCache) Invalidate() {
	c.lastRow = -1
}
