package heatmap

import "math"

// SlotTable holds the upper boundary of every color bucket. Lower is the
// implicit lower bound of bucket 0.
type SlotTable struct {
	Lower  float64   `json:"lower"`
	Bounds []float64 `json:"bounds"`
	// Flat is set when the source had a single distinct value.
	Flat bool `json:"flat"`
}

// Full returns the boundaries including the lower bound, len(Bounds)+1 values.
func (t SlotTable) Full() []float64 {
	out := make([]float64, 0, len(t.Bounds)+1)
	out = append(out, t.Lower)
	return append(out, t.Bounds...)
}

// Degenerate reports whether the increments collapsed to zero, as happens
// for a constant row. Every value then maps to bucket 0.
func (t SlotTable) Degenerate() bool {
	return t.Flat || len(t.Bounds) == 0
}

// ComputeSlots derives n bucket boundaries from stats. The result is
// non-decreasing and ends at stats.Max.
func ComputeSlots(stats RowStats, mode ResponseMode, n int) SlotTable {
	t := SlotTable{
		Lower:  stats.Min,
		Bounds: make([]float64, n),
		Flat:   stats.ValidCount > 0 && stats.Max == stats.Min,
	}
	computeSlotsInto(stats, mode, t.Bounds)
	return t
}

func computeSlotsInto(stats RowStats, mode ResponseMode, bounds []float64) {
	if mode == ResponseLog {
		logSlots(stats.Min, stats.Max, bounds)
		return
	}
	ave := stats.Mean
	if !stats.MeanDefined() {
		ave = (stats.Max + stats.Min) / 2
	}
	linearSlots(stats.Min, stats.Max, ave, bounds)
}

// linearSlots splits [min, ave] over the first half of the buckets and
// [ave, max] over the rest.
func linearSlots(min, max, ave float64, bounds []float64) {
	n := len(bounds)
	half := n / 2

	if half > 0 {
		inc := step(min, ave, half)
		v := min
		for i := 0; i < half; i++ {
			v += inc
			bounds[i] = v
		}
	}

	inc := step(ave, max, n-half)
	v := ave
	for i := half; i < n; i++ {
		v += inc
		bounds[i] = v
	}
	if n > 0 && !math.IsInf(max, 0) {
		bounds[n-1] = max
	}
}

// step is (hi-lo)/k without overflowing when hi and lo are far apart.
func step(lo, hi float64, k int) float64 {
	inc := (hi - lo) / float64(k)
	if math.IsInf(inc, 0) {
		inc = hi/float64(k) - lo/float64(k)
	}
	return inc
}

// logSlots shifts the domain so min maps to 1, then spaces boundaries evenly
// in log space up to max.
func logSlots(min, max float64, bounds []float64) {
	n := len(bounds)
	shift := min - 1
	rng := math.Log(max-shift) - math.Log(1)
	inc := rng / float64(n)
	for k := 1; k <= n; k++ {
		bounds[k-1] = math.Exp(float64(k)*inc) + shift
	}
}
