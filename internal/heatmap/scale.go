package heatmap

import (
	"image/color"
	"math"
	"sort"
)

// BucketFor returns the palette index for v under t, or -1 when v is missing.
// Bucket i covers [Bounds[i-1], Bounds[i]); values on a boundary go to the
// higher bucket and values past either end clamp to the first or last one.
func BucketFor(t SlotTable, v float64) int {
	if math.IsNaN(v) {
		return -1
	}
	n := len(t.Bounds)
	if t.Degenerate() {
		return 0
	}
	// Count boundaries <= v. NaN boundaries stop the count.
	i := sort.Search(n, func(j int) bool { return !(v >= t.Bounds[j]) })
	if i > n-1 {
		i = n - 1
	}
	return i
}

// ColorFor maps v to a palette color, or to missing when v is NaN.
func ColorFor(t SlotTable, palette []color.RGBA, missing color.RGBA, v float64) color.RGBA {
	b := BucketFor(t, v)
	if b < 0 {
		return missing
	}
	return palette[b]
}

// ColorScale colors the cells of one matrix under one scheme. In per-row mode
// it keeps a single-row memo, so it must not be shared between goroutines;
// give each render its own instance.
type ColorScale struct {
	m      Matrix
	order  DisplayOrder
	scheme ColorScheme

	rows    *StatsCache
	slots   SlotTable
	slotRow int

	global      *SlotTable
	globalStats RowStats
}

// NewColorScale validates scheme and order and, in global mode, computes the
// shared slot table up front.
func NewColorScale(m Matrix, order DisplayOrder, scheme ColorScheme) (*ColorScale, error) {
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if err := order.Validate(m); err != nil {
		return nil, err
	}
	s := &ColorScale{
		m:       m,
		order:   order,
		scheme:  scheme,
		rows:    NewStatsCache(m),
		slotRow: -1,
	}
	s.activate()
	return s, nil
}

func (s *ColorScale) activate() {
	s.rows.Invalidate()
	s.slotRow = -1
	s.global = nil
	if s.scheme.Scale == ScaleGlobal {
		s.globalStats = ComputeGlobalStats(s.m)
		t := ComputeSlots(s.globalStats, s.scheme.Response, len(s.scheme.Palette))
		s.global = &t
	}
}

// SetScheme swaps the scheme, dropping every memoized table.
func (s *ColorScale) SetScheme(scheme ColorScheme) error {
	if err := scheme.Validate(); err != nil {
		return err
	}
	s.scheme = scheme
	s.activate()
	return nil
}

// Scheme returns the active scheme.
func (s *ColorScale) Scheme() ColorScheme {
	return s.scheme
}

// StatsFor returns the statistics that drive storage row row: the row's own
// in per-row mode, the whole matrix's in global mode.
func (s *ColorScale) StatsFor(row int) RowStats {
	if s.global != nil {
		return s.globalStats
	}
	return s.rows.StatsFor(row)
}

// SlotsFor returns the slot table used for storage row row. In per-row mode
// the returned Bounds are reused by the next call for a different row.
func (s *ColorScale) SlotsFor(row int) SlotTable {
	if s.global != nil {
		return *s.global
	}
	if row != s.slotRow {
		stats := s.rows.StatsFor(row)
		if len(s.slots.Bounds) != len(s.scheme.Palette) {
			s.slots.Bounds = make([]float64, len(s.scheme.Palette))
		}
		s.slots.Lower = stats.Min
		s.slots.Flat = stats.ValidCount > 0 && stats.Max == stats.Min
		computeSlotsInto(stats, s.scheme.Response, s.slots.Bounds)
		s.slotRow = row
	}
	return s.slots
}

// BucketForCell returns the bucket of the cell at display position
// (row, column), or -1 when it is missing.
func (s *ColorScale) BucketForCell(row, column int) int {
	r := s.order.Row(row)
	return BucketFor(s.SlotsFor(r), s.m.Value(r, s.order.Column(column)))
}

// ColorForCell returns the color of the cell at display position (row, column).
func (s *ColorScale) ColorForCell(row, column int) color.RGBA {
	b := s.BucketForCell(row, column)
	if b < 0 {
		return s.scheme.MissingColor
	}
	return s.scheme.Palette[b]
}
