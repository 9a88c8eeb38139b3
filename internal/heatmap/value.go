package heatmap

import (
	"math"

	"github.com/dustin/go-humanize"
)

// FormatValue renders a cell value the way tooltips and image maps show it:
// grouped thousands and at most three decimals.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return humanize.CommafWithDigits(v, 3)
}

// CellAt returns the display cell under body point (x, y).
func (r *Renderer) CellAt(x, y int) (row, column int, ok bool) {
	row, column = r.metrics.FindRow(y), r.metrics.FindColumn(x)
	if !r.metrics.IsLegal(row, column) {
		return -1, -1, false
	}
	return row, column, true
}

// ValueAt returns the tooltip text for body point (x, y), or false outside
// the cells.
func (r *Renderer) ValueAt(x, y int) (string, bool) {
	row, column, ok := r.CellAt(x, y)
	if !ok {
		return "", false
	}
	v := r.m.Value(r.order.Row(row), r.order.Column(column))
	return "Value: " + FormatValue(v), true
}
