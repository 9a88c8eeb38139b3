package heatmap

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

// monoMetrics measures every rune as the same advance, whatever the size.
type monoMetrics struct {
	advance int
	line    int
	descent int
}

func (f monoMetrics) StringWidth(s string, _ float64) int { return len([]rune(s)) * f.advance }
func (f monoMetrics) LineHeight(float64) int              { return f.line }
func (f monoMetrics) Descent(float64) int                 { return f.descent }

var testMetrics = monoMetrics{advance: 6, line: 12, descent: 3}

type op struct {
	kind  string // fill, line, text, textUp
	rect  image.Rectangle
	x, y  int
	text  string
	color color.RGBA
}

// recorder is a Surface that keeps every call in order.
type recorder struct {
	ops []op
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func (r *recorder) FillRect(rect image.Rectangle, c color.Color) {
	r.ops = append(r.ops, op{kind: "fill", rect: rect, color: rgba(c)})
}

func (r *recorder) DrawLine(x0, y0, x1, y1 int, c color.Color) {
	r.ops = append(r.ops, op{kind: "line", rect: image.Rect(x0, y0, x1, y1), color: rgba(c)})
}

func (r *recorder) DrawText(s string, x, y int, _ float64, c color.Color) {
	r.ops = append(r.ops, op{kind: "text", x: x, y: y, text: s, color: rgba(c)})
}

func (r *recorder) DrawTextUp(s string, x, y int, _ float64, c color.Color) {
	r.ops = append(r.ops, op{kind: "textUp", x: x, y: y, text: s, color: rgba(c)})
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, o := range r.ops {
		if o.kind == kind {
			n++
		}
	}
	return n
}

func mustDense(t *testing.T, data [][]float64) *Dense {
	t.Helper()
	rows := make([]string, len(data))
	for i := range rows {
		rows[i] = "r" + string(rune('0'+i))
	}
	cols := 0
	if len(data) > 0 {
		cols = len(data[0])
	}
	colNames := make([]string, cols)
	for j := range colNames {
		colNames[j] = "c" + string(rune('0'+j))
	}
	m, err := NewDenseRows(data, rows, colNames)
	require.NoError(t, err)
	return m
}

func bareLayout() LayoutOptions {
	return LayoutOptions{ElementWidth: 10, ElementHeight: 10, LeftInset: DefaultLeftInset}
}
