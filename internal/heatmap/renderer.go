package heatmap

import (
	"image"
	"image/color"
)

// Surface receives the drawing operations of a render. Coordinates are
// pixels; text y is the baseline.
type Surface interface {
	FillRect(r image.Rectangle, c color.Color)
	DrawLine(x0, y0, x1, y1 int, c color.Color)
	DrawText(s string, x, y int, pointSize float64, c color.Color)
	// DrawTextUp draws s rotated a quarter turn counter-clockwise, its
	// baseline running upward from (x, y).
	DrawTextUp(s string, x, y int, pointSize float64, c color.Color)
}

// Translate returns a Surface that offsets every operation by (dx, dy).
func Translate(s Surface, dx, dy int) Surface {
	return offsetSurface{s: s, d: image.Pt(dx, dy)}
}

type offsetSurface struct {
	s Surface
	d image.Point
}

func (o offsetSurface) FillRect(r image.Rectangle, c color.Color) { o.s.FillRect(r.Add(o.d), c) }

func (o offsetSurface) DrawLine(x0, y0, x1, y1 int, c color.Color) {
	o.s.DrawLine(x0+o.d.X, y0+o.d.Y, x1+o.d.X, y1+o.d.Y, c)
}

func (o offsetSurface) DrawText(s string, x, y int, size float64, c color.Color) {
	o.s.DrawText(s, x+o.d.X, y+o.d.Y, size, c)
}

func (o offsetSurface) DrawTextUp(s string, x, y int, size float64, c color.Color) {
	o.s.DrawTextUp(s, x+o.d.X, y+o.d.Y, size, c)
}

// Options are the display settings of a render.
type Options struct {
	Layout     LayoutOptions
	Grid       bool
	GridColor  color.RGBA
	TextColor  color.RGBA
	Background color.RGBA
	ShowLegend bool

	// Highlighted display ranges, usually fed from a Selection.
	RowHighlight    *Span
	ColumnHighlight *Span
}

// DefaultOptions returns black grid and text on white.
func DefaultOptions() Options {
	return Options{
		Layout:     DefaultLayoutOptions(),
		Grid:       true,
		GridColor:  color.RGBA{A: 255},
		TextColor:  color.RGBA{A: 255},
		Background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// ElementSize is published when the cell size changes.
type ElementSize struct {
	Width  int
	Height int
}

// Renderer draws one matrix. Like ColorScale it is meant for a single
// goroutine.
type Renderer struct {
	m       Matrix
	order   DisplayOrder
	scale   *ColorScale
	ann     *Annotations
	fm      FontMetrics
	opts    Options
	metrics LayoutMetrics
	colors  ResolvedAnnotations

	sizeChanged Notifier[ElementSize]
	stopAnn     func()
}

// NewRenderer validates the configuration and computes the initial layout.
func NewRenderer(m Matrix, order DisplayOrder, scheme ColorScheme, ann *Annotations, opts Options, fm FontMetrics) (*Renderer, error) {
	scale, err := NewColorScale(m, order, scheme)
	if err != nil {
		return nil, err
	}
	r := &Renderer{m: m, order: order, scale: scale, ann: ann, fm: fm, opts: opts}
	if err := r.relayout(); err != nil {
		return nil, err
	}
	if ann != nil {
		r.stopAnn = ann.Subscribe(func(AnnotationChange) {
			// Layout only fails on element size, which was valid above.
			_ = r.relayout()
		})
	}
	return r, nil
}

func (r *Renderer) relayout() error {
	lm, err := ComputeLayout(r.m, r.opts.Layout, r.ann, r.fm)
	if err != nil {
		return err
	}
	r.metrics = lm
	r.colors = r.ann.Resolve(r.m)
	return nil
}

// Close detaches the renderer from its annotation table.
func (r *Renderer) Close() {
	if r.stopAnn != nil {
		r.stopAnn()
		r.stopAnn = nil
	}
}

// Layout returns the current geometry.
func (r *Renderer) Layout() LayoutMetrics { return r.metrics }

// Scale exposes the color scale.
func (r *Renderer) Scale() *ColorScale { return r.scale }

// Background is the color a snapshot starts from.
func (r *Renderer) Background() color.RGBA { return r.opts.Background }

// Unknown lists annotation names that matched nothing in the matrix.
func (r *Renderer) Unknown() []string { return r.colors.Unknown }

// ColorForCell returns the fill of display cell (row, column).
func (r *Renderer) ColorForCell(row, column int) color.RGBA {
	return r.scale.ColorForCell(row, column)
}

// OnElementSizeChanged subscribes fn to cell size changes.
func (r *Renderer) OnElementSizeChanged(fn func(ElementSize)) func() {
	return r.sizeChanged.Subscribe(fn)
}

// SetElementSize resizes cells, recomputes the layout and notifies
// subscribers.
func (r *Renderer) SetElementSize(width, height int) error {
	opts := r.opts
	opts.Layout.ElementWidth = width
	opts.Layout.ElementHeight = height
	if err := opts.Layout.Validate(); err != nil {
		return err
	}
	r.opts = opts
	if err := r.relayout(); err != nil {
		return err
	}
	r.sizeChanged.Notify(ElementSize{Width: width, Height: height})
	return nil
}

// SetHighlights replaces the highlighted ranges.
func (r *Renderer) SetHighlights(rows, columns *Span) {
	r.opts.RowHighlight = rows
	r.opts.ColumnHighlight = columns
}

// Snapshot draws the complete image: background, header, then body.
func (r *Renderer) Snapshot(s Surface) {
	lm := r.metrics
	s.FillRect(image.Rect(0, 0, lm.ImageWidth(), lm.ImageHeight()), r.opts.Background)
	r.RenderHeader(s, nil)
	r.RenderRegion(Translate(s, 0, lm.HeaderHeight), nil)
}

// RenderRegion draws the body cells touched by clip (body coordinates; nil
// for everything) in a fixed order: cells, grid, annotations, labels.
func (r *Renderer) RenderRegion(s Surface, clip *image.Rectangle) {
	lm := r.metrics
	vr := lm.VisibleRange(clip)

	for row := vr.Top; row < vr.Bottom; row++ {
		for col := vr.Left; col < vr.Right; col++ {
			s.FillRect(lm.CellRect(row, col), r.scale.ColorForCell(row, col))
		}
	}

	if r.opts.Grid && !vr.Empty() {
		r.drawGrid(s, vr)
	}

	r.drawRowAnnotations(s, vr)

	// Labels live right of the cells, so they only need drawing when the
	// clip reaches the last column.
	if vr.Right >= lm.Columns {
		r.drawRowLabels(s, vr)
	}
}

func (r *Renderer) drawGrid(s Surface, vr IndexRange) {
	lm := r.metrics
	left := lm.LeftInset + vr.Left*lm.ElementWidth
	right := lm.LeftInset + vr.Right*lm.ElementWidth
	top := vr.Top * lm.ElementHeight
	bottom := vr.Bottom * lm.ElementHeight
	for row := vr.Top; row <= vr.Bottom; row++ {
		y := row * lm.ElementHeight
		s.DrawLine(left, y, right, y, r.opts.GridColor)
	}
	for col := vr.Left; col <= vr.Right; col++ {
		x := lm.LeftInset + col*lm.ElementWidth
		s.DrawLine(x, top, x, bottom, r.opts.GridColor)
	}
}

func (r *Renderer) drawRowAnnotations(s Surface, vr IndexRange) {
	lm := r.metrics
	if lm.SwatchX >= 0 {
		for row := vr.Top; row < vr.Bottom; row++ {
			oc := r.colors.Rows[r.order.Row(row)]
			if !oc.OK {
				continue
			}
			y := row * lm.ElementHeight
			s.FillRect(image.Rect(lm.SwatchX, y, lm.SwatchX+lm.ElementWidth-1, y+lm.ElementHeight), oc.Color)
		}
	}

	if h := r.opts.RowHighlight; h != nil && lm.ShowRowNames {
		first, last := clamp(h.First, 0, lm.Rows), clamp(h.Last, 0, lm.Rows)
		if first < last {
			s.FillRect(image.Rect(lm.LabelX, first*lm.ElementHeight,
				lm.LabelX+lm.RowNameWidth, last*lm.ElementHeight), r.scale.Scheme().MaskColor)
		}
	}
}

func (r *Renderer) drawRowLabels(s Surface, vr IndexRange) {
	lm := r.metrics
	if !lm.ShowRowNames && !lm.ShowRowDescriptions {
		return
	}
	descent := r.fm.Descent(lm.RowFontSize)
	for row := vr.Top; row < vr.Bottom; row++ {
		y := (row+1)*lm.ElementHeight - descent
		src := r.order.Row(row)
		if lm.ShowRowNames {
			s.DrawText(r.m.RowName(src), lm.LabelX, y, lm.RowFontSize, r.opts.TextColor)
		}
		if lm.ShowRowDescriptions {
			if desc := r.m.RowDescription(src); desc != "" {
				s.DrawText(desc, lm.DescriptionX, y, lm.RowFontSize, r.opts.TextColor)
			}
		}
	}
}

// RenderHeader draws the column header in header coordinates (y=0 at the top
// of the image). Only the x extent of clip is used.
func (r *Renderer) RenderHeader(s Surface, clip *image.Rectangle) {
	lm := r.metrics
	if lm.Columns == 0 {
		return
	}
	vr := lm.VisibleRange(clip)
	ew := lm.ElementWidth
	bottom := lm.HeaderHeight

	if r.opts.ShowLegend {
		palette := r.scale.Scheme().Palette
		width := ew * lm.Columns
		for i, c := range palette {
			x0 := lm.LeftInset + width*i/len(palette)
			x1 := lm.LeftInset + width*(i+1)/len(palette)
			s.FillRect(image.Rect(x0, 0, x1, legendHeight), c)
		}
	}

	if lm.ColumnBarHeight > 0 {
		y := bottom - lm.ColumnBarHeight - 2
		for col := vr.Left; col < vr.Right; col++ {
			oc := r.colors.Columns[r.order.Column(col)]
			if !oc.OK {
				continue
			}
			x := lm.LeftInset + col*ew
			s.FillRect(image.Rect(x, y, x+ew, y+lm.ColumnBarHeight), oc.Color)
		}
	}

	if h := r.opts.ColumnHighlight; h != nil && lm.ShowColumnNames {
		first, last := clamp(h.First, 0, lm.Columns), clamp(h.Last, 0, lm.Columns)
		if first < last {
			s.FillRect(image.Rect(lm.LeftInset+first*ew, legendHeight,
				lm.LeftInset+last*ew, bottom-lm.ColumnBarHeight), r.scale.Scheme().MaskColor)
		}
	}

	if lm.ShowColumnNames {
		size := lm.ColumnFontSize
		ascent := r.fm.LineHeight(size) - r.fm.Descent(size)
		y := bottom - 8 - lm.ColumnBarHeight
		for col := vr.Left; col < vr.Right; col++ {
			x := lm.LeftInset + col*ew + ascent
			s.DrawTextUp(r.m.ColumnName(r.order.Column(col)), x, y, size, r.opts.TextColor)
		}
	}
}
