package heatmap

import (
	"fmt"
	"image"
	"math"
)

// Fixed geometry, in pixels.
const (
	DefaultLeftInset = 10
	MaxFontSize      = 14
	// MaxExtent bounds either image dimension so pixel arithmetic cannot
	// overflow.
	MaxExtent = 1 << 24

	labelGutter    = 20
	swatchOffset   = 5
	swatchGap      = 10
	legendHeight   = 15
	headerPadding  = 10
	colorBarHeight = 10
	spacerText     = "xxxx"
)

// FontMetrics measures label text at a point size.
type FontMetrics interface {
	// StringWidth is the sum of glyph advances of s.
	StringWidth(s string, pointSize float64) int
	LineHeight(pointSize float64) int
	Descent(pointSize float64) int
}

// LayoutOptions are the geometry-affecting display settings.
type LayoutOptions struct {
	ElementWidth  int
	ElementHeight int
	LeftInset     int

	ShowRowNames          bool
	ShowRowDescriptions   bool
	ShowColumnNames       bool
	ShowRowAnnotations    bool
	ShowColumnAnnotations bool
}

// DefaultLayoutOptions returns 10x10 cells with names and annotations shown.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		ElementWidth:          10,
		ElementHeight:         10,
		LeftInset:             DefaultLeftInset,
		ShowRowNames:          true,
		ShowRowDescriptions:   true,
		ShowColumnNames:       true,
		ShowRowAnnotations:    true,
		ShowColumnAnnotations: true,
	}
}

// Validate rejects geometry that would divide by zero.
func (o LayoutOptions) Validate() error {
	if o.ElementWidth <= 0 || o.ElementHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrElementSize, o.ElementWidth, o.ElementHeight)
	}
	if o.LeftInset < 0 {
		return fmt.Errorf("%w: negative left inset %d", ErrInvalidConfig, o.LeftInset)
	}
	return nil
}

// LayoutMetrics is the pixel geometry of one heat map. Body coordinates start
// at the top of the first row; the header sits above it.
type LayoutMetrics struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`

	ElementWidth  int `json:"element_width"`
	ElementHeight int `json:"element_height"`
	LeftInset     int `json:"left_inset"`

	ContentWidth  int `json:"content_width"`
	ContentHeight int `json:"content_height"`
	HeaderHeight  int `json:"header_height"`

	RowFontSize    float64 `json:"row_font_size"`
	ColumnFontSize float64 `json:"column_font_size"`

	RowNameWidth        int `json:"row_name_width"`
	RowDescriptionWidth int `json:"row_description_width"`
	DescriptionSpacer   int `json:"description_spacer"`
	ColumnNameHeight    int `json:"column_name_height"`
	ColumnBarHeight     int `json:"column_bar_height"`

	// SwatchX is -1 when no row swatches are drawn.
	SwatchX      int `json:"swatch_x"`
	LabelX       int `json:"label_x"`
	DescriptionX int `json:"description_x"`

	ShowRowNames        bool `json:"show_row_names"`
	ShowRowDescriptions bool `json:"show_row_descriptions"`
	ShowColumnNames     bool `json:"show_column_names"`
}

// ComputeLayout derives the geometry of m under opts. ann may be nil; fm may
// be nil only when no text is shown.
func ComputeLayout(m Matrix, opts LayoutOptions, ann *Annotations, fm FontMetrics) (LayoutMetrics, error) {
	if err := opts.Validate(); err != nil {
		return LayoutMetrics{}, err
	}
	rows, cols := m.RowCount(), m.ColumnCount()
	ew, eh := opts.ElementWidth, opts.ElementHeight
	if int64(ew)*int64(cols) > MaxExtent || int64(eh)*int64(rows) > MaxExtent || opts.LeftInset > MaxExtent {
		return LayoutMetrics{}, fmt.Errorf("%w: %dx%d cells of %dx%d px", ErrImageTooLarge, cols, rows, ew, eh)
	}

	lm := LayoutMetrics{
		Rows:                rows,
		Columns:             cols,
		ElementWidth:        ew,
		ElementHeight:       eh,
		LeftInset:           opts.LeftInset,
		RowFontSize:         math.Min(float64(eh), MaxFontSize),
		ColumnFontSize:      math.Min(float64(ew), MaxFontSize),
		SwatchX:             -1,
		ShowRowNames:        opts.ShowRowNames,
		ShowRowDescriptions: opts.ShowRowDescriptions,
		ShowColumnNames:     opts.ShowColumnNames,
	}
	if fm == nil && (opts.ShowRowNames || opts.ShowRowDescriptions || opts.ShowColumnNames) {
		return LayoutMetrics{}, fmt.Errorf("%w: labels requested without font metrics", ErrInvalidConfig)
	}

	cellsRight := opts.LeftInset + ew*cols
	width := cellsRight + 1

	swatches := opts.ShowRowAnnotations && ann.HasRows()
	labelX := cellsRight + swatchGap
	if swatches {
		lm.SwatchX = cellsRight + swatchOffset
		labelX += ew
		width += ew + swatchGap
	}

	if opts.ShowRowNames || opts.ShowRowDescriptions {
		width += labelGutter
	}
	if opts.ShowRowNames {
		for i := 0; i < rows; i++ {
			lm.RowNameWidth = max(lm.RowNameWidth, fm.StringWidth(m.RowName(i), lm.RowFontSize))
		}
		width += lm.RowNameWidth
	}
	if opts.ShowRowDescriptions {
		lm.DescriptionSpacer = fm.StringWidth(spacerText, lm.RowFontSize)
		for i := 0; i < rows; i++ {
			lm.RowDescriptionWidth = max(lm.RowDescriptionWidth, fm.StringWidth(m.RowDescription(i), lm.RowFontSize))
		}
		width += lm.DescriptionSpacer + lm.RowDescriptionWidth
	}
	lm.LabelX = labelX
	lm.DescriptionX = labelX + lm.DescriptionSpacer
	if opts.ShowRowNames {
		lm.DescriptionX += lm.RowNameWidth
	}

	lm.ContentWidth = width
	lm.ContentHeight = eh*rows + 1

	if opts.ShowColumnNames {
		for j := 0; j < cols; j++ {
			lm.ColumnNameHeight = max(lm.ColumnNameHeight, fm.StringWidth(m.ColumnName(j), lm.ColumnFontSize))
		}
	}
	if opts.ShowColumnAnnotations && ann.HasColumns() {
		lm.ColumnBarHeight = colorBarHeight
	}
	lineHeight := 0
	if fm != nil {
		lineHeight = fm.LineHeight(lm.ColumnFontSize)
	}
	lm.HeaderHeight = lm.ColumnNameHeight + legendHeight + lineHeight + headerPadding + lm.ColumnBarHeight

	return lm, nil
}

// ImageWidth is the width of a full snapshot.
func (lm LayoutMetrics) ImageWidth() int { return lm.ContentWidth }

// ImageHeight is the height of a full snapshot, header included.
func (lm LayoutMetrics) ImageHeight() int { return lm.HeaderHeight + lm.ContentHeight }

// CheckBudget returns ErrImageTooLarge when a snapshot would exceed maxPixels.
// A non-positive budget only rejects images no buffer could hold.
func (lm LayoutMetrics) CheckBudget(maxPixels int64) error {
	w, h := lm.ImageWidth(), lm.ImageHeight()
	if w <= 0 || h <= 0 || w > MaxExtent || h > MaxExtent {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, w, h)
	}
	px := int64(w) * int64(h)
	if px > math.MaxInt/4 || (maxPixels > 0 && px > maxPixels) {
		return fmt.Errorf("%w: %dx%d (%d px, budget %d)", ErrImageTooLarge,
			lm.ImageWidth(), lm.ImageHeight(), px, maxPixels)
	}
	return nil
}

// CellRect is the body-space rectangle of display cell (row, column).
func (lm LayoutMetrics) CellRect(row, column int) image.Rectangle {
	x := lm.LeftInset + column*lm.ElementWidth
	y := row * lm.ElementHeight
	return image.Rect(x, y, x+lm.ElementWidth, y+lm.ElementHeight)
}

// FindRow returns the display row under body y, or -1 above the body. The
// result may exceed Rows-1.
func (lm LayoutMetrics) FindRow(y int) int {
	if y < 0 {
		return -1
	}
	return y / lm.ElementHeight
}

// FindColumn returns the display column under x, or -1 left of the cells.
// The result may exceed Columns-1.
func (lm LayoutMetrics) FindColumn(x int) int {
	if x < lm.LeftInset {
		return -1
	}
	return (x - lm.LeftInset) / lm.ElementWidth
}

// IsLegal reports whether (row, column) addresses a cell.
func (lm LayoutMetrics) IsLegal(row, column int) bool {
	return row >= 0 && row < lm.Rows && column >= 0 && column < lm.Columns
}

// TopIndex is the first display row touched by body y.
func (lm LayoutMetrics) TopIndex(y int) int {
	return clamp(max(0, y)/lm.ElementHeight, 0, lm.Rows)
}

// BottomIndex is one past the last display row touched by body y.
func (lm LayoutMetrics) BottomIndex(y int) int {
	if y < 0 {
		return 0
	}
	return clamp(y/lm.ElementHeight+1, 0, lm.Rows)
}

// LeftIndex is the first display column touched by x.
func (lm LayoutMetrics) LeftIndex(x int) int {
	if x < lm.LeftInset {
		return 0
	}
	return clamp((x-lm.LeftInset)/lm.ElementWidth, 0, lm.Columns)
}

// RightIndex is one past the last display column touched by x.
func (lm LayoutMetrics) RightIndex(x int) int {
	if x < lm.LeftInset {
		return 0
	}
	return clamp((x-lm.LeftInset)/lm.ElementWidth+1, 0, lm.Columns)
}

// IndexRange is a half-open block of display rows and columns.
type IndexRange struct {
	Top, Bottom int
	Left, Right int
}

// Empty reports whether the range covers no cell.
func (r IndexRange) Empty() bool {
	return r.Top >= r.Bottom || r.Left >= r.Right
}

// VisibleRange converts a body-space clip into the cells it touches. A nil
// clip covers the whole matrix.
func (lm LayoutMetrics) VisibleRange(clip *image.Rectangle) IndexRange {
	if clip == nil {
		return IndexRange{Top: 0, Bottom: lm.Rows, Left: 0, Right: lm.Columns}
	}
	return IndexRange{
		Top:    lm.TopIndex(clip.Min.Y),
		Bottom: lm.BottomIndex(clip.Max.Y),
		Left:   lm.LeftIndex(clip.Min.X),
		Right:  lm.RightIndex(clip.Max.X),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
