package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/fogleman/gg"
	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/heatmap"
)

func newHeatmap(t *testing.T, fonts *Fonts, opts heatmap.Options) *heatmap.Renderer {
	t.Helper()
	m, err := heatmap.NewDenseRows([][]float64{
		{math.NaN(), 1, 2},
		{3, 4, 5},
	}, []string{"gene-a", "gene-b"}, []string{"s1", "s2", "s3"})
	if err != nil {
		t.Fatalf("NewDenseRows: %v", err)
	}
	hm, err := heatmap.NewRenderer(m, heatmap.DisplayOrder{}, heatmap.DefaultScheme(), nil, opts, fonts)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(hm.Close)
	return hm
}

func newFonts(t *testing.T) *Fonts {
	t.Helper()
	fonts, err := NewFonts()
	if err != nil {
		t.Fatalf("NewFonts: %v", err)
	}
	t.Cleanup(func() { fonts.Close() })
	return fonts
}

func TestFontsMetrics(t *testing.T) {
	fonts := newFonts(t)

	if w := fonts.StringWidth("", 10); w != 0 {
		t.Fatalf("empty width = %d", w)
	}
	short, long := fonts.StringWidth("ab", 10), fonts.StringWidth("abab", 10)
	if short <= 0 || long <= short {
		t.Fatalf("widths not increasing: %d, %d", short, long)
	}
	if big := fonts.StringWidth("ab", 14); big <= short {
		t.Fatalf("width at 14pt (%d) should exceed 10pt (%d)", big, short)
	}
	if fonts.LineHeight(10) <= fonts.Descent(10) || fonts.Descent(10) <= 0 {
		t.Fatalf("bad metrics: line %d descent %d", fonts.LineHeight(10), fonts.Descent(10))
	}
}

func TestSnapshotPixels(t *testing.T) {
	fonts := newFonts(t)
	opts := heatmap.DefaultOptions()
	opts.Grid = false
	hm := newHeatmap(t, fonts, opts)
	r := NewRasterizer(Config{})

	img, err := r.Snapshot(hm, fonts)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	lm := hm.Layout()
	if img.Bounds().Dx() != lm.ImageWidth() || img.Bounds().Dy() != lm.ImageHeight() {
		t.Fatalf("bounds %v, want %dx%d", img.Bounds(), lm.ImageWidth(), lm.ImageHeight())
	}

	// Cell (0,0) is missing; sample its centre.
	cx := lm.LeftInset + lm.ElementWidth/2
	cy := lm.HeaderHeight + lm.ElementHeight/2
	if got := img.RGBAAt(cx, cy); got != heatmap.DefaultMissingColor {
		t.Fatalf("missing cell = %v, want %v", got, heatmap.DefaultMissingColor)
	}
	// Cell (1,2) holds the row maximum.
	want := heatmap.DefaultScheme().Palette[11]
	if got := img.RGBAAt(cx+2*lm.ElementWidth, cy+lm.ElementHeight); got != want {
		t.Fatalf("max cell = %v, want %v", got, want)
	}
	// The top-left corner is background.
	if got := img.RGBAAt(0, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("corner = %v", got)
	}
}

func TestEncodeRespectsBudget(t *testing.T) {
	fonts := newFonts(t)
	hm := newHeatmap(t, fonts, heatmap.DefaultOptions())

	small := NewRasterizer(Config{MaxPixels: 10})
	if _, err := small.Encode(hm, fonts, export.PNG); !errors.Is(err, heatmap.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	r := NewRasterizer(Config{FastPNG: true})
	for i := 0; i < 2; i++ { // second pass reuses pooled buffers
		data, err := r.Encode(hm, fonts, export.PNG)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		lm := hm.Layout()
		if img.Bounds() != image.Rect(0, 0, lm.ImageWidth(), lm.ImageHeight()) {
			t.Fatalf("bounds %v", img.Bounds())
		}
	}
}

func TestRegion(t *testing.T) {
	fonts := newFonts(t)
	opts := heatmap.DefaultOptions()
	opts.Grid = false
	hm := newHeatmap(t, fonts, opts)
	r := NewRasterizer(Config{})

	lm := hm.Layout()
	clip := image.Rect(lm.LeftInset, 0, lm.LeftInset+lm.ElementWidth, lm.ElementHeight)
	img, err := r.Region(hm, fonts, clip)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}
	if img.Bounds().Dx() != lm.ElementWidth {
		t.Fatalf("width %d", img.Bounds().Dx())
	}
	if got := img.RGBAAt(2, 2); got != heatmap.DefaultMissingColor {
		t.Fatalf("region pixel = %v", got)
	}

	if _, err := r.Region(hm, fonts, image.Rectangle{}); !errors.Is(err, heatmap.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestHighlightMaskTintsLabels(t *testing.T) {
	// A white surface under the mask turns translucent yellow, not gray.
	dc := gg.NewContext(4, 4)
	dc.SetColor(color.White)
	dc.Clear()
	NewSurface(dc, nil).FillRect(image.Rect(0, 0, 4, 4), heatmap.DefaultMaskColor)
	img := dc.Image().(*image.RGBA)
	assertYellowTint(t, img.RGBAAt(1, 1))

	fonts := newFonts(t)
	m, err := heatmap.NewDenseRows([][]float64{{1, 2}, {3, 4}},
		[]string{"a", "wwwwwwww"}, []string{"s1", "s2"})
	if err != nil {
		t.Fatalf("NewDenseRows: %v", err)
	}
	opts := heatmap.DefaultOptions()
	opts.Grid = false
	opts.RowHighlight = &heatmap.Span{First: 0, Last: 1}
	hm, err := heatmap.NewRenderer(m, heatmap.DisplayOrder{}, heatmap.DefaultScheme(), nil, opts, fonts)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	defer hm.Close()

	snap, err := NewRasterizer(Config{}).Snapshot(hm, fonts)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	lm := hm.Layout()
	// Right end of the short name's label cell: only the mask covers it.
	assertYellowTint(t, snap.RGBAAt(lm.LabelX+lm.RowNameWidth-1, lm.HeaderHeight+1))
}

func assertYellowTint(t *testing.T, got color.RGBA) {
	t.Helper()
	if got.R < 250 || got.G < 250 || got.B < 115 || got.B > 140 {
		t.Fatalf("mask over white = %v, want translucent yellow", got)
	}
}
