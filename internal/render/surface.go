package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// Surface draws heat map operations onto a gg context.
type Surface struct {
	dc    *gg.Context
	fonts *Fonts
}

// NewSurface wraps dc. fonts may be nil when no text is drawn.
func NewSurface(dc *gg.Context, fonts *Fonts) *Surface {
	return &Surface{dc: dc, fonts: fonts}
}

func (s *Surface) FillRect(r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	s.dc.SetColor(c)
	s.dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	s.dc.Fill()
}

// DrawLine strokes a one pixel line through the centres of the end pixels.
func (s *Surface) DrawLine(x0, y0, x1, y1 int, c color.Color) {
	s.dc.SetColor(c)
	s.dc.SetLineWidth(1)
	s.dc.DrawLine(float64(x0)+0.5, float64(y0)+0.5, float64(x1)+0.5, float64(y1)+0.5)
	s.dc.Stroke()
}

func (s *Surface) DrawText(text string, x, y int, size float64, c color.Color) {
	if s.fonts == nil || text == "" {
		return
	}
	s.dc.SetFontFace(s.fonts.Face(size))
	s.dc.SetColor(c)
	s.dc.DrawString(text, float64(x), float64(y))
}

func (s *Surface) DrawTextUp(text string, x, y int, size float64, c color.Color) {
	if s.fonts == nil || text == "" {
		return
	}
	fx, fy := float64(x), float64(y)
	s.dc.Push()
	s.dc.RotateAbout(-math.Pi/2, fx, fy)
	s.DrawText(text, x, y, size, c)
	s.dc.Pop()
}
