package colormap

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Gradient blends between stops in CIE L*a*b* space, which keeps perceived
// brightness changing evenly. It satisfies Colormap.
type Gradient struct {
	stops []colorful.Color
}

// NewGradient builds a gradient through stops. It needs at least one stop.
func NewGradient(stops ...color.RGBA) (Gradient, error) {
	if len(stops) == 0 {
		return Gradient{}, ErrNoColors
	}
	g := Gradient{stops: make([]colorful.Color, len(stops))}
	for i, s := range stops {
		g.stops[i], _ = colorful.MakeColor(s)
	}
	return g, nil
}

func mustGradient(stops ...color.RGBA) Gradient {
	g, err := NewGradient(stops...)
	if err != nil {
		panic(err)
	}
	return g
}

// At returns the blended color at position t (0-1).
func (g Gradient) At(t float64) color.Color {
	n := len(g.stops)
	if n == 1 || t <= 0 {
		return rgba(g.stops[0])
	}
	if t >= 1 {
		return rgba(g.stops[n-1])
	}
	pos := t * float64(n-1)
	i := int(pos)
	return rgba(g.stops[i].BlendLab(g.stops[i+1], pos-float64(i)).Clamped())
}

// AtIndex returns stop i (wraps around).
func (g Gradient) AtIndex(i int) color.Color {
	return rgba(g.stops[i%len(g.stops)])
}

func rgba(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
