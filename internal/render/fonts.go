package render

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	parseOnce sync.Once
	regular   *opentype.Font
	parseErr  error
)

func loadRegular() (*opentype.Font, error) {
	parseOnce.Do(func() {
		regular, parseErr = opentype.Parse(goregular.TTF)
		if parseErr != nil {
			parseErr = fmt.Errorf("parse go regular: %w", parseErr)
		}
	})
	return regular, parseErr
}

// Fonts hands out label faces by point size and measures text for layout.
// Faces keep glyph caches, so a Fonts value belongs to one render.
type Fonts struct {
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewFonts returns a face set backed by the embedded Go Regular font.
func NewFonts() (*Fonts, error) {
	f, err := loadRegular()
	if err != nil {
		return nil, err
	}
	return &Fonts{font: f, faces: make(map[float64]font.Face)}, nil
}

// Face returns the face for size, creating it on first use.
func (f *Fonts) Face(size float64) font.Face {
	if face, ok := f.faces[size]; ok {
		return face
	}
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// Only reachable with a non-positive size.
		return basicfont.Face7x13
	}
	f.faces[size] = face
	return face
}

// StringWidth is the advance width of s in whole pixels.
func (f *Fonts) StringWidth(s string, size float64) int {
	if s == "" {
		return 0
	}
	return font.MeasureString(f.Face(size), s).Ceil()
}

func (f *Fonts) LineHeight(size float64) int {
	return f.Face(size).Metrics().Height.Ceil()
}

func (f *Fonts) Descent(size float64) int {
	return f.Face(size).Metrics().Descent.Ceil()
}

// Close releases every face.
func (f *Fonts) Close() error {
	for size, face := range f.faces {
		face.Close()
		delete(f.faces, size)
	}
	return nil
}
