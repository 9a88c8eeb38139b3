package heatmap

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/heatmapimage/server/pkg/colormap"
)

// ResponseMode selects how raw values are spread over slot boundaries.
type ResponseMode int

const (
	ResponseLinear ResponseMode = iota
	ResponseLog
)

func (m ResponseMode) String() string {
	switch m {
	case ResponseLinear:
		return "linear"
	case ResponseLog:
		return "log"
	default:
		return fmt.Sprintf("ResponseMode(%d)", int(m))
	}
}

// ParseResponseMode accepts "linear" or "log" (case-insensitive).
func ParseResponseMode(s string) (ResponseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return ResponseLinear, nil
	case "log":
		return ResponseLog, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrResponseMode, s)
}

// ScaleMode selects whether statistics are computed per row or over the whole matrix.
type ScaleMode int

const (
	ScalePerRow ScaleMode = iota
	ScaleGlobal
)

func (m ScaleMode) String() string {
	switch m {
	case ScalePerRow:
		return "row"
	case ScaleGlobal:
		return "global"
	default:
		return fmt.Sprintf("ScaleMode(%d)", int(m))
	}
}

// ParseScaleMode accepts "row", "row normalized" or "global".
func ParseScaleMode(s string) (ScaleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "row", "row normalized", "per_row":
		return ScalePerRow, nil
	case "global":
		return ScaleGlobal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrScaleMode, s)
}

// Default colors for cells without data and for highlighted ranges.
var (
	DefaultMissingColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	DefaultMaskColor    = color.RGBA{R: 128, G: 128, B: 0, A: 128} // premultiplied translucent yellow
)

// MaxPaletteSize bounds the number of color buckets.
const MaxPaletteSize = 256

// ColorScheme configures how values become colors.
type ColorScheme struct {
	Palette      []color.RGBA
	Response     ResponseMode
	Scale        ScaleMode
	MissingColor color.RGBA
	MaskColor    color.RGBA
}

// DefaultScheme returns the per-row, linear scheme over the default palette.
func DefaultScheme() ColorScheme {
	return ColorScheme{
		Palette:      colormap.Default.Colors(),
		Response:     ResponseLinear,
		Scale:        ScalePerRow,
		MissingColor: DefaultMissingColor,
		MaskColor:    DefaultMaskColor,
	}
}

// Validate rejects schemes that cannot produce a slot table.
func (s ColorScheme) Validate() error {
	if len(s.Palette) == 0 {
		return ErrEmptyPalette
	}
	if len(s.Palette) > MaxPaletteSize {
		return fmt.Errorf("%w: %d colors, at most %d", ErrPaletteSize, len(s.Palette), MaxPaletteSize)
	}
	if s.Response != ResponseLinear && s.Response != ResponseLog {
		return fmt.Errorf("%w: %d", ErrResponseMode, int(s.Response))
	}
	if s.Scale != ScalePerRow && s.Scale != ScaleGlobal {
		return fmt.Errorf("%w: %d", ErrScaleMode, int(s.Scale))
	}
	return nil
}
