package colormap

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	ErrBadColor = errors.New("colormap: unrecognised color")
	ErrNoColors = errors.New("colormap: palette has no colors")
)

var namedColors = map[string]color.RGBA{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 255, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"cyan":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"orange":  {255, 200, 0, 255},
	"pink":    {255, 175, 175, 255},
	"gray":    {128, 128, 128, 255},
	"grey":    {128, 128, 128, 255},
}

// ParseColor accepts an "r:g:b" (or "r,g,b") triplet of 0-255 components,
// a "#rrggbb" hex code or a basic color name.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return color.RGBA{}, fmt.Errorf("%w: empty", ErrBadColor)
	}
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		hex, err := colorful.Hex(s)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
		}
		r, g, b := hex.RGB255()
		return color.RGBA{R: r, G: g, B: b, A: 255}, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ',' })
	if len(parts) != 3 {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	var rgb [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}

// FormatColor renders c as an "r:g:b" triplet.
func FormatColor(c color.RGBA) string {
	return fmt.Sprintf("%d:%d:%d", c.R, c.G, c.B)
}

// ParsePalette reads one color per line. Blank lines and lines starting
// with '#' followed by a space are skipped.
func ParsePalette(r io.Reader) (Palette, error) {
	var out Palette
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "# ") || s == "#" {
			continue
		}
		c, err := ParseColor(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoColors
	}
	return out, nil
}
