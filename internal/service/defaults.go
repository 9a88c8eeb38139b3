package service

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/heatmapimage/server/internal/config"
	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/heatmap"
	"github.com/heatmapimage/server/pkg/colormap"
)

// RenderDefaults fill in whatever a request leaves unset.
type RenderDefaults struct {
	ElementWidth  int
	ElementHeight int
	Palette       []color.RGBA
	PaletteSize   int
	Response      heatmap.ResponseMode
	Scale         heatmap.ScaleMode
	Grid          bool
	GridColor     color.RGBA
	Format        export.Format
}

// DefaultRenderDefaults returns 10x10 cells, the default palette, linear
// per-row scaling and a black grid, encoded as PNG.
func DefaultRenderDefaults() RenderDefaults {
	return RenderDefaults{
		ElementWidth:  10,
		ElementHeight: 10,
		Palette:       colormap.Default.Colors(),
		PaletteSize:   len(colormap.Default),
		Response:      heatmap.ResponseLinear,
		Scale:         heatmap.ScalePerRow,
		Grid:          true,
		GridColor:     color.RGBA{A: 255},
		Format:        export.PNG,
	}
}

// RenderDefaultsFromConfig resolves the render section of the server
// configuration. A palette file takes precedence over a palette name.
func RenderDefaultsFromConfig(cfg config.RenderConfig) (RenderDefaults, error) {
	d := DefaultRenderDefaults()
	if cfg.ElementWidth > 0 {
		d.ElementWidth = cfg.ElementWidth
	}
	if cfg.ElementHeight > 0 {
		d.ElementHeight = cfg.ElementHeight
	}
	if cfg.PaletteSize > 0 {
		d.PaletteSize = cfg.PaletteSize
	}

	var err error
	switch {
	case cfg.PaletteFile != "":
		d.Palette, err = loadPaletteFile(cfg.PaletteFile)
	case cfg.Palette != "":
		d.Palette, err = namedPalette(cfg.Palette, d.PaletteSize)
	}
	if err != nil {
		return d, err
	}
	if cfg.Response != "" {
		if d.Response, err = heatmap.ParseResponseMode(cfg.Response); err != nil {
			return d, err
		}
	}
	if cfg.Scale != "" {
		if d.Scale, err = heatmap.ParseScaleMode(cfg.Scale); err != nil {
			return d, err
		}
	}
	d.Grid = cfg.GridEnabled()
	if cfg.GridColor != "" {
		if d.GridColor, err = colormap.ParseColor(cfg.GridColor); err != nil {
			return d, fmt.Errorf("grid_color: %w", err)
		}
	}
	if cfg.Format != "" {
		if d.Format, err = export.ParseFormat(cfg.Format); err != nil {
			return d, err
		}
	}
	return d, nil
}

func loadPaletteFile(path string) ([]color.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open palette file: %w", err)
	}
	defer f.Close()
	p, err := colormap.ParsePalette(f)
	if err != nil {
		return nil, fmt.Errorf("palette file %s: %w", path, err)
	}
	return p.Colors(), nil
}

// namedPalette samples a registered colormap. Discrete palettes keep their
// own colors unless a different size is requested.
func namedPalette(name string, size int) ([]color.RGBA, error) {
	if err := checkPaletteSize(size); err != nil {
		return nil, err
	}
	cm, ok := colormap.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown palette %q (have %s)", heatmap.ErrInvalidConfig,
			name, strings.Join(colormap.Names(), ", "))
	}
	if p, ok := cm.(colormap.Palette); ok && (size <= 0 || size == len(p)) {
		return p.Colors(), nil
	}
	if size <= 0 {
		return nil, heatmap.ErrEmptyPalette
	}
	return colormap.Discrete(cm, size).Colors(), nil
}

// AnnotationsFromConfig builds the annotation table of a dataset.
func AnnotationsFromConfig(cfgs []config.AnnotationsConfig) (*heatmap.Annotations, error) {
	ann := heatmap.NewAnnotations()
	for i, a := range cfgs {
		c, err := colormap.ParseColor(a.Color)
		if err != nil {
			return nil, fmt.Errorf("annotations[%d]: %w", i, err)
		}
		list := []heatmap.FeatureList{{Names: a.Names, Color: c}}
		switch strings.ToLower(a.Axis) {
		case "", "row", "rows":
			ann.AddRowLists(list)
		case "column", "columns":
			ann.AddColumnLists(list)
		default:
			return nil, fmt.Errorf("annotations[%d]: unknown axis %q", i, a.Axis)
		}
	}
	return ann, nil
}
