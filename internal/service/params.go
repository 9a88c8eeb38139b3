package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/heatmapimage/server/internal/heatmap"
)

// RenderParams are the per-request display settings. Zero values fall back
// to the dataset defaults.
type RenderParams struct {
	ElementWidth  int    `json:"element_width,omitempty"`
	ElementHeight int    `json:"element_height,omitempty"`
	Response      string `json:"response,omitempty"`
	Scale         string `json:"scale,omitempty"`

	// Palette names a registered colormap, sampled to PaletteSize colors.
	// Colors, when set, is used verbatim instead.
	Palette     string   `json:"palette,omitempty"`
	PaletteSize int      `json:"palette_size,omitempty"`
	Colors      []string `json:"colors,omitempty"`

	Grid      *bool  `json:"grid,omitempty"`
	GridColor string `json:"grid_color,omitempty"`

	RowNames        *bool `json:"row_names,omitempty"`
	RowDescriptions *bool `json:"row_descriptions,omitempty"`
	ColumnNames     *bool `json:"column_names,omitempty"`
	Annotations     *bool `json:"annotations,omitempty"`
	Legend          bool  `json:"legend,omitempty"`

	RowOrder    []int `json:"row_order,omitempty"`
	ColumnOrder []int `json:"column_order,omitempty"`

	HighlightRows    *heatmap.Span `json:"highlight_rows,omitempty"`
	HighlightColumns *heatmap.Span `json:"highlight_columns,omitempty"`

	Format string `json:"format,omitempty"`
}

// ParseRenderParams reads render settings from query parameters:
//
//	ew, eh            element width and height
//	response, scale   "linear"|"log", "row"|"global"
//	palette, palette_size, color (repeatable)
//	grid, grid_color
//	names, descriptions, column_names, annotations, legend
//	row_order, column_order   comma-separated display orders
//	highlight_rows, highlight_columns   "first:last", half-open
//	format
func ParseRenderParams(q url.Values) (RenderParams, error) {
	var p RenderParams
	var err error

	if p.ElementWidth, err = intParam(q, "ew"); err != nil {
		return p, err
	}
	if p.ElementHeight, err = intParam(q, "eh"); err != nil {
		return p, err
	}
	if p.PaletteSize, err = intParam(q, "palette_size"); err != nil {
		return p, err
	}
	if err := checkPaletteSize(p.PaletteSize); err != nil {
		return p, badParam("palette_size", q.Get("palette_size"), err)
	}
	p.Response = q.Get("response")
	p.Scale = q.Get("scale")
	p.Palette = q.Get("palette")
	p.Colors = q["color"]
	p.GridColor = q.Get("grid_color")
	p.Format = q.Get("format")

	for name, dst := range map[string]**bool{
		"grid":         &p.Grid,
		"names":        &p.RowNames,
		"descriptions": &p.RowDescriptions,
		"column_names": &p.ColumnNames,
		"annotations":  &p.Annotations,
	} {
		if *dst, err = boolParam(q, name); err != nil {
			return p, err
		}
	}
	if legend, err := boolParam(q, "legend"); err != nil {
		return p, err
	} else if legend != nil {
		p.Legend = *legend
	}

	if p.RowOrder, err = intListParam(q, "row_order"); err != nil {
		return p, err
	}
	if p.ColumnOrder, err = intListParam(q, "column_order"); err != nil {
		return p, err
	}
	if p.HighlightRows, err = spanParam(q, "highlight_rows"); err != nil {
		return p, err
	}
	if p.HighlightColumns, err = spanParam(q, "highlight_columns"); err != nil {
		return p, err
	}
	return p, nil
}

// cacheParams reduces p to a map for cache keys; nil when every setting is
// the default.
func (p RenderParams) cacheParams() map[string]string {
	data, err := json.Marshal(p)
	if err != nil || string(data) == "{}" {
		return nil
	}
	return map[string]string{"params": string(data)}
}

func checkPaletteSize(n int) error {
	if n < 0 || n > heatmap.MaxPaletteSize {
		return fmt.Errorf("%w: %d, want 1-%d", heatmap.ErrPaletteSize, n, heatmap.MaxPaletteSize)
	}
	return nil
}

func badParam(name, value string, err error) error {
	return fmt.Errorf("%w: parameter %s=%q: %v", heatmap.ErrInvalidConfig, name, value, err)
}

func intParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, badParam(name, s, err)
	}
	return v, nil
}

func boolParam(q url.Values, name string) (*bool, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, badParam(name, s, err)
	}
	return &v, nil
}

func intListParam(q url.Values, name string) ([]int, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, badParam(name, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func spanParam(q url.Values, name string) (*heatmap.Span, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	first, last, ok := strings.Cut(s, ":")
	if !ok {
		return nil, badParam(name, s, fmt.Errorf("want first:last"))
	}
	a, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return nil, badParam(name, s, err)
	}
	b, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return nil, badParam(name, s, err)
	}
	return &heatmap.Span{First: a, Last: b}, nil
}
