// Package service provides the heat map operations served over HTTP and
// used by render jobs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/heatmapimage/server/internal/cache"
	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/heatmap"
	"github.com/heatmapimage/server/internal/render"
	"github.com/heatmapimage/server/pkg/colormap"
)

// ErrNotFound is returned for rows or cells that do not exist.
var ErrNotFound = errors.New("service: not found")

// HeatmapServiceConfig contains heat map service configuration.
type HeatmapServiceConfig struct {
	DatasetID   string
	Title       string
	RowURL      string
	Matrix      heatmap.Matrix
	Annotations *heatmap.Annotations
	Defaults    RenderDefaults
	// Cache may be nil, e.g. for one-off inline renders.
	Cache      *cache.Manager
	Rasterizer *render.Rasterizer
}

// HeatmapService renders one matrix. It is safe for concurrent use: every
// call builds its own heatmap.Renderer and font faces.
type HeatmapService struct {
	datasetID string
	title     string
	rowURL    string
	matrix    heatmap.Matrix
	ann       *heatmap.Annotations
	defaults  RenderDefaults
	cache     *cache.Manager
	raster    *render.Rasterizer
}

// NewHeatmapService creates a heat map service.
func NewHeatmapService(cfg HeatmapServiceConfig) (*HeatmapService, error) {
	if cfg.Matrix == nil {
		return nil, fmt.Errorf("%w: no matrix", heatmap.ErrInvalidConfig)
	}
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}
	ann := cfg.Annotations
	if ann == nil {
		ann = heatmap.NewAnnotations()
	}
	raster := cfg.Rasterizer
	if raster == nil {
		raster = render.NewRasterizer(render.Config{})
	}
	defaults := cfg.Defaults
	if len(defaults.Palette) == 0 {
		defaults = DefaultRenderDefaults()
	}

	if unknown := ann.Resolve(cfg.Matrix).Unknown; len(unknown) > 0 {
		log.Printf("[HeatmapService] %s: %d annotated names not in matrix: %s",
			datasetID, len(unknown), strings.Join(unknown, ", "))
	}

	return &HeatmapService{
		datasetID: datasetID,
		title:     cfg.Title,
		rowURL:    cfg.RowURL,
		matrix:    cfg.Matrix,
		ann:       ann,
		defaults:  defaults,
		cache:     cfg.Cache,
		raster:    raster,
	}, nil
}

// DatasetID returns the dataset this service renders.
func (s *HeatmapService) DatasetID() string { return s.datasetID }

// Matrix returns the underlying matrix.
func (s *HeatmapService) Matrix() heatmap.Matrix { return s.matrix }

// Annotations returns the dataset's annotation table.
func (s *HeatmapService) Annotations() *heatmap.Annotations { return s.ann }

// session is one configured renderer plus the faces it measures with.
type session struct {
	hm     *heatmap.Renderer
	fonts  *render.Fonts
	format export.Format
}

func (ss *session) Close() {
	ss.hm.Close()
	ss.fonts.Close()
}

func (s *HeatmapService) open(p RenderParams) (*session, error) {
	scheme, err := s.scheme(p)
	if err != nil {
		return nil, err
	}
	opts, err := s.options(p)
	if err != nil {
		return nil, err
	}
	format, err := s.ResolveFormat(p)
	if err != nil {
		return nil, err
	}

	fonts, err := render.NewFonts()
	if err != nil {
		return nil, err
	}
	order := heatmap.DisplayOrder{Rows: p.RowOrder, Columns: p.ColumnOrder}
	hm, err := heatmap.NewRenderer(s.matrix, order, scheme, s.ann, opts, fonts)
	if err != nil {
		fonts.Close()
		return nil, err
	}
	return &session{hm: hm, fonts: fonts, format: format}, nil
}

// ResolveFormat returns the output format p asks for, or the dataset default.
func (s *HeatmapService) ResolveFormat(p RenderParams) (export.Format, error) {
	if p.Format == "" {
		return s.defaults.Format, nil
	}
	return export.ParseFormat(p.Format)
}

func (s *HeatmapService) scheme(p RenderParams) (heatmap.ColorScheme, error) {
	scheme := heatmap.DefaultScheme()
	scheme.Palette = s.defaults.Palette
	scheme.Response = s.defaults.Response
	scheme.Scale = s.defaults.Scale

	if err := checkPaletteSize(p.PaletteSize); err != nil {
		return scheme, err
	}
	if len(p.Colors) > heatmap.MaxPaletteSize {
		return scheme, fmt.Errorf("%w: %d colors", heatmap.ErrPaletteSize, len(p.Colors))
	}

	var err error
	switch {
	case len(p.Colors) > 0:
		palette := make([]color.RGBA, len(p.Colors))
		for i, c := range p.Colors {
			if palette[i], err = colormap.ParseColor(c); err != nil {
				return scheme, fmt.Errorf("%w: color %d: %v", heatmap.ErrInvalidConfig, i, err)
			}
		}
		scheme.Palette = palette
		// A few stops with a larger size become a Lab gradient through them.
		if p.PaletteSize > len(palette) {
			g, err := colormap.NewGradient(palette...)
			if err != nil {
				return scheme, fmt.Errorf("%w: %v", heatmap.ErrInvalidConfig, err)
			}
			scheme.Palette = colormap.Discrete(g, p.PaletteSize).Colors()
		}
	case p.Palette != "":
		size := p.PaletteSize
		if size == 0 {
			size = s.defaults.PaletteSize
		}
		if scheme.Palette, err = namedPalette(p.Palette, size); err != nil {
			return scheme, err
		}
	case p.PaletteSize > 0 && p.PaletteSize != len(scheme.Palette):
		scheme.Palette = colormap.Discrete(colormap.Palette(scheme.Palette), p.PaletteSize).Colors()
	}

	if p.Response != "" {
		if scheme.Response, err = heatmap.ParseResponseMode(p.Response); err != nil {
			return scheme, err
		}
	}
	if p.Scale != "" {
		if scheme.Scale, err = heatmap.ParseScaleMode(p.Scale); err != nil {
			return scheme, err
		}
	}
	return scheme, scheme.Validate()
}

func (s *HeatmapService) options(p RenderParams) (heatmap.Options, error) {
	opts := heatmap.DefaultOptions()
	opts.Layout.ElementWidth = s.defaults.ElementWidth
	opts.Layout.ElementHeight = s.defaults.ElementHeight
	if p.ElementWidth != 0 {
		opts.Layout.ElementWidth = p.ElementWidth
	}
	if p.ElementHeight != 0 {
		opts.Layout.ElementHeight = p.ElementHeight
	}
	opts.Grid = s.defaults.Grid
	opts.GridColor = s.defaults.GridColor
	if p.Grid != nil {
		opts.Grid = *p.Grid
	}
	if p.GridColor != "" {
		c, err := colormap.ParseColor(p.GridColor)
		if err != nil {
			return opts, fmt.Errorf("%w: grid_color: %v", heatmap.ErrInvalidConfig, err)
		}
		opts.GridColor = c
	}

	setBool(&opts.Layout.ShowRowNames, p.RowNames)
	setBool(&opts.Layout.ShowRowDescriptions, p.RowDescriptions)
	setBool(&opts.Layout.ShowColumnNames, p.ColumnNames)
	setBool(&opts.Layout.ShowRowAnnotations, p.Annotations)
	setBool(&opts.Layout.ShowColumnAnnotations, p.Annotations)
	opts.ShowLegend = p.Legend
	opts.RowHighlight = heatmap.Reselect(s.matrix.RowCount(), p.HighlightRows)
	opts.ColumnHighlight = heatmap.Reselect(s.matrix.ColumnCount(), p.HighlightColumns)

	return opts, opts.Layout.Validate()
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Render returns the encoded snapshot for p and its format.
func (s *HeatmapService) Render(ctx context.Context, p RenderParams) ([]byte, export.Format, error) {
	format, err := s.ResolveFormat(p)
	if err != nil {
		return nil, "", err
	}
	cacheKey := cache.ImageKey(s.datasetID, string(format), p.cacheParams())
	if data, ok := s.getImage(cacheKey); ok {
		return data, format, nil
	}

	ss, err := s.open(p)
	if err != nil {
		return nil, "", err
	}
	defer ss.Close()
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, err := s.raster.Encode(ss.hm, ss.fonts, ss.format)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render heat map: %w", err)
	}
	s.setImage(cacheKey, data)
	return data, ss.format, nil
}

// Region returns a PNG of the body cells under clip, in body coordinates
// (y=0 at the top of the first row).
func (s *HeatmapService) Region(ctx context.Context, p RenderParams, clip image.Rectangle) ([]byte, error) {
	cacheKey := cache.RegionKey(s.datasetID, clip.Min.X, clip.Min.Y, clip.Dx(), clip.Dy(), p.cacheParams())
	if data, ok := s.getImage(cacheKey); ok {
		return data, nil
	}

	ss, err := s.open(p)
	if err != nil {
		return nil, err
	}
	defer ss.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := s.raster.Region(ss.hm, ss.fonts, clip)
	if err != nil {
		return nil, err
	}
	data, err := s.raster.EncodeImage(img, export.PNG)
	if err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}
	s.setImage(cacheKey, data)
	return data, nil
}

// Layout returns the pixel geometry for p.
func (s *HeatmapService) Layout(p RenderParams) (*heatmap.LayoutMetrics, error) {
	key := cache.QueryKey(s.datasetID, "layout", cache.ParamsHash(p.cacheParams()))
	var lm heatmap.LayoutMetrics
	if s.getQuery(key, &lm) {
		return &lm, nil
	}

	ss, err := s.open(p)
	if err != nil {
		return nil, err
	}
	defer ss.Close()
	lm = ss.hm.Layout()
	s.setQuery(key, lm)
	return &lm, nil
}

// RowStatsResult reports the statistics driving one row. Fields that are
// undefined for an empty row are null.
type RowStatsResult struct {
	Row        int      `json:"row"`
	Name       string   `json:"name"`
	Scale      string   `json:"scale"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Mean       *float64 `json:"mean"`
	ValidCount int      `json:"valid_count"`
}

// SlotsResult is a row's slot table with its lower bound first.
type SlotsResult struct {
	Row      int        `json:"row"`
	Name     string     `json:"name"`
	Response string     `json:"response"`
	Slots    []*float64 `json:"slots"`
	Flat     bool       `json:"flat"`
	Colors   []string   `json:"colors"`
}

// RowStats returns the statistics for the storage row named or numbered by
// row under p's scale mode.
func (s *HeatmapService) RowStats(p RenderParams, row string) (*RowStatsResult, error) {
	idx, err := s.rowIndex(row)
	if err != nil {
		return nil, err
	}
	scale, scheme, err := s.colorScale(p)
	if err != nil {
		return nil, err
	}
	key := cache.QueryKey(s.datasetID, "stats", idx, scheme.Scale)
	var res RowStatsResult
	if s.getQuery(key, &res) {
		return &res, nil
	}

	st := scale.StatsFor(idx)
	res = RowStatsResult{
		Row:        idx,
		Name:       s.matrix.RowName(idx),
		Scale:      scheme.Scale.String(),
		ValidCount: st.ValidCount,
	}
	if st.ValidCount > 0 {
		res.Min, res.Max, res.Mean = finite(st.Min), finite(st.Max), finite(st.Mean)
	}
	s.setQuery(key, res)
	return &res, nil
}

// Slots returns the bucket boundaries used to color a storage row.
func (s *HeatmapService) Slots(p RenderParams, row string) (*SlotsResult, error) {
	idx, err := s.rowIndex(row)
	if err != nil {
		return nil, err
	}
	scale, scheme, err := s.colorScale(p)
	if err != nil {
		return nil, err
	}

	t := scale.SlotsFor(idx)
	full := t.Full()
	res := &SlotsResult{
		Row:      idx,
		Name:     s.matrix.RowName(idx),
		Response: scheme.Response.String(),
		Slots:    make([]*float64, len(full)),
		Flat:     t.Flat,
		Colors:   make([]string, len(scheme.Palette)),
	}
	for i, v := range full {
		res.Slots[i] = finite(v)
	}
	for i, c := range scheme.Palette {
		res.Colors[i] = colormap.FormatColor(c)
	}
	return res, nil
}

func (s *HeatmapService) colorScale(p RenderParams) (*heatmap.ColorScale, heatmap.ColorScheme, error) {
	scheme, err := s.scheme(p)
	if err != nil {
		return nil, scheme, err
	}
	order := heatmap.DisplayOrder{Rows: p.RowOrder, Columns: p.ColumnOrder}
	scale, err := heatmap.NewColorScale(s.matrix, order, scheme)
	return scale, scheme, err
}

// rowIndex accepts a row name or a storage index.
func (s *HeatmapService) rowIndex(row string) (int, error) {
	if i := heatmap.RowIndex(s.matrix, row); i >= 0 {
		return i, nil
	}
	if i, err := strconv.Atoi(row); err == nil && i >= 0 && i < s.matrix.RowCount() {
		return i, nil
	}
	return -1, fmt.Errorf("%w: row %q", ErrNotFound, row)
}

// CellValue describes the cell under an image point.
type CellValue struct {
	Row    string   `json:"row"`
	Column string   `json:"column"`
	Value  *float64 `json:"value"`
	Text   string   `json:"text"`
}

// ValueAt returns the cell under image point (x, y) of the full snapshot.
func (s *HeatmapService) ValueAt(p RenderParams, x, y int) (*CellValue, error) {
	ss, err := s.open(p)
	if err != nil {
		return nil, err
	}
	defer ss.Close()

	by := y - ss.hm.Layout().HeaderHeight
	text, ok := ss.hm.ValueAt(x, by)
	if !ok {
		return nil, fmt.Errorf("%w: no cell at %d,%d", ErrNotFound, x, y)
	}
	row, col, _ := ss.hm.CellAt(x, by)
	order := heatmap.DisplayOrder{Rows: p.RowOrder, Columns: p.ColumnOrder}
	r, c := order.Row(row), order.Column(col)
	return &CellValue{
		Row:    s.matrix.RowName(r),
		Column: s.matrix.ColumnName(c),
		Value:  finite(s.matrix.Value(r, c)),
		Text:   text,
	}, nil
}

// ImageMap returns an HTML image map over the snapshot for p. Row labels
// link through the dataset's row URL template.
func (s *HeatmapService) ImageMap(p RenderParams, name string) (string, error) {
	ss, err := s.open(p)
	if err != nil {
		return "", err
	}
	defer ss.Close()

	if name == "" {
		name = s.datasetID
	}
	rowURL := s.rowURL
	if rowURL == "" {
		rowURL = heatmap.DefaultRowURL
	}
	var b strings.Builder
	if err := ss.hm.WriteImageMap(&b, name, rowURL); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DatasetMetadata describes a dataset.
type DatasetMetadata struct {
	ID              string   `json:"id"`
	Title           string   `json:"title,omitempty"`
	Rows            int      `json:"rows"`
	Columns         int      `json:"columns"`
	RowNames        []string `json:"row_names"`
	ColumnNames     []string `json:"column_names"`
	HasDescriptions bool     `json:"has_descriptions"`
	Palettes        []string `json:"palettes"`
	Formats         []string `json:"formats"`
}

// Metadata returns the dataset description.
func (s *HeatmapService) Metadata() *DatasetMetadata {
	m := s.matrix
	md := &DatasetMetadata{
		ID:          s.datasetID,
		Title:       s.title,
		Rows:        m.RowCount(),
		Columns:     m.ColumnCount(),
		RowNames:    make([]string, m.RowCount()),
		ColumnNames: make([]string, m.ColumnCount()),
		Palettes:    colormap.Names(),
	}
	for i := range md.RowNames {
		md.RowNames[i] = m.RowName(i)
		if m.RowDescription(i) != "" {
			md.HasDescriptions = true
		}
	}
	for j := range md.ColumnNames {
		md.ColumnNames[j] = m.ColumnName(j)
	}
	for _, f := range export.Formats {
		md.Formats = append(md.Formats, string(f))
	}
	return md
}

func (s *HeatmapService) getImage(key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.GetImage(key)
}

func (s *HeatmapService) setImage(key string, data []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetImage(key, data); err != nil {
		log.Printf("[HeatmapService] %s: image not cached: %v", s.datasetID, err)
	}
}

func (s *HeatmapService) getQuery(key string, dst interface{}) bool {
	if s.cache == nil {
		return false
	}
	data, ok := s.cache.GetQuery(key)
	return ok && json.Unmarshal(data, dst) == nil
}

func (s *HeatmapService) setQuery(key string, v interface{}) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		s.cache.SetQuery(key, data)
	}
}

// finite returns nil for NaN and infinities, which JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
