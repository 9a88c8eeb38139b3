package service

import (
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/heatmapimage/server/internal/cache"
	"github.com/heatmapimage/server/internal/config"
	"github.com/heatmapimage/server/internal/data/zarr"
	"github.com/heatmapimage/server/internal/render"
)

// OpenDataset loads the matrix store of a configured dataset and wraps it in
// a service. The matrix is read fully into memory.
func OpenDataset(id string, ds config.DatasetConfig, defaults RenderDefaults,
	cacheMgr *cache.Manager, raster *render.Rasterizer) (*HeatmapService, error) {
	reader, err := zarr.NewReader(ds.ZarrPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zarr store: %w", err)
	}
	defer reader.Close()

	m, err := reader.ReadMatrix()
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	ann, err := AnnotationsFromConfig(ds.Annotations)
	if err != nil {
		return nil, err
	}

	title := ds.Title
	if title == "" {
		title = reader.Attributes().Title
	}
	rows, cols := m.RowCount(), m.ColumnCount()
	log.Printf("[Dataset] %s: %s x %s matrix from %s (%s values)", id,
		humanize.Comma(int64(rows)), humanize.Comma(int64(cols)), ds.ZarrPath,
		reader.ArrayMeta().DataType)

	return NewHeatmapService(HeatmapServiceConfig{
		DatasetID:   id,
		Title:       title,
		RowURL:      ds.RowURL,
		Matrix:      m,
		Annotations: ann,
		Defaults:    defaults,
		Cache:       cacheMgr,
		Rasterizer:  raster,
	})
}
