package api

import (
	"github.com/heatmapimage/server/internal/service"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// DatasetRegistry holds heat map services for all configured datasets.
type DatasetRegistry struct {
	services       map[string]*service.HeatmapService
	titles         map[string]string
	defaultDataset string
	datasetOrder   []string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry(defaultDataset string, order []string) *DatasetRegistry {
	return &DatasetRegistry{
		services:       make(map[string]*service.HeatmapService),
		titles:         make(map[string]string),
		defaultDataset: defaultDataset,
		datasetOrder:   order,
	}
}

// Register adds a heat map service for a dataset. Datasets missing from the
// configured order are appended to it.
func (r *DatasetRegistry) Register(datasetID, title string, svc *service.HeatmapService) {
	if _, ok := r.services[datasetID]; !ok && !contains(r.datasetOrder, datasetID) {
		r.datasetOrder = append(r.datasetOrder, datasetID)
	}
	r.services[datasetID] = svc
	r.titles[datasetID] = title
	if r.defaultDataset == "" {
		r.defaultDataset = datasetID
	}
}

// Get returns the heat map service for a dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *service.HeatmapService {
	return r.services[datasetID]
}

// Default returns the default dataset's service.
func (r *DatasetRegistry) Default() *service.HeatmapService {
	return r.services[r.defaultDataset]
}

// DefaultDatasetID returns the default dataset ID.
func (r *DatasetRegistry) DefaultDatasetID() string {
	return r.defaultDataset
}

// DatasetIDs returns all dataset IDs in config order.
func (r *DatasetRegistry) DatasetIDs() []string {
	return r.datasetOrder
}

// Datasets returns dataset info for all registered datasets. Datasets that
// failed to load are skipped.
func (r *DatasetRegistry) Datasets() []DatasetInfo {
	infos := make([]DatasetInfo, 0, len(r.datasetOrder))
	for _, id := range r.datasetOrder {
		svc := r.services[id]
		if svc == nil {
			continue
		}
		name := r.titles[id]
		if name == "" {
			name = id
		}
		m := svc.Matrix()
		infos = append(infos, DatasetInfo{
			ID:      id,
			Name:    name,
			Rows:    m.RowCount(),
			Columns: m.ColumnCount(),
		})
	}
	return infos
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
