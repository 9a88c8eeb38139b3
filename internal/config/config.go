// Package config handles configuration loading for the heat map server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
	Jobs   JobsConfig   `yaml:"jobs"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DataConfig lists the datasets served, in file order. The first dataset is
// the default. A bare zarr_path is accepted as a single dataset named
// "default".
type DataConfig struct {
	Datasets       map[string]DatasetConfig
	DefaultDataset string

	order []string
}

// DatasetConfig describes one matrix store.
type DatasetConfig struct {
	ZarrPath string `yaml:"zarr_path"`
	Title    string `yaml:"title"`
	// RowURL links row labels in image maps; "<query>" is replaced by the
	// row name.
	RowURL      string              `yaml:"row_url"`
	Annotations []AnnotationsConfig `yaml:"annotations"`
}

// AnnotationsConfig colors a list of rows or columns.
type AnnotationsConfig struct {
	Axis  string   `yaml:"axis"` // "row" (default) or "column"
	Color string   `yaml:"color"`
	Names []string `yaml:"names"`
}

// UnmarshalYAML keeps dataset order and accepts the single-dataset form.
func (d *DataConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("data: expected a mapping, got %v", node.Tag)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "zarr_path" && node.Content[i+1].Kind == yaml.ScalarNode {
			var single DatasetConfig
			if err := node.Decode(&single); err != nil {
				return err
			}
			d.add("default", single)
			return nil
		}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var ds DatasetConfig
		if err := node.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("data.%s: %w", id, err)
		}
		d.add(id, ds)
	}
	return nil
}

func (d *DataConfig) add(id string, ds DatasetConfig) {
	if d.Datasets == nil {
		d.Datasets = make(map[string]DatasetConfig)
	}
	if _, dup := d.Datasets[id]; !dup {
		d.order = append(d.order, id)
	}
	d.Datasets[id] = ds
	if d.DefaultDataset == "" {
		d.DefaultDataset = id
	}
}

// DatasetIDs returns dataset IDs in configuration order.
func (d *DataConfig) DatasetIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ImageSizeMB     int `yaml:"image_size_mb"`
	ImageTTLMinutes int `yaml:"image_ttl_minutes"`
	Shards          int `yaml:"shards"`
	QueryCacheSize  int `yaml:"query_cache_size"`
}

// ImageTTL is the image cache lifetime.
func (c CacheConfig) ImageTTL() time.Duration {
	return time.Duration(c.ImageTTLMinutes) * time.Minute
}

// RenderConfig contains the defaults applied to render requests.
type RenderConfig struct {
	ElementWidth  int `yaml:"element_width"`
	ElementHeight int `yaml:"element_height"`
	// Palette names a registered colormap; PaletteFile, when set, wins.
	Palette     string `yaml:"palette"`
	PaletteFile string `yaml:"palette_file"`
	PaletteSize int    `yaml:"palette_size"`
	Response    string `yaml:"response"`
	Scale       string `yaml:"scale"`
	Grid        *bool  `yaml:"grid"`
	GridColor   string `yaml:"grid_color"`
	// MaxPixels caps width*height of any image. Requests beyond it fail.
	MaxPixels int64 `yaml:"max_pixels"`
	// AsyncPixels is the size above which the CLI and clients should use
	// render jobs instead of synchronous requests.
	AsyncPixels int64  `yaml:"async_pixels"`
	Format      string `yaml:"format"`
	FastPNG     bool   `yaml:"fast_png"`
}

// GridEnabled reports whether grid lines are drawn by default.
func (r RenderConfig) GridEnabled() bool {
	return r.Grid == nil || *r.Grid
}

// JobsConfig contains render job settings.
type JobsConfig struct {
	DBPath         string `yaml:"db_path"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	RetentionHours int    `yaml:"retention_hours"`
}

// Retention is how long finished jobs are kept.
func (j JobsConfig) Retention() time.Duration {
	return time.Duration(j.RetentionHours) * time.Hour
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Cache: CacheConfig{
			ImageSizeMB:     256,
			ImageTTLMinutes: 10,
			Shards:          64,
			QueryCacheSize:  1024,
		},
		Render: RenderConfig{
			ElementWidth:  10,
			ElementHeight: 10,
			Palette:       "default",
			PaletteSize:   12,
			Response:      "linear",
			Scale:         "row",
			GridColor:     "0:0:0",
			MaxPixels:     64 << 20,
			AsyncPixels:   4 << 20,
			Format:        "png",
		},
		Jobs: JobsConfig{
			DBPath:         "./data/jobs.db",
			Workers:        2,
			QueueSize:      100,
			RetentionHours: 24,
		},
	}
	cfg.Data.add("default", DatasetConfig{ZarrPath: "./data/heatmap.zarr"})
	return cfg
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data = defaults.Data
	}
	if cfg.Cache.ImageSizeMB == 0 {
		cfg.Cache.ImageSizeMB = defaults.Cache.ImageSizeMB
	}
	if cfg.Cache.ImageTTLMinutes == 0 {
		cfg.Cache.ImageTTLMinutes = defaults.Cache.ImageTTLMinutes
	}
	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = defaults.Cache.Shards
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Render.ElementWidth == 0 {
		cfg.Render.ElementWidth = defaults.Render.ElementWidth
	}
	if cfg.Render.ElementHeight == 0 {
		cfg.Render.ElementHeight = defaults.Render.ElementHeight
	}
	if cfg.Render.Palette == "" {
		cfg.Render.Palette = defaults.Render.Palette
	}
	if cfg.Render.PaletteSize == 0 {
		cfg.Render.PaletteSize = defaults.Render.PaletteSize
	}
	if cfg.Render.Response == "" {
		cfg.Render.Response = defaults.Render.Response
	}
	if cfg.Render.Scale == "" {
		cfg.Render.Scale = defaults.Render.Scale
	}
	if cfg.Render.GridColor == "" {
		cfg.Render.GridColor = defaults.Render.GridColor
	}
	if cfg.Render.MaxPixels == 0 {
		cfg.Render.MaxPixels = defaults.Render.MaxPixels
	}
	if cfg.Render.AsyncPixels == 0 {
		cfg.Render.AsyncPixels = defaults.Render.AsyncPixels
	}
	if cfg.Render.Format == "" {
		cfg.Render.Format = defaults.Render.Format
	}
	if cfg.Jobs.DBPath == "" {
		cfg.Jobs.DBPath = defaults.Jobs.DBPath
	}
	if cfg.Jobs.Workers == 0 {
		cfg.Jobs.Workers = defaults.Jobs.Workers
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = defaults.Jobs.QueueSize
	}
	if cfg.Jobs.RetentionHours == 0 {
		cfg.Jobs.RetentionHours = defaults.Jobs.RetentionHours
	}
}
