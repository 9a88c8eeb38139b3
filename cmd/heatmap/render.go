package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/heatmapimage/server/internal/config"
	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/render"
	"github.com/heatmapimage/server/internal/service"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	columnSize   int
	rowSize      int
	scale        string
	grid         bool
	gridColor    string
	descriptions bool
	names        bool
	featureFile  string
	featureColor string
	paletteFile  string
	format       string
	response     string
	maxPixels    int64
}

func newRenderCmd() *cobra.Command {
	opts := renderOptions{}
	cmd := &cobra.Command{
		Use:   "render <store> <output>",
		Short: "Render a matrix store (or JSON matrix) to an image",
		Long: `Render draws the matrix at <store> and writes it to <output>.

<store> is a matrix store directory or a .json matrix file. The output format
is taken from --format, then from the extension of <output>, and defaults to
png. The matching extension is appended to <output> when missing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.columnSize, "column-size", "c", 10, "Cell width in pixels")
	f.IntVarP(&opts.rowSize, "row-size", "r", 10, "Cell height in pixels")
	f.StringVarP(&opts.scale, "normalization", "n", "row normalized", "Color scale: 'row normalized' or 'global'")
	f.BoolVarP(&opts.grid, "grid", "g", true, "Draw grid lines")
	f.StringVarP(&opts.gridColor, "grid-color", "l", "0:0:0", "Grid color (r:g:b, #rrggbb or name)")
	f.BoolVarP(&opts.descriptions, "descriptions", "a", true, "Show row descriptions")
	f.BoolVarP(&opts.names, "names", "s", true, "Show row names")
	f.StringVarP(&opts.featureFile, "features", "f", "", "File of row names to mark, one per line")
	f.StringVarP(&opts.featureColor, "feature-color", "h", "red", "Color of marked rows")
	f.StringVarP(&opts.paletteFile, "palette", "m", "", "Palette file of r:g:b lines")
	f.StringVar(&opts.format, "format", "", "Output format (png, jpeg, tiff, bmp)")
	f.StringVar(&opts.response, "response", "linear", "Color response: linear or log")
	f.Int64Var(&opts.maxPixels, "max-pixels", config.DefaultConfig().Render.MaxPixels, "Refuse images larger than this many pixels")
	return cmd
}

func runRender(ctx context.Context, out io.Writer, input, output string, opts renderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := outputFormat(opts.format, output)
	if err != nil {
		return err
	}
	grid := opts.grid
	defaults, err := service.RenderDefaultsFromConfig(config.RenderConfig{
		ElementWidth:  opts.columnSize,
		ElementHeight: opts.rowSize,
		PaletteFile:   opts.paletteFile,
		Response:      opts.response,
		Scale:         opts.scale,
		Grid:          &grid,
		GridColor:     opts.gridColor,
		Format:        string(format),
	})
	if err != nil {
		return err
	}

	ds := config.DatasetConfig{ZarrPath: input}
	if opts.featureFile != "" {
		names, err := readNames(opts.featureFile)
		if err != nil {
			return err
		}
		ds.Annotations = []config.AnnotationsConfig{{Axis: "row", Color: opts.featureColor, Names: names}}
	}

	raster := render.NewRasterizer(render.Config{MaxPixels: opts.maxPixels})
	svc, err := openInput(input, ds, defaults, raster)
	if err != nil {
		return err
	}

	names, descriptions := opts.names, opts.descriptions
	data, _, err := svc.Render(ctx, service.RenderParams{
		RowNames:        &names,
		RowDescriptions: &descriptions,
	})
	if err != nil {
		return err
	}

	path := export.EnsureExtension(output, format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	fmt.Fprintf(out, "wrote %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
	return nil
}

// outputFormat prefers the explicit flag, then the output extension.
func outputFormat(flag, output string) (export.Format, error) {
	if flag != "" {
		return export.ParseFormat(flag)
	}
	if ext := filepath.Ext(output); ext != "" {
		if f, err := export.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return export.PNG, nil
}

func openInput(input string, ds config.DatasetConfig, defaults service.RenderDefaults,
	raster *render.Rasterizer) (*service.HeatmapService, error) {
	id := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if !strings.EqualFold(filepath.Ext(input), ".json") {
		return service.OpenDataset(id, ds, defaults, nil, raster)
	}

	mj, err := readMatrixJSON(input)
	if err != nil {
		return nil, err
	}
	m, err := mj.Dense()
	if err != nil {
		return nil, err
	}
	ann, err := service.AnnotationsFromConfig(ds.Annotations)
	if err != nil {
		return nil, err
	}
	return service.NewHeatmapService(service.HeatmapServiceConfig{
		DatasetID:   id,
		Title:       mj.Title,
		Matrix:      m,
		Annotations: ann,
		Defaults:    defaults,
		Rasterizer:  raster,
	})
}

func readMatrixJSON(path string) (*service.MatrixJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return service.DecodeMatrix(f)
}

// readNames reads one name per line, skipping blank lines and '#' comments.
func readNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature file: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feature file: %w", err)
	}
	return names, nil
}
