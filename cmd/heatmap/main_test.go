package main

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/heatmap"
)

const testMatrix = `{
  "title": "demo",
  "row_names": ["TP53", "MYC", "EGFR"],
  "row_descriptions": ["tumor protein", "myc proto-oncogene", "egf receptor"],
  "column_names": ["s1", "s2", "s3", "s4"],
  "values": [[1, 2, 3, 4], [4, null, 2, 1], [0.5, 0.5, 0.5, 0.5]]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func defaultRenderOptions() renderOptions {
	return renderOptions{
		columnSize:   10,
		rowSize:      10,
		scale:        "row normalized",
		grid:         true,
		gridColor:    "0:0:0",
		descriptions: true,
		names:        true,
		featureColor: "red",
		response:     "linear",
	}
}

func TestConvertThenRender(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "demo.json", testMatrix)
	store := filepath.Join(dir, "demo.zarr")

	var out bytes.Buffer
	if err := runConvert(&out, input, store, convertOptions{dataType: "float32", chunkRows: 2, chunkCols: 2, compress: true}); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	if !strings.Contains(out.String(), "3 rows x 4 columns") {
		t.Fatalf("unexpected convert output %q", out.String())
	}

	opts := defaultRenderOptions()
	opts.featureFile = writeFile(t, dir, "genes.grp", "# marked\nMYC\n\nEGFR\n")
	out.Reset()
	if err := runRender(context.Background(), &out, store, filepath.Join(dir, "out"), opts); err != nil {
		t.Fatalf("runRender: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "out.png"))
	if err != nil {
		t.Fatalf("expected out.png: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() < 4*10 || img.Bounds().Dy() < 3*10 {
		t.Fatalf("image too small: %v", img.Bounds())
	}
}

func TestRenderJSONInputAsJPEG(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "demo.json", testMatrix)

	opts := defaultRenderOptions()
	opts.scale = "global"
	opts.grid = false
	var out bytes.Buffer
	if err := runRender(context.Background(), &out, input, filepath.Join(dir, "demo.jpg"), opts); err != nil {
		t.Fatalf("runRender: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "demo.jpg"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "demo.json", testMatrix)

	tests := []struct {
		name   string
		modify func(*renderOptions)
	}{
		{"eps", func(o *renderOptions) { o.format = "eps" }},
		{"bad scale", func(o *renderOptions) { o.scale = "column" }},
		{"bad grid color", func(o *renderOptions) { o.gridColor = "300:0:0" }},
		{"missing palette", func(o *renderOptions) { o.paletteFile = filepath.Join(dir, "none.txt") }},
		{"too large", func(o *renderOptions) { o.maxPixels = 10 }},
		{"huge cells without budget", func(o *renderOptions) { o.columnSize = 1 << 40 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultRenderOptions()
			tt.modify(&opts)
			var out bytes.Buffer
			err := runRender(context.Background(), &out, input, filepath.Join(dir, "x"), opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if strings.HasPrefix(tt.name, "huge") && !errors.Is(err, heatmap.ErrImageTooLarge) {
				t.Fatalf("expected ErrImageTooLarge, got %v", err)
			}
		})
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		flag, output string
		want         export.Format
	}{
		{"", "out", export.PNG},
		{"", "out.tif", export.TIFF},
		{"", "out.dat", export.PNG},
		{"bmp", "out.png", export.BMP},
	}
	for _, tt := range tests {
		got, err := outputFormat(tt.flag, tt.output)
		if err != nil {
			t.Fatalf("outputFormat(%q, %q): %v", tt.flag, tt.output, err)
		}
		if got != tt.want {
			t.Errorf("outputFormat(%q, %q) = %s, want %s", tt.flag, tt.output, got, tt.want)
		}
	}
}

func TestReadNames(t *testing.T) {
	path := writeFile(t, t.TempDir(), "list.grp", "#name=set\n  TP53 \n\n# comment\nMYC\n")
	names, err := readNames(path)
	if err != nil {
		t.Fatalf("readNames: %v", err)
	}
	if want := []string{"TP53", "MYC"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestRootCommandWiring(t *testing.T) {
	for _, name := range []string{"render", "convert"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("missing %s command: %v", name, err)
		}
	}
	render, _, _ := rootCmd.Find([]string{"render"})
	if f := render.Flags().ShorthandLookup("h"); f == nil || f.Name != "feature-color" {
		t.Fatalf("-h should set the feature color, got %+v", f)
	}
	if got := render.Flags().Lookup("max-pixels").DefValue; got != "67108864" {
		t.Fatalf("max-pixels default = %s, want a bounded budget", got)
	}
}
