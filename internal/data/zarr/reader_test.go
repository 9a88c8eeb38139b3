package zarr

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/heatmapimage/server/internal/heatmap"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func testMatrix(t *testing.T) *heatmap.Dense {
	t.Helper()
	m, err := heatmap.NewDenseRows([][]float64{
		{1, 2, 3},
		{4, math.NaN(), 6},
		{7, 8, 9},
		{10, 11, 12},
		{13, 14, 15},
	}, []string{"g1", "g2", "g3", "g4", "g5"}, []string{"s1", "s2", "s3"})
	if err != nil {
		t.Fatalf("NewDenseRows: %v", err)
	}
	if err := m.SetRowDescriptions([]string{"first", "", "", "", "last"}); err != nil {
		t.Fatalf("SetRowDescriptions: %v", err)
	}
	return m
}

func assertSameMatrix(t *testing.T, want, got heatmap.Matrix) {
	t.Helper()
	if got.RowCount() != want.RowCount() || got.ColumnCount() != want.ColumnCount() {
		t.Fatalf("shape %dx%d, want %dx%d", got.RowCount(), got.ColumnCount(), want.RowCount(), want.ColumnCount())
	}
	for i := 0; i < want.RowCount(); i++ {
		if got.RowName(i) != want.RowName(i) || got.RowDescription(i) != want.RowDescription(i) {
			t.Fatalf("row %d labels = %q/%q", i, got.RowName(i), got.RowDescription(i))
		}
		for j := 0; j < want.ColumnCount(); j++ {
			w, g := want.Value(i, j), got.Value(i, j)
			if math.IsNaN(w) != math.IsNaN(g) || (!math.IsNaN(w) && w != g) {
				t.Fatalf("value (%d,%d) = %v, want %v", i, j, g, w)
			}
		}
	}
}

func TestWriteThenRead_ChunkedAndCompressed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "m.zarr")
	want := testMatrix(t)
	// 5x3 in 2x2 chunks leaves padded edge chunks on both axes.
	if err := Write(dir, want, WriteOptions{Title: "demo", ChunkRows: 2, ChunkCols: 2, Compress: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := NewReader(dir)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if rows, cols := r.Shape(); rows != 5 || cols != 3 {
		t.Fatalf("Shape = %dx%d", rows, cols)
	}
	if r.Attributes().Title != "demo" {
		t.Fatalf("title = %q", r.Attributes().Title)
	}
	got, err := r.ReadMatrix()
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}
	assertSameMatrix(t, want, got)

	again, _ := r.ReadMatrix()
	if again != got {
		t.Fatalf("ReadMatrix should return the cached matrix")
	}
}

func TestRead_MissingChunkUsesFill(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "m.zarr")
	if err := Write(dir, testMatrix(t), WriteOptions{ChunkRows: 2, ChunkCols: 3, DataType: "float64"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, ArrayName, "c", "1", "0")); err != nil {
		t.Fatalf("remove chunk: %v", err)
	}

	r, err := NewReader(dir)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	m, err := r.ReadMatrix()
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}
	for _, cell := range [][2]int{{2, 0}, {3, 2}} {
		if v := m.Value(cell[0], cell[1]); !math.IsNaN(v) {
			t.Fatalf("cell %v = %v, want NaN", cell, v)
		}
	}
	if v := m.Value(4, 2); v != 15 {
		t.Fatalf("cell (4,2) = %v", v)
	}
}

// writeRawStore lays out a store by hand, the way an external writer would:
// trimmed edge chunks, big-endian int32 and gzip.
func writeRawStore(t *testing.T, dir string) {
	t.Helper()
	mustWrite := func(rel string, data []byte) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("zarr.json", []byte(`{"zarr_format":3,"node_type":"group","attributes":{"heatmap":{"row_names":["a","b","c"],"column_names":["x","y"]}}}`))
	mustWrite("X/zarr.json", []byte(`{
		"zarr_format":3,"node_type":"array","shape":[3,2],"data_type":"int32",
		"chunk_grid":{"name":"regular","configuration":{"chunk_shape":[2,2]}},
		"chunk_key_encoding":{"name":"default","configuration":{"separator":"."}},
		"fill_value":0,
		"codecs":[{"name":"bytes","configuration":{"endian":"big"}},{"name":"gzip","configuration":{"level":5}}]}`))

	encode := func(vals ...int32) []byte {
		var raw bytes.Buffer
		for _, v := range vals {
			binary.Write(&raw, binary.BigEndian, v)
		}
		var out bytes.Buffer
		zw := gzip.NewWriter(&out)
		zw.Write(raw.Bytes())
		zw.Close()
		return out.Bytes()
	}
	mustWrite("X/c.0.0", encode(1, -2, 3, 4))
	mustWrite("X/c.1.0", encode(5, 6)) // trimmed edge chunk
}

func TestRead_ExternalLayout(t *testing.T) {
	dir := t.TempDir()
	writeRawStore(t, dir)

	r, err := NewReader(dir)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	m, err := r.ReadMatrix()
	if err != nil {
		t.Fatalf("ReadMatrix: %v", err)
	}
	want := []float64{1, -2, 3, 4, 5, 6}
	for i, w := range want {
		if v := m.Value(i/2, i%2); v != w {
			t.Fatalf("value %d = %v, want %v", i, v, w)
		}
	}
	if heatmap.RowIndex(m, "c") != 2 {
		t.Fatalf("row index lookup failed")
	}
}

func TestNewReader_RejectsBadStores(t *testing.T) {
	if _, err := NewReader(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty directory")
	}

	dir := t.TempDir()
	writeRawStore(t, dir)
	// Three row names but the array claims four rows.
	meta, _ := os.ReadFile(filepath.Join(dir, "X", "zarr.json"))
	meta = bytes.Replace(meta, []byte(`"shape":[3,2]`), []byte(`"shape":[4,2]`), 1)
	if err := os.WriteFile(filepath.Join(dir, "X", "zarr.json"), meta, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(dir); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestRead_CorruptChunk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "m.zarr")
	if err := Write(dir, testMatrix(t), WriteOptions{Compress: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	enc, _ := zstd.NewWriter(nil)
	defer enc.Close()
	short := enc.EncodeAll([]byte{1, 2, 3}, nil)
	if err := os.WriteFile(filepath.Join(dir, ArrayName, "c", "0", "0"), short, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(dir)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if _, err := r.ReadMatrix(); err == nil {
		t.Fatalf("expected error for short chunk")
	}
}
