package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/heatmapimage/server/internal/heatmap"
	"github.com/klauspost/compress/zstd"
)

// WriteOptions control how Write lays out the value array.
type WriteOptions struct {
	Title string
	// DataType is "float32" (default) or "float64".
	DataType string
	// ChunkRows and ChunkCols default to 256.
	ChunkRows int
	ChunkCols int
	// Compress enables the zstd codec.
	Compress bool
}

// Write stores m as a new matrix store at path. Existing chunk files are
// overwritten.
func Write(path string, m heatmap.Matrix, opts WriteOptions) error {
	if opts.DataType == "" {
		opts.DataType = "float32"
	}
	dt, err := lookupDType(opts.DataType)
	if err != nil || dt.encode == nil {
		return fmt.Errorf("unsupported write data_type: %s", opts.DataType)
	}
	rows, cols := m.RowCount(), m.ColumnCount()
	chunkRows := max(1, min(defaultInt(opts.ChunkRows, 256), rows))
	chunkCols := max(1, min(defaultInt(opts.ChunkCols, 256), cols))

	attrs := MatrixAttributes{
		Title:       opts.Title,
		RowNames:    make([]string, rows),
		ColumnNames: make([]string, cols),
	}
	descs := make([]string, rows)
	hasDescs := false
	for i := 0; i < rows; i++ {
		attrs.RowNames[i] = m.RowName(i)
		descs[i] = m.RowDescription(i)
		hasDescs = hasDescs || descs[i] != ""
	}
	if hasDescs {
		attrs.RowDescriptions = descs
	}
	for j := 0; j < cols; j++ {
		attrs.ColumnNames[j] = m.ColumnName(j)
	}

	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	group := GroupMeta{
		ZarrFormat: 3,
		NodeType:   "group",
		Attributes: map[string]json.RawMessage{attributesKey: rawAttrs},
	}

	meta := ArrayMeta{
		ZarrFormat: 3,
		NodeType:   "array",
		Shape:      []int{rows, cols},
		DataType:   dt.name,
		FillValue:  "NaN",
		Codecs:     []Codec{{Name: "bytes", Configuration: map[string]interface{}{"endian": "little"}}},
	}
	meta.ChunkGrid.Name = "regular"
	meta.ChunkGrid.Configuration.ChunkShape = []int{chunkRows, chunkCols}
	meta.ChunkKeyEncoding.Name = "default"
	meta.ChunkKeyEncoding.Configuration.Separator = "/"

	var enc *zstd.Encoder
	if opts.Compress {
		meta.Codecs = append(meta.Codecs, Codec{Name: "zstd", Configuration: map[string]interface{}{"level": 3, "checksum": false}})
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		defer enc.Close()
	}

	arrayPath := filepath.Join(path, ArrayName)
	if err := os.MkdirAll(arrayPath, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(path, "zarr.json"), group); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(arrayPath, "zarr.json"), meta); err != nil {
		return err
	}

	buf := make([]byte, chunkRows*chunkCols*dt.size)
	for rc := 0; rc < ceilDiv(rows, chunkRows); rc++ {
		for cc := 0; cc < ceilDiv(cols, chunkCols); cc++ {
			for i := 0; i < chunkRows; i++ {
				for j := 0; j < chunkCols; j++ {
					row, col := rc*chunkRows+i, cc*chunkCols+j
					v := math.NaN()
					if row < rows && col < cols {
						v = m.Value(row, col)
					}
					off := (i*chunkCols + j) * dt.size
					dt.encode(binary.LittleEndian, buf[off:off+dt.size], v)
				}
			}

			data := buf
			if enc != nil {
				data = enc.EncodeAll(buf, nil)
			}
			dir := filepath.Join(arrayPath, "c", strconv.Itoa(rc))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(cc)), data, 0o644); err != nil {
				return fmt.Errorf("failed to write chunk %d/%d: %w", rc, cc, err)
			}
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
