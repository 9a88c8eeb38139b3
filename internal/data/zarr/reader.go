// Package zarr stores heat map matrices as Zarr v3 groups.
//
// A store is a group directory whose zarr.json carries the row and column
// labels under attributes["heatmap"], and a two-dimensional array "X" of
// shape [rows, columns] holding the values. Missing cells are NaN.
package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/heatmapimage/server/internal/heatmap"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ArrayName is the name of the value array inside a store.
const ArrayName = "X"

// attributesKey is the group attribute holding MatrixAttributes.
const attributesKey = "heatmap"

// MatrixAttributes are the labels stored alongside the value array.
type MatrixAttributes struct {
	Title           string   `json:"title,omitempty"`
	RowNames        []string `json:"row_names"`
	RowDescriptions []string `json:"row_descriptions,omitempty"`
	ColumnNames     []string `json:"column_names"`
}

// GroupMeta is a Zarr v3 group zarr.json.
type GroupMeta struct {
	ZarrFormat int                        `json:"zarr_format"`
	NodeType   string                     `json:"node_type"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
}

// Codec is one entry of an array's codec pipeline.
type Codec struct {
	Name          string                 `json:"name"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// ArrayMeta represents Zarr v3 array metadata (zarr.json).
type ArrayMeta struct {
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
	Shape      []int  `json:"shape"`
	DataType   string `json:"data_type"`
	ChunkGrid  struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator,omitempty"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue interface{} `json:"fill_value"`
	Codecs    []Codec     `json:"codecs"`
}

// Reader reads a matrix store. The decoded matrix is cached after the first
// ReadMatrix call.
type Reader struct {
	basePath string
	attrs    *MatrixAttributes
	meta     *ArrayMeta
	dtype    dtype
	order    binary.ByteOrder
	fill     float64

	mu      sync.Mutex
	decoder *zstd.Decoder
	matrix  *heatmap.Dense
}

// NewReader opens the store at basePath and validates its metadata.
func NewReader(basePath string) (*Reader, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	r := &Reader{basePath: basePath, decoder: decoder}
	if err := r.loadMetadata(); err != nil {
		decoder.Close()
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return r, nil
}

func (r *Reader) loadMetadata() error {
	data, err := os.ReadFile(filepath.Join(r.basePath, "zarr.json"))
	if err != nil {
		return fmt.Errorf("failed to read group zarr.json: %w", err)
	}
	var group GroupMeta
	if err := json.Unmarshal(data, &group); err != nil {
		return fmt.Errorf("failed to parse group zarr.json: %w", err)
	}
	if group.NodeType != "group" {
		return fmt.Errorf("%s is a %q node, want group", r.basePath, group.NodeType)
	}
	raw, ok := group.Attributes[attributesKey]
	if !ok {
		return fmt.Errorf("group has no %q attributes", attributesKey)
	}
	var attrs MatrixAttributes
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return fmt.Errorf("failed to parse %q attributes: %w", attributesKey, err)
	}

	meta, err := loadArrayMeta(filepath.Join(r.basePath, ArrayName))
	if err != nil {
		return fmt.Errorf("failed to load %s metadata: %w", ArrayName, err)
	}
	if len(meta.Shape) != 2 || len(meta.ChunkGrid.Configuration.ChunkShape) != 2 {
		return fmt.Errorf("unexpected %s shape %v / chunk shape %v", ArrayName, meta.Shape, meta.ChunkGrid.Configuration.ChunkShape)
	}
	for d, c := range meta.ChunkGrid.Configuration.ChunkShape {
		if c <= 0 {
			return fmt.Errorf("invalid chunk shape at dim %d: %d", d, c)
		}
	}
	if meta.Shape[0] != len(attrs.RowNames) || meta.Shape[1] != len(attrs.ColumnNames) {
		return fmt.Errorf("shape %v does not match %d row names and %d column names",
			meta.Shape, len(attrs.RowNames), len(attrs.ColumnNames))
	}
	if attrs.RowDescriptions != nil && len(attrs.RowDescriptions) != len(attrs.RowNames) {
		return fmt.Errorf("%d row descriptions for %d rows", len(attrs.RowDescriptions), len(attrs.RowNames))
	}

	dt, err := lookupDType(meta.DataType)
	if err != nil {
		return err
	}
	order, err := byteOrder(meta.Codecs)
	if err != nil {
		return err
	}
	fill, err := fillValue(meta.FillValue)
	if err != nil {
		return err
	}

	r.attrs, r.meta, r.dtype, r.order, r.fill = &attrs, meta, dt, order, fill
	return nil
}

// Attributes returns the stored labels.
func (r *Reader) Attributes() *MatrixAttributes {
	return r.attrs
}

// Shape returns the matrix dimensions without reading any chunk.
func (r *Reader) Shape() (rows, cols int) {
	return r.meta.Shape[0], r.meta.Shape[1]
}

// ArrayMeta returns the value array metadata.
func (r *Reader) ArrayMeta() *ArrayMeta {
	return r.meta
}

// ReadMatrix decodes every chunk into a dense matrix.
func (r *Reader) ReadMatrix() (*heatmap.Dense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.matrix != nil {
		return r.matrix, nil
	}

	rows, cols := r.Shape()
	chunkRows := r.meta.ChunkGrid.Configuration.ChunkShape[0]
	chunkCols := r.meta.ChunkGrid.Configuration.ChunkShape[1]
	values := make([]float64, rows*cols)

	arrayPath := filepath.Join(r.basePath, ArrayName)
	for rc := 0; rc < ceilDiv(rows, chunkRows); rc++ {
		rowStart := rc * chunkRows
		rowLen := min(chunkRows, rows-rowStart)
		for cc := 0; cc < ceilDiv(cols, chunkCols); cc++ {
			colStart := cc * chunkCols
			colLen := min(chunkCols, cols-colStart)

			data, err := r.readChunkAt(arrayPath, []int{rc, cc})
			if err != nil {
				return nil, fmt.Errorf("failed to load %s chunk %d/%d: %w", ArrayName, rc, cc, err)
			}
			if data == nil {
				for i := 0; i < rowLen; i++ {
					for j := 0; j < colLen; j++ {
						values[(rowStart+i)*cols+colStart+j] = r.fill
					}
				}
				continue
			}

			// Edge chunks are normally padded to the full chunk shape; some
			// writers store them trimmed.
			size := r.dtype.size
			stride := chunkCols
			switch len(data) {
			case chunkRows * chunkCols * size:
			case rowLen * colLen * size:
				stride = colLen
			default:
				return nil, fmt.Errorf("%s chunk %d/%d has %d bytes, want %d", ArrayName, rc, cc,
					len(data), chunkRows*chunkCols*size)
			}
			for i := 0; i < rowLen; i++ {
				for j := 0; j < colLen; j++ {
					off := (i*stride + j) * size
					values[(rowStart+i)*cols+colStart+j] = r.dtype.decode(r.order, data[off:off+size])
				}
			}
		}
	}

	m, err := heatmap.NewDense(rows, cols, values, r.attrs.RowNames, r.attrs.ColumnNames)
	if err != nil {
		return nil, err
	}
	if r.attrs.RowDescriptions != nil {
		if err := m.SetRowDescriptions(r.attrs.RowDescriptions); err != nil {
			return nil, err
		}
	}
	r.matrix = m
	return m, nil
}

// Close releases resources.
func (r *Reader) Close() {
	if r.decoder != nil {
		r.decoder.Close()
	}
}

func loadArrayMeta(arrayPath string) (*ArrayMeta, error) {
	data, err := os.ReadFile(filepath.Join(arrayPath, "zarr.json"))
	if err != nil {
		return nil, err
	}
	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.NodeType != "" && meta.NodeType != "array" {
		return nil, fmt.Errorf("node type %q, want array", meta.NodeType)
	}
	return &meta, nil
}

func (r *Reader) encodeChunkKey(chunkIndices []int) string {
	sep := r.meta.ChunkKeyEncoding.Configuration.Separator
	if sep == "" {
		sep = "/"
	}
	parts := make([]string, len(chunkIndices))
	for i, idx := range chunkIndices {
		parts[i] = strconv.Itoa(idx)
	}
	key := strings.Join(parts, sep)
	if r.meta.ChunkKeyEncoding.Name == "v2" {
		return key
	}
	return "c" + sep + key
}

// readChunkAt returns the decoded bytes of a chunk, or nil when the chunk
// was never written and holds only the fill value.
func (r *Reader) readChunkAt(arrayPath string, chunkIndices []int) ([]byte, error) {
	key := r.encodeChunkKey(chunkIndices)
	raw, err := os.ReadFile(filepath.Join(arrayPath, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.decodeChunk(raw)
}

// decodeChunk undoes the bytes-to-bytes codecs in reverse order.
func (r *Reader) decodeChunk(raw []byte) ([]byte, error) {
	data := raw
	for i := len(r.meta.Codecs) - 1; i >= 0; i-- {
		switch c := r.meta.Codecs[i]; c.Name {
		case "bytes":
		case "zstd":
			out, err := r.decoder.DecodeAll(data, nil)
			if err != nil {
				return nil, fmt.Errorf("zstd decompress failed: %w", err)
			}
			data = out
		case "gzip":
			zr, err := gzip.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("gzip decompress failed: %w", err)
			}
			out, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("gzip decompress failed: %w", err)
			}
			data = out
		default:
			return nil, fmt.Errorf("unsupported codec %q", c.Name)
		}
	}
	return data, nil
}

func byteOrder(codecs []Codec) (binary.ByteOrder, error) {
	for _, c := range codecs {
		if c.Name != "bytes" {
			continue
		}
		switch c.Configuration["endian"] {
		case nil, "little":
			return binary.LittleEndian, nil
		case "big":
			return binary.BigEndian, nil
		default:
			return nil, fmt.Errorf("unsupported endian %v", c.Configuration["endian"])
		}
	}
	return binary.LittleEndian, nil
}

// fillValue parses a Zarr v3 fill value. Null means missing.
func fillValue(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case string:
		switch t {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("unsupported fill_value %v", v)
}

type dtype struct {
	name   string
	size   int
	decode func(binary.ByteOrder, []byte) float64
	encode func(binary.ByteOrder, []byte, float64)
}

var dtypes = map[string]dtype{
	"float32": {
		name: "float32", size: 4,
		decode: func(o binary.ByteOrder, b []byte) float64 { return float64(math.Float32frombits(o.Uint32(b))) },
		encode: func(o binary.ByteOrder, b []byte, v float64) { o.PutUint32(b, math.Float32bits(float32(v))) },
	},
	"float64": {
		name: "float64", size: 8,
		decode: func(o binary.ByteOrder, b []byte) float64 { return math.Float64frombits(o.Uint64(b)) },
		encode: func(o binary.ByteOrder, b []byte, v float64) { o.PutUint64(b, math.Float64bits(v)) },
	},
	"int32": {
		name: "int32", size: 4,
		decode: func(o binary.ByteOrder, b []byte) float64 { return float64(int32(o.Uint32(b))) },
	},
	"uint32": {
		name: "uint32", size: 4,
		decode: func(o binary.ByteOrder, b []byte) float64 { return float64(o.Uint32(b)) },
	},
	"int16": {
		name: "int16", size: 2,
		decode: func(o binary.ByteOrder, b []byte) float64 { return float64(int16(o.Uint16(b))) },
	},
	"uint16": {
		name: "uint16", size: 2,
		decode: func(o binary.ByteOrder, b []byte) float64 { return float64(o.Uint16(b)) },
	},
	"uint8": {
		name: "uint8", size: 1,
		decode: func(_ binary.ByteOrder, b []byte) float64 { return float64(b[0]) },
	},
}

func lookupDType(name string) (dtype, error) {
	dt, ok := dtypes[name]
	if !ok {
		return dtype{}, fmt.Errorf("unsupported zarr data_type: %s", name)
	}
	return dt, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
