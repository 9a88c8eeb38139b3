package service

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/heatmapimage/server/internal/heatmap"
)

// MatrixJSON is the wire form of an inline matrix. Null values are missing
// measurements.
type MatrixJSON struct {
	Title           string       `json:"title,omitempty"`
	RowNames        []string     `json:"row_names"`
	RowDescriptions []string     `json:"row_descriptions,omitempty"`
	ColumnNames     []string     `json:"column_names"`
	Values          [][]*float64 `json:"values"`
}

// DecodeMatrix reads a MatrixJSON document.
func DecodeMatrix(r io.Reader) (*MatrixJSON, error) {
	var m MatrixJSON
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: matrix: %v", heatmap.ErrInvalidConfig, err)
	}
	return &m, nil
}

// Dense converts the document to a matrix, checking its shape.
func (m *MatrixJSON) Dense() (*heatmap.Dense, error) {
	rows, cols := len(m.RowNames), len(m.ColumnNames)
	if len(m.Values) != rows {
		return nil, fmt.Errorf("%w: %d value rows for %d row names", heatmap.ErrShape, len(m.Values), rows)
	}
	values := make([]float64, 0, rows*cols)
	for i, row := range m.Values {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", heatmap.ErrShape, i, len(row), cols)
		}
		for _, v := range row {
			if v == nil {
				values = append(values, math.NaN())
			} else {
				values = append(values, *v)
			}
		}
	}
	d, err := heatmap.NewDense(rows, cols, values, m.RowNames, m.ColumnNames)
	if err != nil {
		return nil, err
	}
	if m.RowDescriptions != nil {
		if err := d.SetRowDescriptions(m.RowDescriptions); err != nil {
			return nil, err
		}
	}
	return d, nil
}
