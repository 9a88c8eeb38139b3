// Package heatmap turns a numeric matrix into discrete color buckets and
// computes the pixel geometry used to draw it as a heat map.
package heatmap

import (
	"fmt"
	"math"
)

// Matrix is the read-only table a heat map is drawn from. Values may be NaN
// to mark missing measurements.
type Matrix interface {
	RowCount() int
	ColumnCount() int
	Value(row, column int) float64
	RowName(row int) string
	// RowDescription returns "" when the row has no description.
	RowDescription(row int) string
	ColumnName(column int) string
}

// Dense is a row-major Matrix held in memory.
type Dense struct {
	rows     int
	cols     int
	values   []float64
	rowNames []string
	rowDescs []string
	colNames []string

	rowIndex map[string]int
	colIndex map[string]int
}

// NewDense builds a Dense matrix. values is row-major and must hold rows*cols
// entries; name slices must match the dimensions.
func NewDense(rows, cols int, values []float64, rowNames, colNames []string) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(values), rows, cols)
	}
	if len(rowNames) != rows || len(colNames) != cols {
		return nil, fmt.Errorf("%w: %d row names, %d column names for %dx%d",
			ErrShape, len(rowNames), len(colNames), rows, cols)
	}

	d := &Dense{
		rows:     rows,
		cols:     cols,
		values:   values,
		rowNames: rowNames,
		rowDescs: make([]string, rows),
		colNames: colNames,
		rowIndex: make(map[string]int, rows),
		colIndex: make(map[string]int, cols),
	}
	for i, name := range rowNames {
		if _, dup := d.rowIndex[name]; !dup {
			d.rowIndex[name] = i
		}
	}
	for j, name := range colNames {
		if _, dup := d.colIndex[name]; !dup {
			d.colIndex[name] = j
		}
	}
	return d, nil
}

// NewDenseRows builds a Dense matrix from one slice per row.
func NewDenseRows(data [][]float64, rowNames, colNames []string) (*Dense, error) {
	rows := len(data)
	cols := len(colNames)
	values := make([]float64, 0, rows*cols)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), cols)
		}
		values = append(values, row...)
	}
	return NewDense(rows, cols, values, rowNames, colNames)
}

// SetRowDescriptions attaches one description per row.
func (d *Dense) SetRowDescriptions(descs []string) error {
	if len(descs) != d.rows {
		return fmt.Errorf("%w: %d descriptions for %d rows", ErrShape, len(descs), d.rows)
	}
	copy(d.rowDescs, descs)
	return nil
}

func (d *Dense) RowCount() int    { return d.rows }
func (d *Dense) ColumnCount() int { return d.cols }

func (d *Dense) Value(row, column int) float64 {
	if row < 0 || row >= d.rows || column < 0 || column >= d.cols {
		return math.NaN()
	}
	return d.values[row*d.cols+column]
}

func (d *Dense) RowName(row int) string        { return d.rowNames[row] }
func (d *Dense) RowDescription(row int) string { return d.rowDescs[row] }
func (d *Dense) ColumnName(column int) string  { return d.colNames[column] }

// RowIndex returns the first row with the given name, or -1.
func (d *Dense) RowIndex(name string) int {
	if i, ok := d.rowIndex[name]; ok {
		return i
	}
	return -1
}

// ColumnIndex returns the first column with the given name, or -1.
func (d *Dense) ColumnIndex(name string) int {
	if j, ok := d.colIndex[name]; ok {
		return j
	}
	return -1
}

// RowIndex looks a row up by name on any Matrix, using the Dense index when available.
func RowIndex(m Matrix, name string) int {
	if d, ok := m.(*Dense); ok {
		return d.RowIndex(name)
	}
	for i := 0; i < m.RowCount(); i++ {
		if m.RowName(i) == name {
			return i
		}
	}
	return -1
}

// ColumnIndex looks a column up by name on any Matrix.
func ColumnIndex(m Matrix, name string) int {
	if d, ok := m.(*Dense); ok {
		return d.ColumnIndex(name)
	}
	for j := 0; j < m.ColumnCount(); j++ {
		if m.ColumnName(j) == name {
			return j
		}
	}
	return -1
}

// DisplayOrder maps display positions to matrix storage indices.
type DisplayOrder struct {
	Rows    []int
	Columns []int
}

// IdentityOrder returns the order that displays rows and columns as stored.
func IdentityOrder(rows, cols int) DisplayOrder {
	return DisplayOrder{Rows: identity(rows), Columns: identity(cols)}
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// Validate checks that o is a permutation matching m's shape. A nil slice
// means identity for that axis.
func (o DisplayOrder) Validate(m Matrix) error {
	if err := checkPermutation(o.Rows, m.RowCount()); err != nil {
		return fmt.Errorf("%w: rows: %v", ErrDisplayOrder, err)
	}
	if err := checkPermutation(o.Columns, m.ColumnCount()); err != nil {
		return fmt.Errorf("%w: columns: %v", ErrDisplayOrder, err)
	}
	return nil
}

func checkPermutation(order []int, n int) error {
	if order == nil {
		return nil
	}
	if len(order) != n {
		return fmt.Errorf("length %d, want %d", len(order), n)
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n {
			return fmt.Errorf("index %d out of range", idx)
		}
		if seen[idx] {
			return fmt.Errorf("index %d repeated", idx)
		}
		seen[idx] = true
	}
	return nil
}

// Row returns the storage row for display row i.
func (o DisplayOrder) Row(i int) int {
	if o.Rows == nil {
		return i
	}
	return o.Rows[i]
}

// Column returns the storage column for display column j.
func (o DisplayOrder) Column(j int) int {
	if o.Columns == nil {
		return j
	}
	return o.Columns[j]
}
