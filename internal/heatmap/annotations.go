package heatmap

import (
	"fmt"
	"image/color"
	"sort"
	"sync"
)

// FeatureList assigns one color to a set of row or column names.
type FeatureList struct {
	Names []string
	Color color.RGBA
}

// NewFeatureLists pairs name lists with colors. Lengths must match.
func NewFeatureLists(names [][]string, colors []color.RGBA) ([]FeatureList, error) {
	if len(names) != len(colors) {
		return nil, fmt.Errorf("%w: %d lists, %d colors", ErrColorListMismatch, len(names), len(colors))
	}
	out := make([]FeatureList, len(names))
	for i := range names {
		out[i] = FeatureList{Names: names[i], Color: colors[i]}
	}
	return out, nil
}

// AnnotationChange describes an update published by Annotations.
type AnnotationChange struct {
	Axis string // "row" or "column"
	Name string
}

// Annotations is the color table for row swatches and the column bar, keyed
// by feature name. One table is handed to both layout and rendering; it is
// safe for concurrent use.
type Annotations struct {
	mu      sync.RWMutex
	rows    map[string]color.RGBA
	columns map[string]color.RGBA

	changes Notifier[AnnotationChange]
}

// NewAnnotations returns an empty table.
func NewAnnotations() *Annotations {
	return &Annotations{
		rows:    make(map[string]color.RGBA),
		columns: make(map[string]color.RGBA),
	}
}

// SetRowColor colors the swatch beside the named row.
func (a *Annotations) SetRowColor(name string, c color.RGBA) {
	a.mu.Lock()
	a.rows[name] = c
	a.mu.Unlock()
	a.changes.Notify(AnnotationChange{Axis: "row", Name: name})
}

// SetColumnColor colors the bar above the named column.
func (a *Annotations) SetColumnColor(name string, c color.RGBA) {
	a.mu.Lock()
	a.columns[name] = c
	a.mu.Unlock()
	a.changes.Notify(AnnotationChange{Axis: "column", Name: name})
}

// AddRowLists applies feature lists in order; later lists win on overlap.
func (a *Annotations) AddRowLists(lists []FeatureList) {
	for _, l := range lists {
		for _, name := range l.Names {
			a.SetRowColor(name, l.Color)
		}
	}
}

// AddColumnLists applies sample lists in order; later lists win on overlap.
func (a *Annotations) AddColumnLists(lists []FeatureList) {
	for _, l := range lists {
		for _, name := range l.Names {
			a.SetColumnColor(name, l.Color)
		}
	}
}

// Subscribe registers fn for every later change.
func (a *Annotations) Subscribe(fn func(AnnotationChange)) func() {
	return a.changes.Subscribe(fn)
}

// HasRows reports whether any row carries a color.
func (a *Annotations) HasRows() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rows) > 0
}

// HasColumns reports whether any column carries a color.
func (a *Annotations) HasColumns() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.columns) > 0
}

// ResolvedAnnotations holds colors per storage index; entries without a
// color have ok=false.
type ResolvedAnnotations struct {
	Rows    []OptionalColor
	Columns []OptionalColor
	// Unknown lists names that matched no row or column.
	Unknown []string
}

// OptionalColor is a color that may be absent.
type OptionalColor struct {
	Color color.RGBA
	OK    bool
}

// Resolve maps the table onto m's storage indices.
func (a *Annotations) Resolve(m Matrix) ResolvedAnnotations {
	res := ResolvedAnnotations{
		Rows:    make([]OptionalColor, m.RowCount()),
		Columns: make([]OptionalColor, m.ColumnCount()),
	}
	if a == nil {
		return res
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	for name, c := range a.rows {
		i := RowIndex(m, name)
		if i < 0 {
			res.Unknown = append(res.Unknown, name)
			continue
		}
		res.Rows[i] = OptionalColor{Color: c, OK: true}
	}
	for name, c := range a.columns {
		j := ColumnIndex(m, name)
		if j < 0 {
			res.Unknown = append(res.Unknown, name)
			continue
		}
		res.Columns[j] = OptionalColor{Color: c, OK: true}
	}
	sort.Strings(res.Unknown)
	return res
}
