package heatmap

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"
)

// QueryPlaceholder is replaced by the row name in a row URL template.
const QueryPlaceholder = "<query>"

// DefaultRowURL is the row link used when none is configured.
const DefaultRowURL = "https://www.google.com/search?q=" + QueryPlaceholder

// RowURL expands template for name.
func RowURL(template, name string) string {
	return strings.ReplaceAll(template, QueryPlaceholder, url.QueryEscape(name))
}

// WriteImageMap writes an HTML <map> over a full snapshot: one area per cell
// titled with its row, column and value, plus one linked area per row label
// when names are shown and rowURL is not empty.
func (r *Renderer) WriteImageMap(w io.Writer, name, rowURL string) error {
	lm := r.metrics
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<map name=\"%s\">\n", html.EscapeString(name))

	top := lm.HeaderHeight
	for row := 0; row < lm.Rows; row++ {
		src := r.order.Row(row)
		rowName := r.m.RowName(src)
		for col := 0; col < lm.Columns; col++ {
			c := r.order.Column(col)
			rect := lm.CellRect(row, col)
			title := fmt.Sprintf("%s %s: %s", rowName, r.m.ColumnName(c), FormatValue(r.m.Value(src, c)))
			fmt.Fprintf(bw, "<area shape=\"rect\" coords=\"%d,%d,%d,%d\" title=\"%s\" nohref>\n",
				rect.Min.X, rect.Min.Y+top, rect.Max.X, rect.Max.Y+top, html.EscapeString(title))
		}
		if lm.ShowRowNames && rowURL != "" {
			y := row*lm.ElementHeight + top
			fmt.Fprintf(bw, "<area shape=\"rect\" coords=\"%d,%d,%d,%d\" href=\"%s\" title=\"%s\">\n",
				lm.LabelX, y, lm.LabelX+lm.RowNameWidth, y+lm.ElementHeight,
				html.EscapeString(RowURL(rowURL, rowName)), html.EscapeString(rowName))
		}
	}

	bw.WriteString("</map>\n")
	return bw.Flush()
}
