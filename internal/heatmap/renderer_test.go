package heatmap

import (
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, m Matrix, ann *Annotations) *Renderer {
	t.Helper()
	r, err := NewRenderer(m, DisplayOrder{}, DefaultScheme(), ann, DefaultOptions(), testMetrics)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRenderRegionOrder(t *testing.T) {
	ann := NewAnnotations()
	ann.SetRowColor("r0", color.RGBA{R: 200, A: 255})
	r := newTestRenderer(t, threeByFour(t), ann)

	var rec recorder
	r.RenderRegion(&rec, nil)

	require.Equal(t, 12, countPrefix(rec.ops[:12], "fill"))
	phase := map[string]int{"fill": 0, "line": 1, "swatch": 2, "text": 3}
	last := 0
	for i, o := range rec.ops {
		kind := o.kind
		if kind == "fill" && i >= 12 {
			kind = "swatch"
		}
		p, ok := phase[kind]
		require.True(t, ok, "unexpected op %q", o.kind)
		require.GreaterOrEqual(t, p, last, "op %d (%s) drawn out of order", i, kind)
		last = p
	}
	assert.Equal(t, 4+5, rec.count("line"))
	assert.Equal(t, 3, rec.count("text"))
}

func TestRenderRegionClip(t *testing.T) {
	r := newTestRenderer(t, threeByFour(t), nil)

	var rec recorder
	clip := image.Rect(10, 0, 19, 9) // first cell only
	r.RenderRegion(&rec, &clip)

	assert.Equal(t, 1, rec.count("fill"))
	assert.Equal(t, 0, rec.count("text"), "labels sit right of the last column")
	assert.Equal(t, image.Rect(10, 0, 20, 10), rec.ops[0].rect)
}

func TestSnapshotMissingCell(t *testing.T) {
	m := mustDense(t, [][]float64{{math.NaN(), 1}, {2, 3}})
	r := newTestRenderer(t, m, nil)

	var rec recorder
	r.Snapshot(&rec)

	bg := rec.ops[0]
	assert.Equal(t, image.Rect(0, 0, r.Layout().ImageWidth(), r.Layout().ImageHeight()), bg.rect)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, bg.color)

	hh := r.Layout().HeaderHeight
	var found bool
	for _, o := range rec.ops {
		if o.kind == "fill" && o.rect == image.Rect(10, hh, 20, hh+10) {
			assert.Equal(t, DefaultMissingColor, o.color)
			found = true
		}
	}
	assert.True(t, found, "cell (0,0) not drawn")
}

func TestRenderHeader(t *testing.T) {
	ann := NewAnnotations()
	ann.SetColumnColor("c1", color.RGBA{B: 255, A: 255})
	r := newTestRenderer(t, threeByFour(t), ann)
	r.SetHighlights(nil, &Span{First: 1, Last: 3})

	var rec recorder
	r.RenderHeader(&rec, nil)

	require.Equal(t, 4, rec.count("textUp"))
	lm := r.Layout()
	first := rec.ops[len(rec.ops)-4]
	assert.Equal(t, "c0", first.text)
	assert.Equal(t, lm.LeftInset+testMetrics.line-testMetrics.descent, first.x)
	assert.Equal(t, lm.HeaderHeight-8-colorBarHeight, first.y)

	// One bar for c1, one mask for the highlighted columns.
	assert.Equal(t, 2, rec.count("fill"))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, rec.ops[0].color)
	assert.Equal(t, DefaultMaskColor, rec.ops[1].color)
}

func TestAnnotationChangeRelayouts(t *testing.T) {
	ann := NewAnnotations()
	r := newTestRenderer(t, threeByFour(t), ann)
	before := r.Layout().ContentWidth

	ann.SetRowColor("r2", color.RGBA{G: 255, A: 255})
	assert.Equal(t, before+10+10, r.Layout().ContentWidth)

	ann.SetRowColor("nope", color.RGBA{A: 255})
	assert.Equal(t, []string{"nope"}, r.Unknown())
}

func TestSetElementSizeNotifies(t *testing.T) {
	r := newTestRenderer(t, threeByFour(t), nil)

	var got []ElementSize
	stop := r.OnElementSizeChanged(func(e ElementSize) { got = append(got, e) })

	require.NoError(t, r.SetElementSize(20, 5))
	assert.Equal(t, []ElementSize{{20, 5}}, got)
	assert.Equal(t, 20, r.Layout().ElementWidth)

	assert.ErrorIs(t, r.SetElementSize(0, 5), ErrElementSize)
	assert.Len(t, got, 1)
	assert.Equal(t, 20, r.Layout().ElementWidth)

	stop()
	require.NoError(t, r.SetElementSize(10, 10))
	assert.Len(t, got, 1)
}

func TestValueAt(t *testing.T) {
	m := mustDense(t, [][]float64{{1234.5, 2}, {math.NaN(), 0.25}})
	r := newTestRenderer(t, m, nil)

	v, ok := r.ValueAt(10, 0)
	require.True(t, ok)
	assert.Equal(t, "Value: 1,234.5", v)

	v, ok = r.ValueAt(21, 19)
	require.True(t, ok)
	assert.Equal(t, "Value: 0.25", v)

	v, ok = r.ValueAt(11, 12)
	require.True(t, ok)
	assert.Equal(t, "Value: NaN", v)

	_, ok = r.ValueAt(5, 5)
	assert.False(t, ok)
	_, ok = r.ValueAt(15, 25)
	assert.False(t, ok)
}

func TestWriteImageMap(t *testing.T) {
	r := newTestRenderer(t, threeByFour(t), nil)

	var sb strings.Builder
	require.NoError(t, r.WriteImageMap(&sb, "hm", "https://example.org/gene?id="+QueryPlaceholder))
	out := sb.String()

	assert.True(t, strings.HasPrefix(out, `<map name="hm">`))
	assert.True(t, strings.HasSuffix(out, "</map>\n"))
	assert.Equal(t, 12+3, strings.Count(out, "<area"))
	assert.Contains(t, out, `href="https://example.org/gene?id=r1"`)
	assert.Contains(t, out, `title="r2 c3: 12"`)

	hh := r.Layout().HeaderHeight
	assert.Contains(t, out, `coords="10,`+strconv.Itoa(hh)+`,20,`+strconv.Itoa(hh+10)+`"`)
}

func TestWriteImageMapNameIsHTMLEscaped(t *testing.T) {
	r := newTestRenderer(t, threeByFour(t), nil)

	var sb strings.Builder
	require.NoError(t, r.WriteImageMap(&sb, `héat\map "1" <x>`, ""))
	assert.True(t, strings.HasPrefix(sb.String(), `<map name="héat\map &#34;1&#34; &lt;x&gt;">`), sb.String())
}

func TestRowURLEscapes(t *testing.T) {
	assert.Equal(t, "https://www.google.com/search?q=a+b%26c", RowURL(DefaultRowURL, "a b&c"))
}

func countPrefix(ops []op, kind string) int {
	n := 0
	for _, o := range ops {
		if o.kind == kind {
			n++
		}
	}
	return n
}
