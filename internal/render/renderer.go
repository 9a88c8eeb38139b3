// Package render rasterises heat maps using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/fogleman/gg"
	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/heatmap"
)

// Config contains rasteriser configuration.
type Config struct {
	// MaxPixels caps width*height of any image; 0 disables the cap.
	MaxPixels int64
	// FastPNG trades file size for encoding speed.
	FastPNG bool
}

// Rasterizer turns heatmap renderers into pixels and encoded images. It is
// safe for concurrent use; each call works on its own heatmap.Renderer.
type Rasterizer struct {
	config     Config
	imagePool  sync.Pool
	bufferPool sync.Pool
}

// NewRasterizer creates a rasteriser.
func NewRasterizer(cfg Config) *Rasterizer {
	return &Rasterizer{
		config: cfg,
		imagePool: sync.Pool{
			New: func() interface{} { return &image.RGBA{} },
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Snapshot draws the whole heat map into a new image owned by the caller.
func (r *Rasterizer) Snapshot(hm *heatmap.Renderer, fonts *Fonts) (*image.RGBA, error) {
	lm := hm.Layout()
	if err := lm.CheckBudget(r.config.MaxPixels); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, lm.ImageWidth(), lm.ImageHeight()))
	hm.Snapshot(NewSurface(gg.NewContextForRGBA(img), fonts))
	return img, nil
}

// Region draws the body cells under clip (body coordinates) into an image
// of the clip's size. Labels right of the cells are included when the clip
// covers them.
func (r *Rasterizer) Region(hm *heatmap.Renderer, fonts *Fonts, clip image.Rectangle) (*image.RGBA, error) {
	if clip.Empty() {
		return nil, fmt.Errorf("%w: empty region %v", heatmap.ErrInvalidConfig, clip)
	}
	px := int64(clip.Dx()) * int64(clip.Dy())
	if r.config.MaxPixels > 0 && px > r.config.MaxPixels {
		return nil, fmt.Errorf("%w: region %v (%d px)", heatmap.ErrImageTooLarge, clip, px)
	}
	img := image.NewRGBA(image.Rect(0, 0, clip.Dx(), clip.Dy()))
	s := NewSurface(gg.NewContextForRGBA(img), fonts)
	s.FillRect(img.Rect, hm.Background())
	hm.RenderRegion(heatmap.Translate(s, -clip.Min.X, -clip.Min.Y), &clip)
	return img, nil
}

// Encode renders a snapshot and encodes it as format. The pixel buffer is
// pooled and never escapes.
func (r *Rasterizer) Encode(hm *heatmap.Renderer, fonts *Fonts, format export.Format) ([]byte, error) {
	lm := hm.Layout()
	if err := lm.CheckBudget(r.config.MaxPixels); err != nil {
		return nil, err
	}

	img := r.getImage(lm.ImageWidth(), lm.ImageHeight())
	defer r.imagePool.Put(img)
	hm.Snapshot(NewSurface(gg.NewContextForRGBA(img), fonts))

	return r.EncodeImage(img, format)
}

// EncodeImage encodes img through a pooled buffer.
func (r *Rasterizer) EncodeImage(img image.Image, format export.Format) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	opts := export.Options{}
	if r.config.FastPNG {
		opts.PNGCompression = png.BestSpeed
	}
	if err := export.Encode(buf, img, format, opts); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// getImage returns a pooled image resized to w x h. Its contents are stale;
// Snapshot paints every pixel.
func (r *Rasterizer) getImage(w, h int) *image.RGBA {
	img := r.imagePool.Get().(*image.RGBA)
	n := 4 * w * h
	if cap(img.Pix) < n {
		img.Pix = make([]uint8, n)
	}
	img.Pix = img.Pix[:n]
	img.Stride = 4 * w
	img.Rect = image.Rect(0, 0, w, h)
	return img
}
