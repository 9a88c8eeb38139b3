// Package export encodes rendered heat maps into image files.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output image format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
)

var (
	ErrUnknownFormat     = errors.New("export: unknown image format")
	ErrUnsupportedFormat = errors.New("export: image format not supported")
)

// Formats lists the formats Encode can write.
var Formats = []Format{PNG, JPEG, TIFF, BMP}

// ParseFormat normalises a format name or file extension ("jpg", ".TIF").
// Vector formats are recognised but rejected with ErrUnsupportedFormat.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	case "tiff", "tif":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	case "eps", "ps", "svg", "pdf":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension is the canonical file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case TIFF:
		return ".tiff"
	}
	return "." + string(f)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case TIFF:
		return "image/tiff"
	case BMP:
		return "image/bmp"
	}
	return "image/png"
}

// EnsureExtension appends f's extension to path unless path already ends
// in an extension of that format.
func EnsureExtension(path string, f Format) string {
	if got, err := ParseFormat(filepath.Ext(path)); err == nil && got == f {
		return path
	}
	return path + f.Extension()
}

// Options tune the encoders.
type Options struct {
	// PNGCompression defaults to png.DefaultCompression.
	PNGCompression png.CompressionLevel
}

// Encode writes img to w. JPEG is written at full quality and TIFF without
// compression.
func Encode(w io.Writer, img image.Image, f Format, opts Options) error {
	switch f {
	case PNG:
		enc := png.Encoder{CompressionLevel: opts.PNGCompression}
		return enc.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 100})
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Uncompressed})
	case BMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}
