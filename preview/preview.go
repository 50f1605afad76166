// ABOUTME: Decodes uploaded images (PNG, JPEG, GIF, TIFF) and scales them to fit a preview box.
// ABOUTME: The full-resolution image is kept alongside the scaled copy for the maximize view.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

const (
	DefaultMaxWidth  = 900
	DefaultMaxHeight = 400

	// MaxPixels bounds the declared size of an image before any pixel buffer
	// is allocated. Full-field mammograms are well under 100 megapixels.
	MaxPixels = 100_000_000
)

// ErrUnsupportedFormat is returned for data no registered decoder recognises.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// ErrTooLarge is returned for images whose header declares more than MaxPixels.
var ErrTooLarge = errors.New("image dimensions exceed the preview limit")

// Preview is a decoded image ready for display.
type Preview struct {
	Name   string
	Format string
	Full   image.Image
	Scaled image.Image
}

// Size returns the full-resolution dimensions.
func (p *Preview) Size() (int, int) {
	b := p.Full.Bounds()
	return b.Dx(), b.Dy()
}

// decoders are tried in order; TIFF comes from x/image since the standard
// library does not read it.
var decoders = []struct {
	format string
	match  func([]byte) bool
	config func(io.Reader) (image.Config, error)
	decode func(io.Reader) (image.Image, error)
}{
	{"png", hasPrefix("\x89PNG\r\n\x1a\n"), png.DecodeConfig, png.Decode},
	{"jpeg", hasPrefix("\xff\xd8"), jpeg.DecodeConfig, jpeg.Decode},
	{"gif", func(b []byte) bool { return hasPrefix("GIF87a")(b) || hasPrefix("GIF89a")(b) }, gif.DecodeConfig, gif.Decode},
	{"tiff", func(b []byte) bool { return hasPrefix("II*\x00")(b) || hasPrefix("MM\x00*")(b) }, tiff.DecodeConfig, tiff.Decode},
}

func hasPrefix(p string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(p)) }
}

// Decode reads one image and scales it to fit maxW×maxH. Images already
// inside the box are not enlarged. The header is checked against MaxPixels
// before the pixels are decoded.
func Decode(name string, data []byte, maxW, maxH int) (*Preview, error) {
	for _, d := range decoders {
		if !d.match(data) {
			continue
		}
		cfg, err := d.config(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.format, err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
			return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
		}
		img, err := d.decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.format, err)
		}
		if img.Bounds().Empty() {
			return nil, ErrEmptyImage
		}
		return &Preview{
			Name:   name,
			Format: d.format,
			Full:   img,
			Scaled: Scale(img, maxW, maxH),
		}, nil
	}
	return nil, ErrUnsupportedFormat
}

// Fit returns the largest size with the same aspect ratio as w×h that fits
// inside maxW×maxH, never larger than w×h. A non-positive bound is ignored.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := 1.0
	if maxW > 0 {
		scale = min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		scale = min(scale, float64(maxH)/float64(h))
	}
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	return nw, nh
}

// Scale returns img resized to fit maxW×maxH, or img itself when it already fits.
func Scale(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodePNG encodes img as PNG, the format previews are served in.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
