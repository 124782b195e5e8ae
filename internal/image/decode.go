package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/avif"
	ico "github.com/sergeymakinen/go-ico"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"
)

var (
	// ErrUnsupportedFormat is returned when no decoder accepts the input.
	ErrUnsupportedFormat = errors.New("unsupported raster format")

	// ErrTooManyPixels is returned for images whose declared size exceeds
	// the pixel limit.
	ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")
)

// DefaultMaxPixels is the default decode limit, about 50 megapixels.
const DefaultMaxPixels = 50_000_000

var maxPixels atomic.Int64

func init() {
	maxPixels.Store(DefaultMaxPixels)
}

// SetMaxPixels sets the largest width*height Decode accepts. n <= 0
// restores the default.
func SetMaxPixels(n int64) {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	maxPixels.Store(n)
}

// MaxPixels returns the current decode limit.
func MaxPixels() int64 {
	return maxPixels.Load()
}

type decoder struct {
	name   string
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

var decoders = []decoder{
	{"png", png.Decode, png.DecodeConfig},
	{"jpeg", jpeg.Decode, jpeg.DecodeConfig},
	{"gif", gif.Decode, gif.DecodeConfig},
	{"webp", xwebp.Decode, xwebp.DecodeConfig},
	{"avif", avif.Decode, avif.DecodeConfig},
	{"bmp", bmp.Decode, bmp.DecodeConfig},
	{"tiff", tiff.Decode, tiff.DecodeConfig},
	{"ico", ico.Decode, ico.DecodeConfig},
}

// Decode decodes a raster image in any supported format. The header is
// read first and images above MaxPixels are rejected before any pixel
// buffer is allocated. A sniffed format is decoded with its own decoder
// only; unrecognized input is offered to each decoder in turn.
func Decode(b []byte) (image.Image, error) {
	if len(b) == 0 {
		return nil, errors.New("empty image data")
	}
	limit := MaxPixels()

	if name := sniffFormat(b); name != "" {
		for _, d := range decoders {
			if d.name == name {
				img, err := d.decodeChecked(b, limit)
				if err != nil {
					return nil, fmt.Errorf("decode %s image (%d bytes): %w", name, len(b), err)
				}
				return img, nil
			}
		}
	}

	for _, d := range decoders {
		img, err := d.decodeChecked(b, limit)
		if err == nil {
			return img, nil
		}
		if errors.Is(err, ErrTooManyPixels) {
			return nil, fmt.Errorf("decode %s image (%d bytes): %w", d.name, len(b), err)
		}
	}
	return nil, fmt.Errorf("decode image (%d bytes): %w", len(b), ErrUnsupportedFormat)
}

func (d decoder) decodeChecked(b []byte, limit int64) (image.Image, error) {
	cfg, err := d.config(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: %dx%d, limit %d", ErrTooManyPixels, cfg.Width, cfg.Height, limit)
	}
	return d.decode(bytes.NewReader(b))
}

// sniffFormat returns the decoder name matching the content signature, or "".
func sniffFormat(b []byte) string {
	ct := http.DetectContentType(peek512(b))
	switch {
	case strings.HasPrefix(ct, "image/png"):
		return "png"
	case strings.HasPrefix(ct, "image/jpeg"):
		return "jpeg"
	case strings.HasPrefix(ct, "image/gif"):
		return "gif"
	case strings.HasPrefix(ct, "image/webp"):
		return "webp"
	case strings.HasPrefix(ct, "image/bmp"):
		return "bmp"
	case strings.HasPrefix(ct, "image/x-icon"):
		return "ico"
	}
	if len(b) >= 12 && string(b[4:8]) == "ftyp" && strings.HasPrefix(string(b[8:12]), "avi") {
		return "avif"
	}
	if len(b) >= 4 && (string(b[:4]) == "II*\x00" || string(b[:4]) == "MM\x00*") {
		return "tiff"
	}
	return ""
}

// IsSVG reports whether b or its file name look like an SVG document.
func IsSVG(b []byte, name string) bool {
	if strings.HasSuffix(strings.ToLower(name), ".svg") {
		return true
	}
	head := strings.ToLower(string(peek512(b)))
	return strings.Contains(head, "<svg")
}

func peek512(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return b
}
