package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"
	"golang.org/x/image/draw"
)

const (
	// DefaultTintHex is the accent color blended in by Tint (light blue).
	DefaultTintHex = "#66D4FF"
	// DefaultTintFactor is the weight of the accent color in the blend.
	DefaultTintFactor = 0.2
)

// ErrEmptyImage is returned when an operation receives an image with no pixels.
var ErrEmptyImage = errors.New("image has zero width or height")

// Composite scales bg to exactly fg's dimensions, ignoring aspect ratio,
// and draws fg over it at the origin with source-over blending.
func Composite(bg, fg image.Image, filter imaging.ResampleFilter) (*image.NRGBA, error) {
	fb := fg.Bounds()
	w, h := fb.Dx(), fb.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("foreground: %w", ErrEmptyImage)
	}
	if bb := bg.Bounds(); bb.Dx() <= 0 || bb.Dy() <= 0 {
		return nil, fmt.Errorf("background: %w", ErrEmptyImage)
	}

	base := imaging.Resize(bg, w, h, filter)
	return imaging.Overlay(base, fg, image.Pt(0, 0), 1.0), nil
}

// Tint returns a copy of img where every pixel with non-zero alpha has its
// RGB channels moved toward target: c' = round(c*(1-factor) + t*factor).
// Alpha is never modified.
func Tint(img image.Image, target color.NRGBA, factor float64) *image.NRGBA {
	dst := imaging.Clone(img)
	factor = math.Max(0, math.Min(1, factor))

	pix := dst.Pix
	for y := 0; y < dst.Rect.Dy(); y++ {
		row := pix[y*dst.Stride : y*dst.Stride+dst.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			if row[i+3] == 0 {
				continue
			}
			row[i+0] = blend(row[i+0], target.R, factor)
			row[i+1] = blend(row[i+1], target.G, factor)
			row[i+2] = blend(row[i+2], target.B, factor)
		}
	}
	return dst
}

func blend(c, t uint8, factor float64) uint8 {
	v := math.Round(float64(c)*(1-factor) + float64(t)*factor)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ParseColor parses a hex color such as "#66D4FF" into an opaque NRGBA.
func ParseColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// ParseFilter maps a resample filter name to the imaging filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear", "bilinear":
		return imaging.Linear, nil
	case "nearest", "nearestneighbor":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "catmullrom", "bicubic":
		return imaging.CatmullRom, nil
	case "lanczos":
		return imaging.Lanczos, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resize filter %q", name)
	}
}

// RasterizeSVG converts SVG bytes to a raster image with the specified dimensions.
// Uses tdewolff/canvas for SVG rendering; the result is stretched to exactly
// width x height.
func RasterizeSVG(svgBytes []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("rasterize svg: %w", ErrEmptyImage)
	}
	svgBytes = preprocessSVG(svgBytes)

	c, err := canvas.ParseSVG(bytes.NewReader(svgBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}

	svgW, svgH := c.Size()
	if svgW <= 0 || svgH <= 0 {
		return nil, fmt.Errorf("invalid SVG dimensions: %v x %v", svgW, svgH)
	}

	// canvas uses mm internally, 1 inch = 25.4 mm
	dpiX := float64(width) / (svgW / 25.4)
	dpiY := float64(height) / (svgH / 25.4)
	dpi := math.Max(dpiX, dpiY)
	if dpi < 72 {
		dpi = 72
	}
	if dpi > 600 {
		dpi = 600
	}

	var buf bytes.Buffer
	if err := c.Write(&buf, renderers.PNG(canvas.DPI(dpi))); err != nil {
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("SVG rendered to empty buffer")
	}

	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered PNG: %w", err)
	}
	return stretchTo(img, width, height), nil
}

func stretchTo(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// preprocessSVG fixes common SVG issues that cause rendering problems.
func preprocessSVG(data []byte) []byte {
	s := string(data)

	if !strings.Contains(s, "xmlns") && strings.Contains(s, "<svg") {
		s = strings.Replace(s, "<svg", `<svg xmlns="http://www.w3.org/2000/svg"`, 1)
	}

	// currentColor has no inherited value outside a document
	s = strings.ReplaceAll(s, "currentColor", "#000000")

	return []byte(s)
}

// IsNearlyBlank checks if an image is mostly transparent.
func IsNearlyBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	stepX := max(b.Dx()/16, 1)
	stepY := max(b.Dy()/16, 1)

	nonTransparent := 0
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			_, _, _, a := img.At(x, y).RGBA()
			if a > 0x0100 {
				nonTransparent++
				if nonTransparent > 8 {
					return false
				}
			}
		}
	}
	return true
}
