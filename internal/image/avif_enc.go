//go:build !noavif

package image

import (
	"bytes"
	"image"

	"github.com/gen2brain/avif"
)

// encodeAsAVIF encodes an image to AVIF format. Transparent images keep a
// full quality alpha plane.
func encodeAsAVIF(img image.Image, quality int) ([]byte, error) {
	quality = min(max(quality, 1), 100)

	opts := avif.Options{
		Quality:      quality,
		QualityAlpha: quality,
		Speed:        8, // 0-10, higher is faster
	}
	if !isOpaque(img) {
		opts.QualityAlpha = 100
	}

	var buf bytes.Buffer
	if err := avif.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isAVIFSupported returns true when AVIF encoding is available.
func isAVIFSupported() bool {
	return true
}
