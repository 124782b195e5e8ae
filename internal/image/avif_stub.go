//go:build noavif

package image

import (
	"errors"
	"image"
)

// Build with -tags noavif to leave out the wasm AVIF encoder.
func encodeAsAVIF(img image.Image, quality int) ([]byte, error) {
	return nil, errors.New("avif output unavailable (built with -tags noavif)")
}

func isAVIFSupported() bool {
	return false
}
