//go:build nowebp

package image

import (
	"errors"
	"image"
)

// Build with -tags nowebp to drop the cgo libwebp dependency.
func encodeAsWebP(img image.Image, quality int) ([]byte, error) {
	return nil, errors.New("webp output unavailable (built with -tags nowebp)")
}

func isWebPSupported() bool {
	return false
}
