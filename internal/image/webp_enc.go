//go:build !nowebp

package image

import (
	"bytes"
	"image"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// encodeAsWebP encodes img as WebP. Images with transparency are encoded
// losslessly so cutout edges survive; opaque images use lossy quality.
func encodeAsWebP(img image.Image, quality int) ([]byte, error) {
	var (
		opts *encoder.Options
		err  error
	)
	if isOpaque(img) {
		if quality <= 0 {
			quality = 85
		}
		opts, err = encoder.NewLossyEncoderOptions(encoder.PresetPhoto, float32(quality))
	} else {
		opts, err = encoder.NewLosslessEncoderOptions(encoder.PresetDefault, 6)
	}
	if err != nil {
		return nil, err
	}
	opts.Method = 4

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isWebPSupported() bool {
	return true
}
