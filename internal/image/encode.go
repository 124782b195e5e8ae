package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
)

// EncodeByFormat encodes img as avif, webp or png. Unavailable or failing
// encoders fall back along avif -> webp -> png.
func EncodeByFormat(img image.Image, format string) ([]byte, string) {
	switch format {
	case "avif":
		if b, err := encodeAsAVIF(img, 75); err == nil && len(b) > 0 {
			return b, "image/avif"
		}
		fallthrough
	case "webp":
		if b, err := encodeAsWebP(img, 85); err == nil && len(b) > 0 {
			return b, "image/webp"
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err == nil {
		return buf.Bytes(), "image/png"
	}
	return nil, ""
}

// NormalizeFormat maps a user supplied output format to "png", "webp" or "avif".
func NormalizeFormat(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "webp", "image/webp":
		return "webp"
	case "avif", "image/avif":
		return "avif"
	default:
		return "png"
	}
}

// DataURL renders data as a base64 data URL of the given content type.
func DataURL(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// EncodeDataURL encodes img and returns it as a data URL with the encoded size.
func EncodeDataURL(img image.Image, format string) (string, int, error) {
	data, ct := EncodeByFormat(img, format)
	if len(data) == 0 {
		return "", 0, errors.New("failed to encode output image")
	}
	return DataURL(data, ct), len(data), nil
}

// ParseDataURL returns the decoded payload and content type of a base64 data URL.
func ParseDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, "", errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("data URL has no payload")
	}
	ct, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data URL is not base64 encoded")
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return b, ct, nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// SupportedFormats lists the output formats this build can produce.
func SupportedFormats() []string {
	formats := []string{"png"}
	if isWebPSupported() {
		formats = append(formats, "webp")
	}
	if isAVIFSupported() {
		formats = append(formats, "avif")
	}
	return formats
}
