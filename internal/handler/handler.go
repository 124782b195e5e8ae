// Package handler provides the HTTP request handlers of the background
// replacement service. Background update removes the photo background via
// the removal service and composites the cutout onto a stored background;
// tint blends a fixed accent color into an image. Both answer with JSON
// carrying a base64 data URL.
package handler

import (
	"context"
	"image/color"
	"net/http"

	"github.com/disintegration/imaging"

	"bgfill/internal/assets"
	imgpkg "bgfill/internal/image"
	"bgfill/pkg/logger"
)

const (
	DefaultMaxUploadBytes = 32 << 20

	// multipartMemory is the part of a multipart body kept in memory,
	// the rest spills to temporary files.
	multipartMemory = 8 << 20
)

// Remover strips the background from an uploaded photo and returns the
// cutout as encoded image bytes.
type Remover interface {
	Remove(ctx context.Context, data []byte, filename string) ([]byte, error)
}

// Config holds the dependencies shared by the handlers.
type Config struct {
	Remover        Remover
	Assets         *assets.Store
	TintColor      color.NRGBA
	TintFactor     float64
	Filter         imaging.ResampleFilter
	MaxUploadBytes int64
}

// NewConfig creates a handler configuration with the default tint and a
// bilinear resize filter.
func NewConfig(remover Remover, store *assets.Store) *Config {
	tint, _ := imgpkg.ParseColor(imgpkg.DefaultTintHex)
	return &Config{
		Remover:        remover,
		Assets:         store,
		TintColor:      tint,
		TintFactor:     imgpkg.DefaultTintFactor,
		Filter:         imaging.Linear,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// requestLogger returns a logger tagged with the request id set by the
// router's RequestID middleware, when present.
func requestLogger(w http.ResponseWriter, r *http.Request) *logger.Logger {
	id := w.Header().Get("X-Request-Id")
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		return logger.With("path", r.URL.Path)
	}
	return logger.With("path", r.URL.Path, "request_id", id)
}
