package handler

import (
	"fmt"
	"net/http"

	imgpkg "bgfill/internal/image"
	"bgfill/pkg/metrics"
)

// TintHandler returns an HTTP handler that blends the configured accent
// color into every non-transparent pixel of the uploaded "image" field.
func TintHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(w, r)

		data, _, err := readUpload(w, r, cfg.MaxUploadBytes)
		if err != nil {
			if writeUploadError(w, err) {
				return
			}
			log.Error("Tinting failed: %v", err)
			recordFailure(err)
			writeError(w, http.StatusInternalServerError, "Tinting failed", err.Error())
			return
		}

		img, err := imgpkg.Decode(data)
		if err != nil {
			err = atStage("decode", fmt.Errorf("decode upload: %w", err))
			log.Error("Tinting failed: %v", err)
			recordFailure(err)
			writeError(w, http.StatusInternalServerError, "Tinting failed", err.Error())
			return
		}

		out := imgpkg.Tint(img, cfg.TintColor, cfg.TintFactor)

		url, n, err := imgpkg.EncodeDataURL(out, imgpkg.NormalizeFormat(r.FormValue("format")))
		if err != nil {
			err = atStage("encode", err)
			log.Error("Tinting failed: %v", err)
			recordFailure(err)
			writeError(w, http.StatusInternalServerError, "Tinting failed", err.Error())
			return
		}

		metrics.Get().RecordOutput("tint", n)
		log.Debug("Tinted %dx%d image, %d bytes", out.Bounds().Dx(), out.Bounds().Dy(), n)
		writeJSON(w, http.StatusOK, processedResponse{ProcessedImageURL: url})
	}
}
