package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bgfill/internal/assets"
	imgpkg "bgfill/internal/image"
	"bgfill/pkg/logger"
	"bgfill/pkg/metrics"
)

// BackgroundHandler returns an HTTP handler that replaces the background of
// an uploaded photo.
//
// Multipart fields:
//   - image: the photo (required)
//   - projectType: asset subdirectory (default "base")
//   - backgroundChoice: background file name (default "background1.png")
//   - format: output format png, webp or avif (default png)
//
// Responses:
//   - 200 {"processedImageUrl": "data:image/png;base64,..."}
//   - 400 {"error": "No file uploaded"}
//   - 500 {"error": "Image processing failed", "details": "..."}
func BackgroundHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(w, r)

		data, filename, err := readUpload(w, r, cfg.MaxUploadBytes)
		if err != nil {
			if writeUploadError(w, err) {
				return
			}
			log.Error("Image processing failed: %v", err)
			recordFailure(err)
			writeError(w, http.StatusInternalServerError, "Image processing failed", err.Error())
			return
		}

		projectType := formValue(r, "projectType", assets.DefaultProjectType)
		choice := formValue(r, "backgroundChoice", assets.DefaultBackground)
		format := imgpkg.NormalizeFormat(r.FormValue("format"))

		start := time.Now()
		url, err := replaceBackground(r.Context(), cfg, log, data, filename, projectType, choice, format)
		if err != nil {
			log.Error("Image processing failed: %v", err)
			recordFailure(err)
			writeError(w, http.StatusInternalServerError, "Image processing failed", err.Error())
			return
		}

		log.Info("Background replaced with %s/%s in %s", projectType, choice, time.Since(start).Round(time.Millisecond))
		writeJSON(w, http.StatusOK, processedResponse{ProcessedImageURL: url})
	}
}

func replaceBackground(ctx context.Context, cfg *Config, log *logger.Logger, data []byte, filename, projectType, choice, format string) (string, error) {
	cutout, err := cfg.Remover.Remove(ctx, data, filename)
	if err != nil {
		return "", atStage("removal", err)
	}

	fg, err := imgpkg.Decode(cutout)
	if err != nil {
		return "", atStage("decode", fmt.Errorf("decode cutout: %w", err))
	}
	w, h := fg.Bounds().Dx(), fg.Bounds().Dy()
	if imgpkg.IsNearlyBlank(fg) {
		log.Warn("Cutout of %s (%dx%d) is nearly transparent", filename, w, h)
	}

	bg, err := cfg.Assets.Load(projectType, choice, w, h)
	if err != nil {
		return "", atStage("asset", err)
	}

	out, err := imgpkg.Composite(bg, fg, cfg.Filter)
	if err != nil {
		return "", atStage("composite", err)
	}

	url, n, err := imgpkg.EncodeDataURL(out, format)
	if err != nil {
		return "", atStage("encode", err)
	}
	metrics.Get().RecordOutput("background", n)
	log.Debug("Composited %dx%d cutout over %s/%s, %d bytes", w, h, projectType, choice, n)
	return url, nil
}
