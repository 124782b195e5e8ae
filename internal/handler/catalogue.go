package handler

import (
	"net/http"

	"bgfill/internal/assets"
)

type backgroundsResponse struct {
	ProjectType string   `json:"projectType"`
	Backgrounds []string `json:"backgrounds"`
}

type projectTypesResponse struct {
	ProjectTypes []string `json:"projectTypes"`
}

// BackgroundsHandler lists the background files available for the
// projectType query parameter (default "base").
func BackgroundsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectType := formValue(r, "projectType", assets.DefaultProjectType)

		names, err := cfg.Assets.List(projectType)
		if err != nil {
			requestLogger(w, r).Warn("Listing backgrounds for %q failed: %v", projectType, err)
			recordFailure(atStage("asset", err))
			writeError(w, http.StatusBadRequest, "Invalid project type", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, backgroundsResponse{ProjectType: projectType, Backgrounds: names})
	}
}

// ProjectTypesHandler lists the project types found in the asset root.
func ProjectTypesHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := cfg.Assets.ProjectTypes()
		if err != nil {
			requestLogger(w, r).Error("Listing project types failed: %v", err)
			recordFailure(atStage("asset", err))
			writeError(w, http.StatusInternalServerError, "Failed to list project types", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, projectTypesResponse{ProjectTypes: types})
	}
}
