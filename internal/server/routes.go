package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bgfill/internal/handler"
	"bgfill/pkg/metrics"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.Get().Handler().ServeHTTP(w, r)
	})))

	s.echo.GET("/", s.handleIndex)
	if s.opts.AssetsDir != "" {
		s.echo.Static("/assets", s.opts.AssetsDir)
	}

	limited := echo.WrapMiddleware(s.opts.Limiter.Middleware)

	background := echo.WrapHandler(handler.BackgroundHandler(s.handlers))
	tint := echo.WrapHandler(handler.TintHandler(s.handlers))
	backgrounds := echo.WrapHandler(handler.BackgroundsHandler(s.handlers))

	s.echo.POST("/api/background", background, limited)
	s.echo.POST("/api/tint", tint, limited)
	s.echo.GET("/api/backgrounds", backgrounds)
	s.echo.GET("/api/project-types", echo.WrapHandler(handler.ProjectTypesHandler(s.handlers)))

	// Paths used by older clients.
	s.echo.POST("/upload", background, limited)
	s.echo.POST("/tint", tint, limited)
	s.echo.GET("/background-count", backgrounds)
}
