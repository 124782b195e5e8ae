// Package server wires the handlers into an echo router together with the
// ambient middleware (recovery, request ids, CORS, metrics, rate limiting)
// and serves the embedded client page.
package server

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bgfill/internal/handler"
	"bgfill/pkg/logger"
	"bgfill/pkg/metrics"
	"bgfill/pkg/ratelimit"
)

//go:embed static/index.html
var indexHTML []byte

// Options configures the router. AssetsDir is served read-only under /assets.
type Options struct {
	Port           string
	AssetsDir      string
	AllowedOrigins []string
	Limiter        *ratelimit.Limiter
}

type Server struct {
	echo      *echo.Echo
	opts      Options
	handlers  *handler.Config
	startTime time.Time
}

func New(opts Options, hc *handler.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("%s %s %d %s id=%s", v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond), v.RequestID)
			return nil
		},
	}))
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(metrics.Middleware())

	s := &Server{
		echo:      e,
		opts:      opts,
		handlers:  hc,
		startTime: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	logger.Info("Starting server on port %s", s.opts.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.opts.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Seconds(),
		"removal": s.handlers.Remover != nil,
	})
}
