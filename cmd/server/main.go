package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bgfill/internal/assets"
	"bgfill/internal/config"
	"bgfill/internal/handler"
	imgpkg "bgfill/internal/image"
	"bgfill/internal/removal"
	"bgfill/internal/server"
	"bgfill/pkg/logger"
	"bgfill/pkg/ratelimit"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// logger is not initialized yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupHandlers(cfg *config.Config) *handler.Config {
	if cfg.RemoveBGAPIKey == "" {
		logger.Warn("REMOVEBG_API_KEY is not set, background updates will be rejected by the removal service")
	}

	remover := removal.New(removal.Options{
		Endpoint:        cfg.RemoveBGURL,
		APIKey:          cfg.RemoveBGAPIKey,
		Timeout:         cfg.RemoveBGTimeout,
		BreakerFailures: cfg.RemoveBGBreakerFailures,
	})

	hc := handler.NewConfig(remover, assets.NewStore(cfg.AssetsDir))
	// Both values were checked by config.Load.
	hc.TintColor, _ = imgpkg.ParseColor(cfg.TintColor)
	hc.Filter, _ = imgpkg.ParseFilter(cfg.ResizeFilter)
	hc.TintFactor = cfg.TintFactor
	hc.MaxUploadBytes = cfg.MaxUploadBytes
	return hc
}

func runGracefulShutdown(cfg *config.Config, srv *server.Server, limiter *ratelimit.Limiter) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, draining requests...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error: %v", err)
		}
		limiter.Stop()

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	imgpkg.SetMaxPixels(cfg.MaxPixels)
	logger.Info("Starting bgfill: assets=%s formats=%v", cfg.AssetsDir, imgpkg.SupportedFormats())

	if _, err := os.Stat(cfg.AssetsDir); err != nil {
		logger.Warn("Assets directory %s is not readable: %v", cfg.AssetsDir, err)
	}

	limiter := ratelimit.NewLimiter(cfg.RateGlobal, cfg.RateGlobalBurst, cfg.RateIP, cfg.RateIPBurst)
	if limiter != nil {
		logger.Info("Rate limiting enabled: global=%d/s ip=%d/s", cfg.RateGlobal, cfg.RateIP)
	}

	srv := server.New(server.Options{
		Port:           cfg.Port,
		AssetsDir:      cfg.AssetsDir,
		AllowedOrigins: cfg.AllowedOrigins(),
		Limiter:        limiter,
	}, setupHandlers(cfg))

	done := runGracefulShutdown(cfg, srv, limiter)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped")
}
