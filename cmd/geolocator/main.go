package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrwolf/geolocator/internal/api"
	"github.com/mrwolf/geolocator/internal/app"
	"github.com/mrwolf/geolocator/internal/config"
	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/logging"
	"github.com/mrwolf/geolocator/internal/metrics"
	"github.com/mrwolf/geolocator/internal/report"
	"github.com/mrwolf/geolocator/internal/scheduler"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Warn("closing database", zap.Error(err))
		}
	}()
	logger.Info("database ready", zap.String("path", cfg.DBPath))

	var reports *report.Writer
	if cfg.ReportsPath != "" {
		if err := os.MkdirAll(cfg.ReportsPath, 0755); err != nil {
			return fmt.Errorf("creating reports directory: %w", err)
		}
		reports = report.NewWriter(cfg.ReportsPath)
	}

	m := metrics.New()
	pipeline, err := app.NewPipeline(cfg, m, logger)
	if err != nil {
		return err
	}
	logger.Info("pipeline ready",
		zap.String("ollama_url", cfg.OllamaURL),
		zap.String("model", cfg.OllamaModel),
		zap.String("rule_set", pipeline.RuleSet.Name),
		zap.Bool("geocoder", cfg.GeocoderOn),
		zap.Int("cache_size", cfg.CacheSize))

	sched, err := scheduler.New(database, reports, pipeline.Model, logger, scheduler.Config{
		Timezone:  cfg.Timezone,
		Retention: cfg.Retention(),
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("stopping scheduler", zap.Error(err))
		}
	}()

	router := api.NewRouter(api.Deps{
		Config:  cfg,
		DB:      database,
		Reports: reports,
		Locator: pipeline.Locator,
		Model:   pipeline.Model,
		Monitor: sched,
		Metrics: m,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		// Give in-flight analyses time to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
