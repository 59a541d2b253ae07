package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/monthly-weather-stats/internal/api/http"
	"github.com/i474232898/monthly-weather-stats/internal/config"
	"github.com/i474232898/monthly-weather-stats/internal/observability"
	"github.com/i474232898/monthly-weather-stats/internal/resilience"
	"github.com/i474232898/monthly-weather-stats/internal/scheduler"
	"github.com/i474232898/monthly-weather-stats/internal/store"
	"github.com/i474232898/monthly-weather-stats/internal/summary"
	"github.com/i474232898/monthly-weather-stats/internal/summary/sources"
)

const serviceName = "weather-stats-server"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := newSource(ctx, cfg)
	if err != nil {
		logr.WithError(err).Fatal("failed to create summary source")
	}

	// Decoded summaries are cached so repeated requests do not hit the blob store.
	cache := store.NewMemoryStore[summary.Summary](1, cfg.CacheMaxAge, clockwork.NewRealClock())
	service := summary.NewService(source, cfg.SummaryKey, cache, logr, metrics)

	sched := scheduler.New(cfg.RefreshInterval, func(ctx context.Context) error {
		_, err := service.Refresh(ctx)
		return err
	}, logr)
	if err := sched.Start(); err != nil {
		logr.WithError(err).Fatal("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTPTimeout,
		WriteTimeout:          cfg.HTTPTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, service, metrics)

	go func() {
		logr.WithField("port", cfg.Port).Info("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logr.WithError(err).Error("fiber server stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logr.WithError(err).Error("error during shutdown")
	}
}

func newSource(ctx context.Context, cfg *config.AppConfig) (summary.Source, error) {
	switch cfg.SummarySource {
	case "s3":
		client, err := sources.NewS3Client(ctx, cfg.AWSRegion, cfg.S3Endpoint, cfg.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		return sources.NewS3Store(client, cfg.SummaryBucket, resilience.DefaultBackoff), nil
	default:
		return sources.NewFileStore(cfg.SummaryPath), nil
	}
}
