package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/http"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/postgres"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/valkey"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/config"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/logging"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/telemetry"
)

var version = "dev"

// The facility backend serving GET /facilities to discovery gateways.
func main() {
	cfg, err := config.Load("lqq-facilities")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				db.ReportPoolStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	deps := &http.Dependencies{DB: db, Version: version}

	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, serving uncached", "error", err)
	} else {
		defer vc.Close()
		cache = vc
		deps.Cache = vc
	}

	// Change events are published by the importer, not by this service.
	deps.Facilities = usecases.NewFacilityService(postgres.NewFacilityRepo(db), cache, nil, cfg.Discovery.FacilityCacheTTL)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "LQQ Facilities API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupFacilityRoutes(app, deps, os.Getenv("LQQ_OPENAPI_PATH"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("facilities API starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
