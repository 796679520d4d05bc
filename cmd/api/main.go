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

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/facilitiesapi"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/http"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/ipgeo"
	natsadapter "github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/nats"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/config"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/geospatial"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/logging"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/telemetry"
)

var version = "dev"

// The discovery gateway: one websocket session per map client.
func main() {
	cfg, err := config.Load("lqq-gateway")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := logging.Setup(logLevel, "json")

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

	source := facilitiesapi.New(cfg.Facilities.BaseURL,
		facilitiesapi.WithTimeout(cfg.Facilities.Timeout),
		facilitiesapi.WithMaxRetries(cfg.Facilities.MaxRetries),
		facilitiesapi.WithRetryDelay(cfg.Facilities.RetryDelay),
		facilitiesapi.WithLogger(logger.With("component", "facilitiesapi")),
	)

	hub := http.NewSessionHub(logger)
	deps := &http.Dependencies{Sessions: hub, Version: version}

	// Backend change events refresh every open session.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, sessions refresh only on client action", "error", err)
	} else {
		defer sub.Close()
		deps.NATS = sub
		if err := sub.SubscribeFacilitiesChanged(ctx, hub.HandleFacilitiesChanged); err != nil {
			slog.Warn("subscribe facilities changed", "error", err)
		}
	}

	sessionCfg := http.SessionConfig{
		Source:              source,
		SearchDebounce:      cfg.Discovery.SearchDebounce,
		ViewportBuffer:      cfg.Discovery.ViewportBuffer,
		DistanceCacheSize:   cfg.Discovery.DistanceCacheSize,
		DistanceCachePolicy: geospatial.ParseEvictionPolicy(cfg.Discovery.DistanceCachePolicy),
		LocationTimeout:     cfg.Location.Timeout,
		Logger:              logger,
	}
	if cfg.Location.Source == "ip" {
		sessionCfg.Location = func(ip string) ports.LocationProvider {
			return ipgeo.New(cfg.Location.IPLookupURL, ip, cfg.Location.Timeout, logger.With("component", "ipgeo"))
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "LQQ Discovery Gateway",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		MaxAge:       3600,
	}))

	http.SetupGatewayRoutes(app, deps, sessionCfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("gateway starting", "addr", addr, "location_source", cfg.Location.Source)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, closing sessions...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("gateway stopped")
}
