package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/facilitiesapi"
	natsadapter "github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/nats"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/postgres"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/adapters/valkey"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/config"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/logging"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/telemetry"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/workflows"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: importer <worker|start <feed-url>>")
	}

	cfg, err := config.Load("lqq-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := logging.Setup(logLevel, "json")

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	switch os.Args[1] {
	case "worker":
		runWorker(c, cfg)
	case "start":
		if len(os.Args) < 3 {
			log.Fatal("usage: importer start <feed-url>")
		}
		startImport(c, cfg, os.Args[2])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runWorker(c client.Client, cfg *config.Config) {
	ctx := context.Background()

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

	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, cached lists expire by TTL only", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, imports will not be announced", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	feed := facilitiesapi.New(cfg.Facilities.BaseURL,
		facilitiesapi.WithTimeout(cfg.Facilities.Timeout),
		facilitiesapi.WithMaxRetries(cfg.Facilities.MaxRetries),
		facilitiesapi.WithRetryDelay(cfg.Facilities.RetryDelay),
	)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.FacilityImportWorkflow)
	w.RegisterActivity(&workflows.ImportActivities{
		Feed:       feed,
		Facilities: usecases.NewFacilityService(postgres.NewFacilityRepo(db), cache, publisher, cfg.Discovery.FacilityCacheTTL),
	})

	slog.Info("import worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func startImport(c client.Client, cfg *config.Config, feedURL string) {
	ctx := context.Background()
	input := workflows.ImportInput{RunID: uuid.NewString(), FeedURL: feedURL}

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "facility-import-" + input.RunID,
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.FacilityImportWorkflow, input)
	if err != nil {
		log.Fatalf("start workflow: %v", err)
	}
	slog.Info("import started", "run_id", input.RunID, "workflow_id", run.GetID())

	var result workflows.ImportResult
	if err := run.Get(ctx, &result); err != nil {
		log.Fatalf("import failed: %v", err)
	}
	slog.Info("import finished",
		"run_id", result.RunID, "count", result.Count,
		"categories", result.Categories, "published", result.Published)
}
