package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/worker"

	"github.com/aswathylr-builds/payment-reconciliation/activities"
	"github.com/aswathylr-builds/payment-reconciliation/bootstrap"
	"github.com/aswathylr-builds/payment-reconciliation/config"
	"github.com/aswathylr-builds/payment-reconciliation/health"
	"github.com/aswathylr-builds/payment-reconciliation/logging"
	"github.com/aswathylr-builds/payment-reconciliation/reconcile"
	"github.com/aswathylr-builds/payment-reconciliation/workflows"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	c, err := bootstrap.DialTemporal(cfg, logger)
	if err != nil {
		logger.Error("Temporal unavailable", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	components, err := bootstrap.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to wire collaborators", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	// notification dedup happens at workflow start, so the worker needs no claims store
	orchestrator := reconcile.New(cfg.RazorpayWebhookSecret, components.Resolver, components.Store, components.Sender, logger,
		components.Options(cfg)...)

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.PaymentEventWorkflow)
	w.RegisterActivity(activities.NewReconcileActivities(orchestrator))

	logger.Info("Worker starting",
		"task_queue", cfg.TaskQueue,
		"temporal_host", cfg.TemporalHost,
		"order_service_url", cfg.OrderServiceURL,
		"notification_service_url", cfg.NotificationServiceURL)

	healthServer := health.NewServer(cfg.HealthPort, logger)
	healthServer.RegisterChecker(health.NewTemporalChecker(c))
	components.RegisterCheckers(cfg, healthServer)
	if err := healthServer.Start(); err != nil {
		logger.Error("Failed to start health check server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Worker started successfully")
		if err := w.Run(worker.InterruptCh()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal, gracefully stopping")
	case err := <-errCh:
		logger.Error("Worker error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Stopping worker")
	w.Stop()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Health server shutdown error", "error", err)
	}

	logger.Info("Worker shutdown complete")
}
