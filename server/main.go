package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aswathylr-builds/payment-reconciliation/api"
	"github.com/aswathylr-builds/payment-reconciliation/bootstrap"
	"github.com/aswathylr-builds/payment-reconciliation/config"
	"github.com/aswathylr-builds/payment-reconciliation/health"
	"github.com/aswathylr-builds/payment-reconciliation/journal"
	"github.com/aswathylr-builds/payment-reconciliation/logging"
	"github.com/aswathylr-builds/payment-reconciliation/payments"
	"github.com/aswathylr-builds/payment-reconciliation/reconcile"
	"github.com/aswathylr-builds/payment-reconciliation/signature"
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

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	if err := cfg.RequireGatewayCredentials(); err != nil {
		return err
	}
	if !signature.Configured(cfg.RazorpayWebhookSecret) {
		logger.Warn("razorpay_webhook_secret is empty, webhook signatures will not be verified")
	}

	components, err := bootstrap.New(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if err := components.PingRedis(context.Background()); err != nil {
		logger.Warn("Receipt cache unreachable, resolving through the gateway", "error", err)
	}

	healthServer := health.NewServer(cfg.HealthPort, logger)
	components.RegisterCheckers(cfg, healthServer)

	opts := components.Options(cfg)

	var deliveries *journal.Journal
	if cfg.JournalPath != "" {
		deliveries, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer deliveries.Close()
		opts = append(opts, reconcile.WithRecorder(deliveries))
		healthServer.RegisterChecker(health.NewFuncChecker("journal", health.StatusUnhealthy, deliveries.Ping))
		if cfg.NotifyDedup && cfg.DispatchMode == config.DispatchInline {
			opts = append(opts, reconcile.WithNotificationDedup(deliveries))
		}
		logger.Info("Delivery journal enabled", "path", cfg.JournalPath, "notify_dedup", cfg.NotifyDedup)
	} else if cfg.NotifyDedup && cfg.DispatchMode == config.DispatchInline {
		logger.Warn("notify_dedup needs journal_path in inline mode, notifications will not be deduplicated")
	}

	if cfg.DispatchMode == config.DispatchTemporal {
		c, err := bootstrap.DialTemporal(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		healthServer.RegisterChecker(health.NewTemporalChecker(c))

		var dispatchOpts []workflows.DispatcherOption
		if deliveries != nil {
			dispatchOpts = append(dispatchOpts, workflows.WithCompletionRecorder(deliveries, 0))
		}
		dispatcher := workflows.NewDispatcher(c, cfg.TaskQueue, cfg.CallTimeout, cfg.NotifyDedup, logger, dispatchOpts...)
		defer dispatcher.Close()
		opts = append(opts, reconcile.WithDispatcher(dispatcher))
		logger.Info("Durable dispatch enabled", "task_queue", cfg.TaskQueue)
	}

	orchestrator := reconcile.New(cfg.RazorpayWebhookSecret, components.Resolver, components.Store, components.Sender, logger, opts...)
	service := payments.NewService(components.Gateway, cfg.RazorpayKeySecret, logger)

	var lister api.OutcomeLister
	if deliveries != nil {
		lister = deliveries
	}
	handler := api.NewHandler(orchestrator, service, lister, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewRouter(handler, healthServer),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 4*cfg.CallTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Payment server listening", "port", cfg.HTTPPort, "dispatch_mode", cfg.DispatchMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal, gracefully stopping")
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
