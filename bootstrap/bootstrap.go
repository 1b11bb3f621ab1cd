// Package bootstrap builds the components shared by the server and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/codec"
	"github.com/aswathylr-builds/payment-reconciliation/config"
	"github.com/aswathylr-builds/payment-reconciliation/events"
	"github.com/aswathylr-builds/payment-reconciliation/gateway"
	"github.com/aswathylr-builds/payment-reconciliation/health"
	"github.com/aswathylr-builds/payment-reconciliation/logging"
	"github.com/aswathylr-builds/payment-reconciliation/notifier"
	"github.com/aswathylr-builds/payment-reconciliation/orderstore"
	"github.com/aswathylr-builds/payment-reconciliation/reconcile"
	"github.com/aswathylr-builds/payment-reconciliation/resolver"
)

// EncryptionKeyID labels payloads sealed with the configured key
const EncryptionKeyID = "payment-events-v1"

// Components are the collaborators both binaries reconcile with
type Components struct {
	Logger   *logging.Logger
	Gateway  *gateway.HTTPClient
	Store    *orderstore.HTTPStore
	Sender   *notifier.HTTPSender
	Resolver *resolver.Resolver
	Redis    *redis.Client

	// Publisher is nil when amqp_url is unset
	Publisher *events.Publisher

	closers []io.Closer
}

// New wires the HTTP collaborators, the resolver chain and the optional
// Redis cache and RabbitMQ publisher.
func New(cfg *config.Config, logger *logging.Logger) (*Components, error) {
	c := &Components{
		Logger:  logger,
		Gateway: gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.CallTimeout),
		Store:   orderstore.New(cfg.OrderServiceURL, cfg.CallTimeout),
		Sender:  notifier.New(cfg.NotificationServiceURL, cfg.CallTimeout),
	}

	var receipts resolver.ReceiptSource = resolver.GatewayReceipts{Gateway: c.Gateway}
	if cfg.RedisAddr != "" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: cfg.CallTimeout,
			ReadTimeout: cfg.CallTimeout,
		})
		c.closers = append(c.closers, c.Redis)
		receipts = &resolver.CachedReceipts{
			Source: receipts,
			Client: c.Redis,
			TTL:    cfg.ReceiptCacheTTL,
			Logger: logger,
		}
		logger.Info("Receipt cache enabled", "redis_addr", cfg.RedisAddr)
	}
	c.Resolver = resolver.New(receipts, c.Store, logger)

	if cfg.AMQPURL != "" {
		conn, ch, err := events.SetupConn(cfg.AMQPURL, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, ch, conn)
		c.Publisher = events.NewPublisher(ch)
		logger.Info("Outcome events enabled", "exchange", events.ExchangeName)
	}

	return c, nil
}

// Options returns the orchestrator options every binary shares
func (c *Components) Options(cfg *config.Config) []reconcile.Option {
	opts := []reconcile.Option{reconcile.WithCallTimeout(cfg.CallTimeout)}
	if c.Publisher != nil {
		opts = append(opts, reconcile.WithPublisher(c.Publisher))
	}
	return opts
}

// RegisterCheckers adds collaborator health checks to s
func (c *Components) RegisterCheckers(cfg *config.Config, s *health.Server) {
	s.RegisterChecker(health.NewHTTPChecker("order-service", cfg.OrderServiceURL+"/actuator/health"))
	s.RegisterChecker(health.NewHTTPChecker("notification-service", cfg.NotificationServiceURL+"/actuator/health"))
	if c.Redis != nil {
		s.RegisterChecker(health.NewRedisChecker(c.Redis))
	}
}

// Close releases connections in reverse order of creation
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			c.Logger.Warn("Close failed", "error", err)
		}
	}
	c.closers = nil
}

// DialTemporal connects to Temporal with the configured payload encryption
func DialTemporal(cfg *config.Config, logger log.Logger) (client.Client, error) {
	options := client.Options{
		HostPort: cfg.TemporalHost,
		Logger:   logger,
	}

	if cfg.EncryptionEnabled {
		key, err := cfg.EncryptionKeyBytes()
		if err != nil {
			return nil, err
		}
		dc, err := codec.NewDataConverter(EncryptionKeyID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryption data converter: %w", err)
		}
		options.DataConverter = dc
		logger.Info("Payload encryption enabled", "key_id", EncryptionKeyID)
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// PingRedis reports whether the receipt cache answers
func (c *Components) PingRedis(ctx context.Context) error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Ping(ctx).Err()
}
