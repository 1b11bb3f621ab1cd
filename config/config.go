// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in increasing order of precedence.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dispatch modes for webhook processing
const (
	DispatchInline   = "inline"
	DispatchTemporal = "temporal"
)

// Config holds every setting used by the server, worker and CLI
type Config struct {
	HTTPPort   int `mapstructure:"http_port"`
	HealthPort int `mapstructure:"health_port"`

	OrderServiceURL        string `mapstructure:"order_service_url"`
	NotificationServiceURL string `mapstructure:"notification_service_url"`
	GatewayBaseURL         string `mapstructure:"gateway_base_url"`

	RazorpayKeyID         string `mapstructure:"razorpay_key_id"`
	RazorpayKeySecret     string `mapstructure:"razorpay_key_secret"`
	RazorpayWebhookSecret string `mapstructure:"razorpay_webhook_secret"`

	// CallTimeout bounds every remote call made while reconciling
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	DispatchMode      string `mapstructure:"dispatch_mode"`
	TemporalHost      string `mapstructure:"temporal_host"`
	TaskQueue         string `mapstructure:"task_queue"`
	EncryptionEnabled bool   `mapstructure:"encryption_enabled"`
	EncryptionKey     string `mapstructure:"encryption_key"`

	JournalPath string `mapstructure:"journal_path"`
	NotifyDedup bool   `mapstructure:"notify_dedup"`

	RedisAddr       string        `mapstructure:"redis_addr"`
	ReceiptCacheTTL time.Duration `mapstructure:"receipt_cache_ttl"`

	AMQPURL string `mapstructure:"amqp_url"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"http_port":                8080,
	"health_port":              8090,
	"order_service_url":        "http://order-service",
	"notification_service_url": "http://notification-service",
	"gateway_base_url":         "https://api.razorpay.com/v1",
	"razorpay_key_id":          "",
	"razorpay_key_secret":      "",
	"razorpay_webhook_secret":  "",
	"call_timeout":             5 * time.Second,
	"dispatch_mode":            DispatchInline,
	"temporal_host":            "localhost:7233",
	"task_queue":               "payment-reconciliation-queue",
	"encryption_enabled":       false,
	"encryption_key":           "",
	"journal_path":             "",
	"notify_dedup":             false,
	"redis_addr":               "",
	"receipt_cache_ttl":        24 * time.Hour,
	"amqp_url":                 "",
	"log_level":                "info",
	"log_format":               "json",
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment are used. Environment variables are the upper-cased
// keys, e.g. TEMPORAL_HOST or RAZORPAY_WEBHOOK_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that every binary depends on
func (c *Config) Validate() error {
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout)
	}
	switch c.DispatchMode {
	case DispatchInline, DispatchTemporal:
	default:
		return fmt.Errorf("dispatch_mode must be %q or %q, got %q", DispatchInline, DispatchTemporal, c.DispatchMode)
	}
	if c.EncryptionEnabled {
		if _, err := c.EncryptionKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// RequireGatewayCredentials fails when the gateway API key pair is missing
func (c *Config) RequireGatewayCredentials() error {
	if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
		return fmt.Errorf("razorpay_key_id and razorpay_key_secret are required")
	}
	return nil
}

// EncryptionKeyBytes decodes the hex AES-256 payload encryption key
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
