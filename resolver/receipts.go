package resolver

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// OrderFetcher is the part of the gateway client the receipt tier needs
type OrderFetcher interface {
	FetchOrder(ctx context.Context, gatewayOrderID string) (models.GatewayOrder, bool, error)
}

// GatewayReceipts reads receipts straight from the gateway
type GatewayReceipts struct {
	Gateway OrderFetcher
}

// Receipt implements ReceiptSource
func (g GatewayReceipts) Receipt(ctx context.Context, gatewayOrderID string) (string, bool, error) {
	order, found, err := g.Gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil || !found {
		return "", false, err
	}
	return order.Receipt, true, nil
}

// CachedReceipts keeps receipts in Redis. A gateway order's receipt never
// changes, so entries only expire to bound memory.
type CachedReceipts struct {
	Source ReceiptSource
	Client *redis.Client
	TTL    time.Duration
	Logger log.Logger
}

func receiptKey(gatewayOrderID string) string {
	return "receipt:" + gatewayOrderID
}

// Receipt implements ReceiptSource. Redis failures degrade to the source.
func (c *CachedReceipts) Receipt(ctx context.Context, gatewayOrderID string) (string, bool, error) {
	value, err := c.Client.Get(ctx, receiptKey(gatewayOrderID)).Result()
	switch {
	case err == nil:
		return value, true, nil
	case err != redis.Nil:
		c.Logger.Warn("Receipt cache read failed", "gateway_order_id", gatewayOrderID, "error", err)
	}

	receipt, found, err := c.Source.Receipt(ctx, gatewayOrderID)
	if err != nil || !found || receipt == "" {
		return receipt, found, err
	}

	if err := c.Client.Set(ctx, receiptKey(gatewayOrderID), receipt, c.TTL).Err(); err != nil {
		c.Logger.Warn("Receipt cache write failed", "gateway_order_id", gatewayOrderID, "error", err)
	}
	return receipt, true, nil
}
