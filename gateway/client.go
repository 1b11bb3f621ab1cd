// Package gateway is a thin synchronous façade over the payment gateway's
// REST API: create and fetch orders, fetch payments, verify checkout
// signatures. Lookups report "not found" as ok=false, distinct from errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/signature"
)

// Client is the gateway façade shared by reconciliation and the payment API.
// Implementations must be safe for concurrent use.
type Client interface {
	CreateOrder(ctx context.Context, params models.CreateOrderParams) (models.GatewayOrder, error)
	FetchOrder(ctx context.Context, gatewayOrderID string) (models.GatewayOrder, bool, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (models.GatewayPayment, bool, error)
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, sig, secret string) bool
}

const maxErrorBody = 4 << 10

// HTTPClient talks to the gateway over HTTPS with basic auth
type HTTPClient struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client

	fetches singleflight.Group
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client whose every call is bounded by timeout
func NewHTTPClient(baseURL, keyID, keySecret string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateOrder registers a new order with the gateway
func (c *HTTPClient) CreateOrder(ctx context.Context, params models.CreateOrderParams) (models.GatewayOrder, error) {
	var order models.GatewayOrder
	found, err := c.do(ctx, "create order", http.MethodPost, "/orders", params, &order)
	if err != nil {
		return models.GatewayOrder{}, err
	}
	if !found {
		return models.GatewayOrder{}, &models.GatewayError{Op: "create order", StatusCode: http.StatusNotFound, Err: models.ErrNotFound}
	}
	return order, nil
}

type fetchedOrder struct {
	order models.GatewayOrder
	found bool
}

// FetchOrder looks up a gateway order. Concurrent lookups of the same id
// share one request. The shared request is detached from any one caller's
// cancellation and bounded by the client timeout; each caller still stops
// waiting when its own ctx is done.
func (c *HTTPClient) FetchOrder(ctx context.Context, gatewayOrderID string) (models.GatewayOrder, bool, error) {
	if gatewayOrderID == "" {
		return models.GatewayOrder{}, false, models.InvalidArgument("gateway order id is empty")
	}

	shared := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan("order:"+gatewayOrderID, func() (interface{}, error) {
		var order models.GatewayOrder
		found, err := c.do(shared, "fetch order", http.MethodGet, "/orders/"+url.PathEscape(gatewayOrderID), nil, &order)
		return fetchedOrder{order: order, found: found}, err
	})

	select {
	case <-ctx.Done():
		return models.GatewayOrder{}, false, &models.GatewayError{Op: "fetch order", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return models.GatewayOrder{}, false, res.Err
		}
		fetched := res.Val.(fetchedOrder)
		return fetched.order, fetched.found, nil
	}
}

// FetchPayment looks up a gateway payment
func (c *HTTPClient) FetchPayment(ctx context.Context, gatewayPaymentID string) (models.GatewayPayment, bool, error) {
	if gatewayPaymentID == "" {
		return models.GatewayPayment{}, false, models.InvalidArgument("gateway payment id is empty")
	}

	var payment models.GatewayPayment
	found, err := c.do(ctx, "fetch payment", http.MethodGet, "/payments/"+url.PathEscape(gatewayPaymentID), nil, &payment)
	if err != nil || !found {
		return models.GatewayPayment{}, false, err
	}
	return payment, true, nil
}

// VerifyPaymentSignature checks a checkout callback signature locally
func (c *HTTPClient) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, sig, secret string) bool {
	return signature.VerifyPayment(gatewayOrderID, gatewayPaymentID, sig, secret)
}

// do performs one gateway call. A 404 reports found=false with no error.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) (bool, error) {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return false, &models.GatewayError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, &models.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return false, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(errorDescription(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, &models.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return true, nil
}

// errorDescription extracts the gateway's {"error":{"description":...}} text
func errorDescription(raw []byte) string {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Description != "" {
		if payload.Error.Code != "" {
			return payload.Error.Code + ": " + payload.Error.Description
		}
		return payload.Error.Description
	}
	if len(raw) == 0 {
		return "empty response body"
	}
	return string(raw)
}
