// Package orderstore is the reconciliation core's view of the Order Store
// service: status updates and lookup by gateway order reference.
package orderstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// Store is the Order Store collaborator. Implementations must tolerate
// concurrent writers; repeating an update to the same status is a no-op.
type Store interface {
	UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	FindByExternalReference(ctx context.Context, gatewayOrderID string) (models.OrderRecord, bool, error)
}

// HTTPStore calls the order service's REST API
type HTTPStore struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ Store = (*HTTPStore)(nil)

// New creates an Order Store client whose calls are bounded by timeout
func New(baseURL string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// UpdateStatus sets the status of an order
func (s *HTTPStore) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	if orderID <= 0 {
		return models.InvalidArgument("invalid order id %d", orderID)
	}
	if !status.Valid() {
		return models.InvalidArgument("invalid order status %q", status)
	}

	jsonData, err := json.Marshal(models.StatusUpdateRequest{Status: status})
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	endpoint := s.BaseURL + "/api/orders/" + strconv.FormatInt(orderID, 10) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("order service returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(bytes.TrimSpace(body)) > 0 {
		var envelope models.Envelope
		if err := json.Unmarshal(body, &envelope); err == nil && !envelope.Success && envelope.Message != "" {
			return fmt.Errorf("order service rejected status update: %s", envelope.Message)
		}
	}
	return nil
}

// FindByExternalReference returns the order created for a gateway order id.
// ok is false when the order service does not know the reference.
func (s *HTTPStore) FindByExternalReference(ctx context.Context, gatewayOrderID string) (models.OrderRecord, bool, error) {
	if gatewayOrderID == "" {
		return models.OrderRecord{}, false, models.InvalidArgument("gateway order id is empty")
	}

	endpoint := s.BaseURL + "/api/orders/by-razorpay-order/" + url.PathEscape(gatewayOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.OrderRecord{}, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return models.OrderRecord{}, false, fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.OrderRecord{}, false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.OrderRecord{}, false, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.OrderRecord{}, false, fmt.Errorf("order service returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope models.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.OrderRecord{}, false, fmt.Errorf("failed to unmarshal order lookup: %w", err)
	}
	if !envelope.Success || len(envelope.Data) == 0 {
		return models.OrderRecord{}, false, nil
	}

	var record models.OrderRecord
	if err := json.Unmarshal(envelope.Data, &record); err != nil {
		return models.OrderRecord{}, false, fmt.Errorf("failed to unmarshal order record: %w", err)
	}
	return record, true, nil
}
