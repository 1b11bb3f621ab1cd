package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// deliveriesClient reads the journal through a running server
type deliveriesClient struct {
	baseURL    string
	httpClient *http.Client
}

func newDeliveriesClient(baseURL string) *deliveriesClient {
	return &deliveriesClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/payments/webhook/deliveries",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *deliveriesClient) List(ctx context.Context, limit int) ([]models.Outcome, error) {
	endpoint := c.baseURL
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	outcomes := []models.Outcome{}
	return outcomes, c.get(ctx, endpoint, &outcomes)
}

func (c *deliveriesClient) Get(ctx context.Context, deliveryID string) (models.Outcome, error) {
	var outcome models.Outcome
	err := c.get(ctx, c.baseURL+"/"+url.PathEscape(deliveryID), &outcome)
	return outcome, err
}

func (c *deliveriesClient) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	var envelope models.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("server does not expose webhook deliveries, is journal_path set?")
		}
		return fmt.Errorf("failed to decode server response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", envelope.Message, models.ErrNotFound)
	case resp.StatusCode != http.StatusOK || !envelope.Success:
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, envelope.Message)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode outcomes: %w", err)
	}
	return nil
}
