// Package notifier sends templated emails through the notification service
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// Sender is the Notification Sender collaborator
type Sender interface {
	SendOrderConfirmation(ctx context.Context, email string, orderID int64, details string) error
	SendEmail(ctx context.Context, to, subject, body string) error
}

// HTTPSender calls the notification service's REST API
type HTTPSender struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ Sender = (*HTTPSender)(nil)

// New creates a notification client whose calls are bounded by timeout
func New(baseURL string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendOrderConfirmation sends the order-confirmation template
func (s *HTTPSender) SendOrderConfirmation(ctx context.Context, email string, orderID int64, details string) error {
	if email == "" {
		return models.InvalidArgument("recipient email is empty")
	}
	return s.post(ctx, "/api/notifications/order-confirmation", models.OrderConfirmationRequest{
		Email:        email,
		OrderID:      orderID,
		OrderDetails: details,
	})
}

// SendEmail sends a plain email
func (s *HTTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return models.InvalidArgument("recipient email is empty")
	}
	return s.post(ctx, "/api/notifications/email", models.EmailRequest{
		To:      to,
		Subject: subject,
		Body:    body,
	})
}

func (s *HTTPSender) post(ctx context.Context, path string, payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification service returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
