// Package payments implements the client-initiated payment operations:
// creating gateway orders, verifying checkout signatures and looking up
// payment status.
package payments

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/gateway"
	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// Service wraps the gateway client with request validation and defaults
type Service struct {
	gateway   gateway.Client
	keySecret string
	logger    log.Logger
}

// NewService creates a payment service. keySecret is the gateway API secret
// used to verify checkout signatures.
func NewService(client gateway.Client, keySecret string, logger log.Logger) *Service {
	return &Service{gateway: client, keySecret: keySecret, logger: logger}
}

// CreateOrder registers a gateway order for an internal order. The internal
// order id travels in the order notes and, by default, in the receipt so
// webhooks can be traced back to it.
func (s *Service) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.PaymentResponse, error) {
	s.logger.Debug("Creating gateway order", "order_id", req.OrderID, "amount", req.Amount.String())

	if req.OrderID <= 0 {
		return models.PaymentResponse{}, models.InvalidArgument("invalid order ID: %d", req.OrderID)
	}
	amount, err := models.MinorUnits(req.Amount.String())
	if err != nil {
		return models.PaymentResponse{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = fmt.Sprintf("%s%d", models.ReceiptPrefix, req.OrderID)
	}

	order, err := s.gateway.CreateOrder(ctx, models.CreateOrderParams{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: models.OrderNotes{
			models.NoteOrderID: req.OrderID,
			"source":           models.NotesSource,
		},
	})
	if err != nil {
		s.logger.Error("Failed to create gateway order", "order_id", req.OrderID, "error", err)
		return models.PaymentResponse{}, fmt.Errorf("failed to create gateway order: %w", err)
	}

	s.logger.Info("Gateway order created", "order_id", req.OrderID, "gateway_order_id", order.ID)
	return models.PaymentResponse{
		RazorpayOrderID: order.ID,
		Status:          order.Status,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Message:         "Razorpay order created successfully",
	}, nil
}

// VerifyPayment checks a checkout signature. A mismatch is a FAILED
// response, not an error.
func (s *Service) VerifyPayment(_ context.Context, req models.VerifyPaymentRequest) (models.PaymentResponse, error) {
	s.logger.Debug("Verifying payment", "gateway_order_id", req.RazorpayOrderID, "payment_id", req.RazorpayPaymentID)

	switch {
	case strings.TrimSpace(req.RazorpayOrderID) == "":
		return models.PaymentResponse{}, models.InvalidArgument("Razorpay order ID cannot be null or empty")
	case strings.TrimSpace(req.RazorpayPaymentID) == "":
		return models.PaymentResponse{}, models.InvalidArgument("Razorpay payment ID cannot be null or empty")
	case strings.TrimSpace(req.RazorpaySignature) == "":
		return models.PaymentResponse{}, models.InvalidArgument("Razorpay signature cannot be null or empty")
	}

	resp := models.PaymentResponse{
		TransactionID:   req.RazorpayPaymentID,
		RazorpayOrderID: req.RazorpayOrderID,
	}

	if s.gateway.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, s.keySecret) {
		s.logger.Info("Payment verified", "payment_id", req.RazorpayPaymentID, "gateway_order_id", req.RazorpayOrderID)
		resp.Status = models.VerificationSuccess
		resp.Message = "Payment verified successfully"
		return resp, nil
	}

	s.logger.Warn("Payment verification failed, invalid signature", "payment_id", req.RazorpayPaymentID)
	resp.Status = models.VerificationFailed
	resp.Message = "Payment verification failed - Invalid signature"
	return resp, nil
}

// GetPaymentStatus fetches a payment from the gateway. An unknown payment
// id wraps models.ErrNotFound.
func (s *Service) GetPaymentStatus(ctx context.Context, transactionID string) (models.PaymentResponse, error) {
	if strings.TrimSpace(transactionID) == "" {
		return models.PaymentResponse{}, models.InvalidArgument("Transaction ID cannot be null or empty")
	}

	payment, found, err := s.gateway.FetchPayment(ctx, transactionID)
	if err != nil {
		s.logger.Error("Failed to fetch payment status", "payment_id", transactionID, "error", err)
		return models.PaymentResponse{}, fmt.Errorf("failed to fetch payment status: %w", err)
	}
	if !found {
		return models.PaymentResponse{}, fmt.Errorf("payment %s: %w", transactionID, models.ErrNotFound)
	}

	return models.PaymentResponse{
		TransactionID:   payment.ID,
		RazorpayOrderID: payment.OrderID,
		Status:          payment.Status,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Message:         "Payment status retrieved successfully",
	}, nil
}
