package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Defaults applied when creating a gateway order
const (
	DefaultCurrency = "INR"
	ReceiptPrefix   = "order_"
	NotesSource     = "ecommerce-platform"
)

// Verification outcomes reported to direct callers
const (
	VerificationSuccess = "SUCCESS"
	VerificationFailed  = "FAILED"
)

// GatewayOrder is an order as the payment gateway reports it
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes,omitempty"`
}

// GatewayPayment is a payment as the payment gateway reports it
type GatewayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Email    string `json:"email,omitempty"`
}

// OrderNotes are the notes sent when creating a gateway order. Values keep
// their JSON type, so order_id travels as a number.
type OrderNotes map[string]any

// CreateOrderParams is the gateway-side create-order request
type CreateOrderParams struct {
	Amount   int64      `json:"amount"`
	Currency string     `json:"currency"`
	Receipt  string     `json:"receipt"`
	Notes    OrderNotes `json:"notes,omitempty"`
}

// CreateOrderRequest is the client-initiated create-order request.
// Amount is in major currency units.
type CreateOrderRequest struct {
	OrderID  int64       `json:"orderId"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency,omitempty"`
	Receipt  string      `json:"receipt,omitempty"`
}

// VerifyPaymentRequest is the client-initiated checkout verification request
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpayOrderId"`
	RazorpayPaymentID string `json:"razorpayPaymentId"`
	RazorpaySignature string `json:"razorpaySignature"`
}

// PaymentResponse is returned by every client-initiated payment operation
type PaymentResponse struct {
	TransactionID   string `json:"transactionId,omitempty"`
	RazorpayOrderID string `json:"razorpayOrderId,omitempty"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	Amount          int64  `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
}

// Envelope wraps payment API responses and Order Store replies
type Envelope struct {
	Data     json.RawMessage `json:"data,omitempty"`
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Response string          `json:"response,omitempty"`
}

// MinorUnits converts a major-unit decimal amount to minor units. Digits past
// the second decimal place are truncated.
func MinorUnits(amount string) (int64, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, InvalidArgument("amount is required")
	}
	if strings.HasPrefix(s, "-") {
		return 0, InvalidArgument("order amount must be greater than zero")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseUint(whole, 10, 62)
	if err != nil {
		return 0, InvalidArgument("invalid amount %q", amount)
	}
	f, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, InvalidArgument("invalid amount %q", amount)
	}
	if w > (1<<62)/100 {
		return 0, InvalidArgument("amount %q out of range", amount)
	}

	minor := int64(w)*100 + int64(f)
	if minor <= 0 {
		return 0, InvalidArgument("order amount must be greater than zero")
	}
	return minor, nil
}
