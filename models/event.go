package models

import (
	"bytes"
	"encoding/json"
)

// Gateway event names the classifier acts on
const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
)

// NoteOrderID is the notes key carrying the internal order id
const NoteOrderID = "order_id"

// Action is the payment-lifecycle action derived from an event name
type Action string

const (
	ActionAuthorized Action = "authorized"
	ActionCaptured   Action = "captured"
	ActionFailed     Action = "failed"
	ActionIgnored    Action = "ignored"
)

// PaymentEvent is one webhook delivery, decoded once at the parse boundary.
// Empty Email, ErrorCode and ErrorDescription mean the gateway did not send them.
type PaymentEvent struct {
	EventName        string `json:"event_name"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	Status           string `json:"status"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	Email            string `json:"email,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Notes            Notes  `json:"notes,omitempty"`
}

// HasEmail reports whether the payer email was present on the event
func (e PaymentEvent) HasEmail() bool {
	return e.Email != ""
}

// Notes is the opaque key-value map attached to a gateway order at creation.
// Values are kept as text; numeric values keep their JSON literal form.
type Notes map[string]string

// Get returns the value stored under key
func (n Notes) Get(key string) (string, bool) {
	if n == nil {
		return "", false
	}
	v, ok := n[key]
	return v, ok
}

// UnmarshalJSON accepts an object with scalar values, null, or an array.
// The gateway sends an empty array when an order has no notes.
func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*n = Notes{}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}

	out := make(Notes, len(raw))
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
			continue
		}
		out[key] = string(bytes.TrimSpace(value))
	}
	*n = out
	return nil
}
