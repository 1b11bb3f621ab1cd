package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity *paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string       `json:"id"`
	OrderID          string       `json:"order_id"`
	Status           string       `json:"status"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	Email            string       `json:"email"`
	ErrorCode        string       `json:"error_code"`
	ErrorDescription string       `json:"error_description"`
	Notes            models.Notes `json:"notes"`
}

// ParseEvent decodes a webhook body. Events without a payment entity decode
// to an event carrying only its name; whether that is acceptable depends on
// the action.
func ParseEvent(body []byte) (models.PaymentEvent, error) {
	var raw webhookBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.PaymentEvent{}, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	if raw.Event == "" {
		return models.PaymentEvent{}, fmt.Errorf("%w: missing event name", models.ErrMalformedPayload)
	}

	event := models.PaymentEvent{EventName: raw.Event}
	if raw.Payload.Payment == nil || raw.Payload.Payment.Entity == nil {
		return event, nil
	}

	entity := raw.Payload.Payment.Entity
	event.GatewayPaymentID = entity.ID
	event.GatewayOrderID = entity.OrderID
	event.Status = entity.Status
	event.AmountMinorUnits = entity.Amount
	event.Currency = entity.Currency
	event.Email = entity.Email
	event.ErrorCode = entity.ErrorCode
	event.ErrorDescription = entity.ErrorDescription
	event.Notes = entity.Notes
	return event, nil
}

// requirePayment checks the fields every actionable event must carry
func requirePayment(event models.PaymentEvent) error {
	if event.GatewayPaymentID == "" {
		return fmt.Errorf("%w: %s event has no payment entity", models.ErrMalformedPayload, event.EventName)
	}
	return nil
}
