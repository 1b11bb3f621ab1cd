package models

import "time"

// FailureStage names the first reconciliation stage that failed
type FailureStage string

const (
	StageNone         FailureStage = "none"
	StageSignature    FailureStage = "signature"
	StageParse        FailureStage = "parse"
	StageResolution   FailureStage = "resolution"
	StageStatusUpdate FailureStage = "status_update"
	StageNotification FailureStage = "notification"
)

// Outcome records what happened to one webhook delivery. It is logged,
// journaled and published, never returned to the gateway. Pending marks the
// entry written when an event is handed to a workflow, before the workflow
// reports its result.
type Outcome struct {
	DeliveryID               string       `json:"delivery_id"`
	EventName                string       `json:"event_name"`
	Action                   Action       `json:"action"`
	GatewayPaymentID         string       `json:"gateway_payment_id,omitempty"`
	GatewayOrderID           string       `json:"gateway_order_id,omitempty"`
	OrderID                  int64        `json:"order_id,omitempty"`
	TransitionApplied        bool         `json:"transition_applied"`
	NotificationSent         bool         `json:"notification_sent"`
	NotificationDeduplicated bool         `json:"notification_deduplicated,omitempty"`
	Dispatched               bool         `json:"dispatched,omitempty"`
	Pending                  bool         `json:"pending,omitempty"`
	FailureStage             FailureStage `json:"failure_stage"`
	ProcessedAt              time.Time    `json:"processed_at"`
}

// NewOutcome starts an outcome for the given delivery and event
func NewOutcome(deliveryID string, event PaymentEvent) Outcome {
	return Outcome{
		DeliveryID:       deliveryID,
		EventName:        event.EventName,
		Action:           ActionIgnored,
		GatewayPaymentID: event.GatewayPaymentID,
		GatewayOrderID:   event.GatewayOrderID,
		FailureStage:     StageNone,
	}
}

// Fail records stage as the failure stage unless an earlier stage already failed
func (o *Outcome) Fail(stage FailureStage) {
	if o.FailureStage == "" || o.FailureStage == StageNone {
		o.FailureStage = stage
	}
}

// Failed reports whether any stage failed
func (o Outcome) Failed() bool {
	return o.FailureStage != "" && o.FailureStage != StageNone
}
