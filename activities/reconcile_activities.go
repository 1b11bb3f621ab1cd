package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// Error types reported by failing activities
const (
	ErrTypeStatusUpdate = "StatusUpdateFailed"
	ErrTypeNotification = "NotificationFailed"
)

// Stages are the reconciliation steps the activities run. The orchestrator
// implements them; the activities only move them onto a worker.
type Stages interface {
	ResolveOrder(ctx context.Context, event models.PaymentEvent) (int64, bool)
	ApplyTransition(ctx context.Context, action models.Action, orderID int64) (bool, error)
	Notify(ctx context.Context, event models.PaymentEvent, orderID int64) (sent bool, deduplicated bool, err error)
	Finish(ctx context.Context, outcome models.Outcome)
}

// Resolution is the result of ResolveOrder
type Resolution struct {
	OrderID int64
	Found   bool
}

// Notification is the result of SendNotification
type Notification struct {
	Sent         bool
	Deduplicated bool
}

// ReconcileActivities contains the payment reconciliation activities
type ReconcileActivities struct {
	Stages Stages
}

// NewReconcileActivities creates the activities around stages
func NewReconcileActivities(stages Stages) *ReconcileActivities {
	return &ReconcileActivities{Stages: stages}
}

// ResolveOrder maps the event's gateway reference to an internal order.
// Not finding one is a result, not an error.
func (a *ReconcileActivities) ResolveOrder(ctx context.Context, event models.PaymentEvent) (Resolution, error) {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Resolving order", "payment_id", event.GatewayPaymentID, "gateway_order_id", event.GatewayOrderID)
	}

	orderID, found := a.Stages.ResolveOrder(ctx, event)
	return Resolution{OrderID: orderID, Found: found}, nil
}

// UpdateOrderStatus applies the status transition implied by action. Store
// failures are non-retryable: the gateway redelivers, so the core does not.
func (a *ReconcileActivities) UpdateOrderStatus(ctx context.Context, action models.Action, orderID int64) (bool, error) {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Updating order status", "order_id", orderID, "action", action)
	}

	applied, err := a.Stages.ApplyTransition(ctx, action, orderID)
	if err != nil {
		return false, temporal.NewNonRetryableApplicationError("order status update failed", ErrTypeStatusUpdate, err)
	}
	return applied, nil
}

// SendNotification emails the payer when the event calls for it
func (a *ReconcileActivities) SendNotification(ctx context.Context, event models.PaymentEvent, orderID int64) (Notification, error) {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Sending payment notification", "order_id", orderID, "event", event.EventName)
	}

	sent, deduplicated, err := a.Stages.Notify(ctx, event, orderID)
	if err != nil {
		return Notification{}, temporal.NewNonRetryableApplicationError("notification failed", ErrTypeNotification, err)
	}
	return Notification{Sent: sent, Deduplicated: deduplicated}, nil
}

// RecordOutcome journals and publishes the final outcome
func (a *ReconcileActivities) RecordOutcome(ctx context.Context, outcome models.Outcome) error {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Recording outcome", "delivery_id", outcome.DeliveryID, "failure_stage", outcome.FailureStage)
	}

	a.Stages.Finish(ctx, outcome)
	return nil
}
