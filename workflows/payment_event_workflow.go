package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aswathylr-builds/payment-reconciliation/activities"
	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/reconcile"
)

// RetryPolicy configuration
type RetryPolicy = temporal.RetryPolicy

const (
	PaymentEventWorkflowName = "PaymentEventWorkflow"

	// QueryOutcome returns the outcome built so far
	QueryOutcome = "getOutcome"
)

// Activity names
const (
	ActivityResolveOrder      = "ResolveOrder"
	ActivityUpdateOrderStatus = "UpdateOrderStatus"
	ActivitySendNotification  = "SendNotification"
	ActivityRecordOutcome     = "RecordOutcome"
)

// DefaultCallTimeout bounds each activity when the request carries none
const DefaultCallTimeout = 5 * time.Second

// PaymentEventRequest is the workflow input
type PaymentEventRequest struct {
	DeliveryID  string
	Event       models.PaymentEvent
	CallTimeout time.Duration
}

// WorkflowID is payment-<event>-<gatewayPaymentId>; redeliveries of one
// event share it.
func WorkflowID(event models.PaymentEvent) string {
	return fmt.Sprintf("payment-%s-%s", event.EventName, event.GatewayPaymentID)
}

// PaymentEventWorkflow reconciles one verified, classified payment event.
// Every stage runs once; a failing stage is recorded on the outcome and the
// remaining stages still run, so the workflow itself only fails if the
// outcome cannot be produced at all.
func PaymentEventWorkflow(ctx workflow.Context, req PaymentEventRequest) (models.Outcome, error) {
	logger := workflow.GetLogger(ctx)
	event := req.Event
	logger.Info("Payment event workflow started", "delivery_id", req.DeliveryID, "event", event.EventName, "payment_id", event.GatewayPaymentID)

	outcome := models.NewOutcome(req.DeliveryID, event)
	outcome.Action = reconcile.Classify(event.EventName)
	outcome.Dispatched = true

	err := workflow.SetQueryHandler(ctx, QueryOutcome, func() (models.Outcome, error) {
		return outcome, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
		return outcome, err
	}

	timeout := req.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	// resolution runs up to three lookups
	resolveCtx := workflow.WithStartToCloseTimeout(ctx, 3*timeout)

	if outcome.Action != models.ActionIgnored {
		reconcileStages(ctx, resolveCtx, event, &outcome)
	}

	outcome.ProcessedAt = workflow.Now(ctx)
	if err := workflow.ExecuteActivity(ctx, ActivityRecordOutcome, outcome).Get(ctx, nil); err != nil {
		logger.Warn("Recording outcome failed but event reconciled", "delivery_id", req.DeliveryID, "error", err)
	}

	logger.Info("Payment event workflow completed",
		"delivery_id", req.DeliveryID,
		"order_id", outcome.OrderID,
		"transition_applied", outcome.TransitionApplied,
		"notification_sent", outcome.NotificationSent,
		"failure_stage", outcome.FailureStage)
	return outcome, nil
}

func reconcileStages(ctx, resolveCtx workflow.Context, event models.PaymentEvent, outcome *models.Outcome) {
	logger := workflow.GetLogger(ctx)

	var resolution activities.Resolution
	err := workflow.ExecuteActivity(resolveCtx, ActivityResolveOrder, event).Get(ctx, &resolution)
	if err != nil || !resolution.Found {
		logger.Error("Could not resolve order for payment event", "payment_id", event.GatewayPaymentID, "gateway_order_id", event.GatewayOrderID, "error", err)
		outcome.Fail(models.StageResolution)
		return
	}
	outcome.OrderID = resolution.OrderID

	var applied bool
	err = workflow.ExecuteActivity(ctx, ActivityUpdateOrderStatus, outcome.Action, resolution.OrderID).Get(ctx, &applied)
	if err != nil {
		logger.Warn("Status update failed, continuing with notification", "order_id", resolution.OrderID, "error", err)
		outcome.Fail(models.StageStatusUpdate)
	}
	outcome.TransitionApplied = applied

	var notification activities.Notification
	err = workflow.ExecuteActivity(ctx, ActivitySendNotification, event, resolution.OrderID).Get(ctx, &notification)
	if err != nil {
		logger.Warn("Notification failed but payment reconciled", "order_id", resolution.OrderID, "error", err)
		outcome.Fail(models.StageNotification)
	}
	outcome.NotificationSent = notification.Sent
	outcome.NotificationDeduplicated = notification.Deduplicated
}
