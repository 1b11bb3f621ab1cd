// Package reconcile turns verified gateway webhooks into order status
// transitions and customer notifications.
//
// One delivery moves through verify → parse → classify → resolve → apply →
// notify. Only a bad signature is reported back to the caller; every later
// failure is logged, recorded on the Outcome, and absorbed so the gateway
// receives an acknowledgment.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/notifier"
	"github.com/aswathylr-builds/payment-reconciliation/orderstore"
	"github.com/aswathylr-builds/payment-reconciliation/resolver"
	"github.com/aswathylr-builds/payment-reconciliation/signature"
)

// Notification templates
const (
	ConfirmationDetails     = "Your payment has been confirmed successfully."
	DefaultErrorCode        = "UNKNOWN"
	DefaultErrorDescription = "Payment failed"
)

// OrderResolver resolves a gateway order reference to an internal order id
type OrderResolver interface {
	Resolve(ctx context.Context, ref resolver.Reference) (int64, bool)
}

// Recorder keeps processed outcomes
type Recorder interface {
	Record(ctx context.Context, outcome models.Outcome) error
}

// Publisher announces processed outcomes to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, outcome models.Outcome) error
}

// Claimer is an insert-if-absent key store. Claim returns false when key was
// already claimed.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher hands a classified event to durable processing. A returned
// error makes the orchestrator process the event inline instead.
type Dispatcher interface {
	Dispatch(ctx context.Context, deliveryID string, event models.PaymentEvent) (models.Outcome, error)
}

// Orchestrator reconciles webhook deliveries. It holds no per-delivery state
// and is safe for concurrent use.
type Orchestrator struct {
	webhookSecret string
	resolver      OrderResolver
	store         orderstore.Store
	sender        notifier.Sender
	logger        log.Logger

	callTimeout time.Duration
	recorder    Recorder
	publisher   Publisher
	claims      Claimer
	dispatcher  Dispatcher

	newID func() string
	now   func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCallTimeout bounds each collaborator call
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithRecorder journals every outcome
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPublisher publishes every outcome
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithNotificationDedup suppresses repeat notifications for the same
// event and payment id.
func WithNotificationDedup(c Claimer) Option {
	return func(o *Orchestrator) { o.claims = c }
}

// WithDispatcher routes actionable events to durable processing
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithClock overrides the clock and delivery id source
func WithClock(now func() time.Time, newID func() string) Option {
	return func(o *Orchestrator) {
		o.now = now
		o.newID = newID
	}
}

// New creates an orchestrator. An empty webhookSecret disables signature
// verification.
func New(webhookSecret string, res OrderResolver, store orderstore.Store, sender notifier.Sender, logger log.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		webhookSecret: webhookSecret,
		resolver:      res,
		store:         store,
		sender:        sender,
		logger:        logger,
		callTimeout:   5 * time.Second,
		newID:         uuid.NewString,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleWebhook processes one delivery. The only error it returns is
// models.ErrSignatureInvalid; everything else is acknowledged.
func (o *Orchestrator) HandleWebhook(ctx context.Context, signatureHeader string, body []byte) (models.Outcome, error) {
	deliveryID := o.newID()

	if !signature.Configured(o.webhookSecret) {
		o.logger.Warn("Webhook secret not configured, skipping signature verification", "delivery_id", deliveryID)
	}
	if !signature.Verify(body, signatureHeader, o.webhookSecret) {
		o.logger.Error("Invalid webhook signature received", "delivery_id", deliveryID)
		return models.Outcome{
			DeliveryID:   deliveryID,
			FailureStage: models.StageSignature,
			ProcessedAt:  o.now(),
		}, models.ErrSignatureInvalid
	}

	event, err := ParseEvent(body)
	if err != nil {
		return o.rejectPayload(ctx, deliveryID, event, err), nil
	}

	action := Classify(event.EventName)
	outcome := models.NewOutcome(deliveryID, event)
	outcome.Action = action

	o.logger.Info("Webhook received",
		"delivery_id", deliveryID,
		"event", event.EventName,
		"payment_id", event.GatewayPaymentID,
		"gateway_order_id", event.GatewayOrderID,
		"status", event.Status)

	if action == models.ActionIgnored {
		o.logger.Info("Unhandled webhook event", "delivery_id", deliveryID, "event", event.EventName)
		outcome.ProcessedAt = o.now()
		o.Finish(ctx, outcome)
		return outcome, nil
	}

	if err := requirePayment(event); err != nil {
		return o.rejectPayload(ctx, deliveryID, event, err), nil
	}

	if o.dispatcher != nil {
		dispatched, err := o.dispatcher.Dispatch(ctx, deliveryID, event)
		if err == nil {
			// the workflow publishes its own outcome; the journal entry
			// stays pending until the dispatcher records the result
			o.record(ctx, dispatched)
			return dispatched, nil
		}
		o.logger.Error("Durable dispatch failed, processing inline", "delivery_id", deliveryID, "error", err)
	}

	return o.Process(ctx, deliveryID, event), nil
}

func (o *Orchestrator) rejectPayload(ctx context.Context, deliveryID string, event models.PaymentEvent, err error) models.Outcome {
	o.logger.Error("Malformed webhook payload", "delivery_id", deliveryID, "error", err)
	outcome := models.NewOutcome(deliveryID, event)
	outcome.Action = Classify(event.EventName)
	outcome.Fail(models.StageParse)
	outcome.ProcessedAt = o.now()
	o.Finish(ctx, outcome)
	return outcome
}

// Process runs resolve, apply and notify for a classified event and records
// the outcome. It never fails; failures are reported on the Outcome.
func (o *Orchestrator) Process(ctx context.Context, deliveryID string, event models.PaymentEvent) (outcome models.Outcome) {
	outcome = models.NewOutcome(deliveryID, event)
	outcome.Action = Classify(event.EventName)
	defer func() {
		outcome.ProcessedAt = o.now()
		o.Finish(ctx, outcome)
	}()

	if outcome.Action == models.ActionIgnored {
		return outcome
	}

	orderID, ok := o.ResolveOrder(ctx, event)
	if !ok {
		o.logger.Error("Could not resolve order for payment event",
			"delivery_id", deliveryID,
			"payment_id", event.GatewayPaymentID,
			"gateway_order_id", event.GatewayOrderID)
		outcome.Fail(models.StageResolution)
		return outcome
	}
	outcome.OrderID = orderID

	applied, err := o.ApplyTransition(ctx, outcome.Action, orderID)
	outcome.TransitionApplied = applied
	if err != nil {
		outcome.Fail(models.StageStatusUpdate)
	}

	sent, deduplicated, err := o.Notify(ctx, event, orderID)
	outcome.NotificationSent = sent
	outcome.NotificationDeduplicated = deduplicated
	if err != nil {
		outcome.Fail(models.StageNotification)
	}

	o.logger.Info("Payment event reconciled",
		"delivery_id", deliveryID,
		"action", outcome.Action,
		"order_id", orderID,
		"transition_applied", outcome.TransitionApplied,
		"notification_sent", outcome.NotificationSent,
		"failure_stage", outcome.FailureStage)
	return outcome
}

// ResolveOrder finds the internal order an event refers to
func (o *Orchestrator) ResolveOrder(ctx context.Context, event models.PaymentEvent) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout*3)
	defer cancel()
	return o.resolver.Resolve(ctx, resolver.ReferenceFor(event))
}

// ApplyTransition writes the status change an action implies. Only
// authorized and captured payments change status, always to CONFIRMED.
func (o *Orchestrator) ApplyTransition(ctx context.Context, action models.Action, orderID int64) (bool, error) {
	if action != models.ActionAuthorized && action != models.ActionCaptured {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	if err := o.store.UpdateStatus(ctx, orderID, models.StatusConfirmed); err != nil {
		o.logger.Error("Failed to update order status", "order_id", orderID, "status", models.StatusConfirmed, "error", err)
		return false, err
	}
	o.logger.Info("Order status updated", "order_id", orderID, "status", models.StatusConfirmed, "action", action)
	return true, nil
}

// Notify sends the email an event calls for: a confirmation for captured
// payments, a failure notice for failed ones. Events without an email send
// nothing.
func (o *Orchestrator) Notify(ctx context.Context, event models.PaymentEvent, orderID int64) (sent bool, deduplicated bool, err error) {
	action := Classify(event.EventName)
	if !event.HasEmail() || (action != models.ActionCaptured && action != models.ActionFailed) {
		return false, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	key := "notify:" + event.EventName + ":" + event.GatewayPaymentID
	if o.claims != nil {
		first, err := o.claims.Claim(ctx, key)
		if err != nil {
			o.logger.Warn("Notification dedup unavailable, sending anyway", "payment_id", event.GatewayPaymentID, "error", err)
		} else if !first {
			o.logger.Info("Notification already sent for payment", "payment_id", event.GatewayPaymentID, "event", event.EventName)
			return false, true, nil
		}
	}

	switch action {
	case models.ActionCaptured:
		err = o.sender.SendOrderConfirmation(ctx, event.Email, orderID, ConfirmationDetails)
	case models.ActionFailed:
		code, description := failureReason(event)
		o.logger.Warn("Payment failed", "payment_id", event.GatewayPaymentID, "order_id", orderID, "error_code", code, "error_description", description)
		err = o.sender.SendEmail(ctx, event.Email, FailureSubject(orderID), FailureBody(description))
	}

	if err != nil {
		o.logger.Error("Failed to send notification", "order_id", orderID, "email", event.Email, "action", action, "error", err)
		if o.claims != nil {
			if rerr := o.claims.Release(ctx, key); rerr != nil {
				o.logger.Warn("Failed to release notification claim", "key", key, "error", rerr)
			}
		}
		return false, false, err
	}

	o.logger.Info("Notification sent", "order_id", orderID, "email", event.Email, "action", action)
	return true, false, nil
}

// Finish journals and publishes an outcome. Failures are logged only.
func (o *Orchestrator) Finish(ctx context.Context, outcome models.Outcome) {
	o.record(ctx, outcome)
	if o.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
		if err := o.publisher.Publish(pctx, outcome); err != nil {
			o.logger.Warn("Failed to publish outcome", "delivery_id", outcome.DeliveryID, "error", err)
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, outcome models.Outcome) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, outcome); err != nil {
		o.logger.Warn("Failed to journal outcome", "delivery_id", outcome.DeliveryID, "error", err)
	}
}

func failureReason(event models.PaymentEvent) (string, string) {
	code, description := event.ErrorCode, event.ErrorDescription
	if code == "" {
		code = DefaultErrorCode
	}
	if description == "" {
		description = DefaultErrorDescription
	}
	return code, description
}

// FailureSubject is the subject line of the payment-failure email
func FailureSubject(orderID int64) string {
	return fmt.Sprintf("Payment Failed - Order #%d", orderID)
}

// FailureBody is the payment-failure email text
func FailureBody(description string) string {
	return "Your payment attempt failed. Reason: " + description +
		"\n\nPlease try again or contact support if the issue persists."
}
