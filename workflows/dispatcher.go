package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/reconcile"
)

// WorkflowStarter is the part of client.Client the dispatcher uses
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// DefaultCompletionWait bounds how long the dispatcher waits for a workflow
// result before leaving its journal entry pending.
const DefaultCompletionWait = 10 * time.Minute

// Dispatcher starts a PaymentEventWorkflow per actionable event and returns
// without waiting for it.
type Dispatcher struct {
	starter     WorkflowStarter
	taskQueue   string
	callTimeout time.Duration
	dedup       bool
	logger      log.Logger
	now         func() time.Time

	completions    reconcile.Recorder
	completionWait time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

var _ reconcile.Dispatcher = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithCompletionRecorder records each workflow's final outcome once it
// completes, replacing the pending entry written at dispatch. A wait <= 0
// uses DefaultCompletionWait.
func WithCompletionRecorder(r reconcile.Recorder, wait time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.completions = r
		if wait > 0 {
			d.completionWait = wait
		}
	}
}

// NewDispatcher creates a dispatcher. With dedup set, a second delivery of
// an event whose workflow already ran is acknowledged without side effects.
func NewDispatcher(starter WorkflowStarter, taskQueue string, callTimeout time.Duration, dedup bool, logger log.Logger, opts ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		starter:        starter,
		taskQueue:      taskQueue,
		callTimeout:    callTimeout,
		dedup:          dedup,
		logger:         logger,
		now:            time.Now,
		completionWait: DefaultCompletionWait,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close stops waiting for outstanding workflow results
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// Dispatch implements reconcile.Dispatcher
func (d *Dispatcher) Dispatch(ctx context.Context, deliveryID string, event models.PaymentEvent) (models.Outcome, error) {
	reuse := enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE
	if d.dedup {
		reuse = enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE
	}

	options := client.StartWorkflowOptions{
		ID:                                       WorkflowID(event),
		TaskQueue:                                d.taskQueue,
		WorkflowIDReusePolicy:                    reuse,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	outcome := models.NewOutcome(deliveryID, event)
	outcome.Action = reconcile.Classify(event.EventName)
	outcome.Dispatched = true
	outcome.ProcessedAt = d.now()

	run, err := d.starter.ExecuteWorkflow(ctx, options, PaymentEventWorkflowName, PaymentEventRequest{
		DeliveryID:  deliveryID,
		Event:       event,
		CallTimeout: d.callTimeout,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if d.dedup && errors.As(err, &started) {
			d.logger.Info("Duplicate delivery, workflow already started", "workflow_id", options.ID, "delivery_id", deliveryID)
			outcome.NotificationDeduplicated = true
			return outcome, nil
		}
		return models.Outcome{}, fmt.Errorf("failed to start workflow %s: %w", options.ID, err)
	}

	d.logger.Info("Payment event dispatched", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "delivery_id", deliveryID)

	if d.completions != nil {
		outcome.Pending = true
		d.wg.Add(1)
		go d.awaitCompletion(run, deliveryID)
	}
	return outcome, nil
}

func (d *Dispatcher) awaitCompletion(run client.WorkflowRun, deliveryID string) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.completionWait)
	defer cancel()

	var outcome models.Outcome
	if err := run.Get(ctx, &outcome); err != nil {
		d.logger.Warn("No workflow result, journal entry stays pending", "workflow_id", run.GetID(), "delivery_id", deliveryID, "error", err)
		return
	}
	if outcome.DeliveryID == "" {
		outcome.DeliveryID = deliveryID
	}
	outcome.Pending = false

	if err := d.completions.Record(context.WithoutCancel(ctx), outcome); err != nil {
		d.logger.Warn("Failed to journal workflow outcome", "delivery_id", deliveryID, "error", err)
	}
}
