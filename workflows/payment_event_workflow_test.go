package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/aswathylr-builds/payment-reconciliation/activities"
	"github.com/aswathylr-builds/payment-reconciliation/models"
)

var capturedEvent = models.PaymentEvent{
	EventName:        models.EventPaymentCaptured,
	GatewayPaymentID: "pay_1",
	GatewayOrderID:   "order_GW1",
	Email:            "a@b.com",
	Notes:            models.Notes{"order_id": "10"},
}

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *activities.ReconcileActivities) {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	acts := activities.NewReconcileActivities(nil)
	env.RegisterActivity(acts)
	env.RegisterWorkflow(PaymentEventWorkflow)
	return env, acts
}

func runWorkflow(t *testing.T, env *testsuite.TestWorkflowEnvironment, event models.PaymentEvent) models.Outcome {
	t.Helper()
	env.ExecuteWorkflow(PaymentEventWorkflow, PaymentEventRequest{DeliveryID: "d1", Event: event, CallTimeout: time.Second})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome models.Outcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	return outcome
}

func TestPaymentEventWorkflow_Captured(t *testing.T) {
	env, acts := newEnv(t)
	env.OnActivity(acts.ResolveOrder, mock.Anything, mock.Anything).Return(activities.Resolution{OrderID: 10, Found: true}, nil)
	env.OnActivity(acts.UpdateOrderStatus, mock.Anything, models.ActionCaptured, int64(10)).Return(true, nil)
	env.OnActivity(acts.SendNotification, mock.Anything, mock.Anything, int64(10)).Return(activities.Notification{Sent: true}, nil)
	env.OnActivity(acts.RecordOutcome, mock.Anything, mock.Anything).Return(nil)

	outcome := runWorkflow(t, env, capturedEvent)

	assert.Equal(t, "d1", outcome.DeliveryID)
	assert.Equal(t, models.ActionCaptured, outcome.Action)
	assert.Equal(t, int64(10), outcome.OrderID)
	assert.True(t, outcome.TransitionApplied)
	assert.True(t, outcome.NotificationSent)
	assert.True(t, outcome.Dispatched)
	assert.Equal(t, models.StageNone, outcome.FailureStage)
	env.AssertExpectations(t)
}

func TestPaymentEventWorkflow_UnresolvedSkipsSideEffects(t *testing.T) {
	env, acts := newEnv(t)
	env.OnActivity(acts.ResolveOrder, mock.Anything, mock.Anything).Return(activities.Resolution{}, nil)
	env.OnActivity(acts.RecordOutcome, mock.Anything, mock.Anything).Return(nil)

	outcome := runWorkflow(t, env, capturedEvent)

	assert.Equal(t, models.StageResolution, outcome.FailureStage)
	env.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "SendNotification", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentEventWorkflow_StatusFailureStillNotifies(t *testing.T) {
	env, acts := newEnv(t)
	env.OnActivity(acts.ResolveOrder, mock.Anything, mock.Anything).Return(activities.Resolution{OrderID: 10, Found: true}, nil)
	env.OnActivity(acts.UpdateOrderStatus, mock.Anything, mock.Anything, mock.Anything).
		Return(false, temporal.NewNonRetryableApplicationError("order status update failed", activities.ErrTypeStatusUpdate, errors.New("down")))
	env.OnActivity(acts.SendNotification, mock.Anything, mock.Anything, int64(10)).Return(activities.Notification{Sent: true}, nil)
	env.OnActivity(acts.RecordOutcome, mock.Anything, mock.Anything).Return(nil)

	outcome := runWorkflow(t, env, capturedEvent)

	assert.False(t, outcome.TransitionApplied)
	assert.True(t, outcome.NotificationSent)
	assert.Equal(t, models.StageStatusUpdate, outcome.FailureStage)
}

func TestPaymentEventWorkflow_NotificationFailureDoesNotFailWorkflow(t *testing.T) {
	env, acts := newEnv(t)
	env.OnActivity(acts.ResolveOrder, mock.Anything, mock.Anything).Return(activities.Resolution{OrderID: 10, Found: true}, nil)
	env.OnActivity(acts.UpdateOrderStatus, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	env.OnActivity(acts.SendNotification, mock.Anything, mock.Anything, mock.Anything).
		Return(activities.Notification{}, temporal.NewNonRetryableApplicationError("notification failed", activities.ErrTypeNotification, errors.New("smtp")))
	env.OnActivity(acts.RecordOutcome, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	outcome := runWorkflow(t, env, capturedEvent)

	assert.True(t, outcome.TransitionApplied)
	assert.Equal(t, models.StageNotification, outcome.FailureStage)
}

func TestPaymentEventWorkflow_IgnoredEventOnlyRecords(t *testing.T) {
	env, acts := newEnv(t)
	env.OnActivity(acts.RecordOutcome, mock.Anything, mock.Anything).Return(nil)

	outcome := runWorkflow(t, env, models.PaymentEvent{EventName: "refund.created", GatewayPaymentID: "pay_1"})

	assert.Equal(t, models.ActionIgnored, outcome.Action)
	env.AssertNotCalled(t, "ResolveOrder", mock.Anything, mock.Anything)
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "payment-payment.captured-pay_1", WorkflowID(capturedEvent))
}
