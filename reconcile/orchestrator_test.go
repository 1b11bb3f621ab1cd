package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aswathylr-builds/payment-reconciliation/logging"
	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/resolver"
	"github.com/aswathylr-builds/payment-reconciliation/signature"
)

const testSecret = "whsec_test"

type mockStore struct{ mock.Mock }

func (m *mockStore) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	return m.Called(ctx, orderID, status).Error(0)
}

func (m *mockStore) FindByExternalReference(ctx context.Context, gatewayOrderID string) (models.OrderRecord, bool, error) {
	args := m.Called(ctx, gatewayOrderID)
	return args.Get(0).(models.OrderRecord), args.Bool(1), args.Error(2)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendOrderConfirmation(ctx context.Context, email string, orderID int64, details string) error {
	return m.Called(ctx, email, orderID, details).Error(0)
}

func (m *mockSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

type noReceipts struct{}

func (noReceipts) Receipt(context.Context, string) (string, bool, error) { return "", false, nil }

type recorded struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

func (r *recorded) Record(_ context.Context, o models.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *recorded) Publish(ctx context.Context, o models.Outcome) error { return r.Record(ctx, o) }

type memClaims struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *memClaims) Claim(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = map[string]bool{}
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

type stubDispatcher struct {
	err   error
	calls int
}

func (d *stubDispatcher) Dispatch(_ context.Context, deliveryID string, event models.PaymentEvent) (models.Outcome, error) {
	d.calls++
	if d.err != nil {
		return models.Outcome{}, d.err
	}
	outcome := models.NewOutcome(deliveryID, event)
	outcome.Action = Classify(event.EventName)
	outcome.Dispatched = true
	return outcome, nil
}

func newOrchestrator(store *mockStore, sender *mockSender, opts ...Option) *Orchestrator {
	res := resolver.New(noReceipts{}, store, logging.Nop())
	return New(testSecret, res, store, sender, logging.Nop(), opts...)
}

func capturedBody() []byte {
	return []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_GW1","status":"captured","amount":50000,"currency":"INR","email":"a@b.com","notes":{"order_id":"10"}}}}}`)
}

func failedBody() []byte {
	return []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_GW2","status":"failed","email":"a@b.com","error_code":"BAD_REQUEST_ERROR","error_description":"Insufficient funds","notes":{"order_id":"11"}}}}}`)
}

func signed(body []byte) string {
	return signature.Sign(body, testSecret)
}

func TestHandleWebhook_CapturedConfirmsAndNotifies(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, "a@b.com", int64(10), ConfirmationDetails).Return(nil)

	body := capturedBody()
	outcome, err := newOrchestrator(store, sender).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, models.ActionCaptured, outcome.Action)
	assert.Equal(t, int64(10), outcome.OrderID)
	assert.True(t, outcome.TransitionApplied)
	assert.True(t, outcome.NotificationSent)
	assert.Equal(t, models.StageNone, outcome.FailureStage)
	assert.NotEmpty(t, outcome.DeliveryID)
	store.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestHandleWebhook_FailedSendsFailureEmailOnly(t *testing.T) {
	store := &mockStore{}
	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, "a@b.com", "Payment Failed - Order #11",
		mock.MatchedBy(func(body string) bool { return strings.Contains(body, "Insufficient funds") })).Return(nil)

	body := failedBody()
	outcome, err := newOrchestrator(store, sender).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, outcome.Action)
	assert.False(t, outcome.TransitionApplied)
	assert.True(t, outcome.NotificationSent)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	sender.AssertExpectations(t)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	store := &mockStore{}
	sender := &mockSender{}
	journal := &recorded{}

	body := capturedBody()
	outcome, err := newOrchestrator(store, sender, WithRecorder(journal)).HandleWebhook(context.Background(), "deadbeef", body)

	assert.True(t, errors.Is(err, models.ErrSignatureInvalid))
	assert.Equal(t, models.StageSignature, outcome.FailureStage)
	assert.Empty(t, journal.outcomes)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_MissingSignatureHeader(t *testing.T) {
	_, err := newOrchestrator(&mockStore{}, &mockSender{}).HandleWebhook(context.Background(), "", capturedBody())
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestHandleWebhook_UnconfiguredSecretSkipsVerification(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, "a@b.com", int64(10), ConfirmationDetails).Return(nil)
	res := resolver.New(noReceipts{}, store, logging.Nop())

	outcome, err := New("", res, store, sender, logging.Nop()).HandleWebhook(context.Background(), "", capturedBody())

	require.NoError(t, err)
	assert.True(t, outcome.TransitionApplied)
}

func TestHandleWebhook_StatusUpdateFailureStillNotifies(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(errors.New("store down"))
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, "a@b.com", int64(10), ConfirmationDetails).Return(nil)

	body := capturedBody()
	outcome, err := newOrchestrator(store, sender).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.False(t, outcome.TransitionApplied)
	assert.True(t, outcome.NotificationSent)
	assert.Equal(t, models.StageStatusUpdate, outcome.FailureStage)
}

func TestHandleWebhook_NotificationFailureIsAbsorbed(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	body := capturedBody()
	outcome, err := newOrchestrator(store, sender).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.True(t, outcome.TransitionApplied)
	assert.False(t, outcome.NotificationSent)
	assert.Equal(t, models.StageNotification, outcome.FailureStage)
}

func TestHandleWebhook_UnresolvedOrder(t *testing.T) {
	store := &mockStore{}
	store.On("FindByExternalReference", mock.Anything, "order_GW9").Return(models.OrderRecord{}, false, nil)
	sender := &mockSender{}

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_GW9","email":"a@b.com"}}}}`)
	outcome, err := newOrchestrator(store, sender).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, models.StageResolution, outcome.FailureStage)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_IgnoredEvent(t *testing.T) {
	store := &mockStore{}
	sender := &mockSender{}
	journal := &recorded{}

	body := []byte(`{"event":"refund.created","payload":{}}`)
	outcome, err := newOrchestrator(store, sender, WithRecorder(journal)).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, models.ActionIgnored, outcome.Action)
	assert.False(t, outcome.Failed())
	require.Len(t, journal.outcomes, 1)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_MalformedPayloadAcknowledged(t *testing.T) {
	body := []byte(`{"event":`)
	outcome, err := newOrchestrator(&mockStore{}, &mockSender{}).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, models.StageParse, outcome.FailureStage)
}

func TestHandleWebhook_ActionableEventWithoutPayment(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	outcome, err := newOrchestrator(&mockStore{}, &mockSender{}).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, models.ActionCaptured, outcome.Action)
	assert.Equal(t, models.StageParse, outcome.FailureStage)
}

func TestHandleWebhook_AuthorizedWithoutEmail(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(12), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}

	body := []byte(`{"event":"payment.authorized","payload":{"payment":{"entity":{"id":"pay_3","notes":{"order_id":"12"}}}}}`)
	outcome, err := newOrchestrator(store, sender).HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.True(t, outcome.TransitionApplied)
	assert.False(t, outcome.NotificationSent)
	sender.AssertNotCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_RepeatedCaptureIsIdempotentOnStatus(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil).Twice()
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, "a@b.com", int64(10), ConfirmationDetails).Return(nil).Twice()
	o := newOrchestrator(store, sender)

	body := capturedBody()
	first, err := o.HandleWebhook(context.Background(), signed(body), body)
	require.NoError(t, err)
	second, err := o.HandleWebhook(context.Background(), signed(body), body)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.NotEqual(t, first.DeliveryID, second.DeliveryID)
	store.AssertNumberOfCalls(t, "UpdateStatus", 2)
	sender.AssertNumberOfCalls(t, "SendOrderConfirmation", 2)
}

func TestHandleWebhook_NotificationDedup(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, "a@b.com", int64(10), ConfirmationDetails).Return(nil).Once()
	o := newOrchestrator(store, sender, WithNotificationDedup(&memClaims{}))

	body := capturedBody()
	_, err := o.HandleWebhook(context.Background(), signed(body), body)
	require.NoError(t, err)
	second, err := o.HandleWebhook(context.Background(), signed(body), body)
	require.NoError(t, err)

	assert.True(t, second.NotificationDeduplicated)
	assert.False(t, second.NotificationSent)
	assert.False(t, second.Failed())
	store.AssertNumberOfCalls(t, "UpdateStatus", 2)
	sender.AssertNumberOfCalls(t, "SendOrderConfirmation", 1)
}

func TestHandleWebhook_DedupReleasesClaimOnFailure(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down")).Once()
	sender.On("SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	o := newOrchestrator(store, sender, WithNotificationDedup(&memClaims{}))

	body := capturedBody()
	first, _ := o.HandleWebhook(context.Background(), signed(body), body)
	second, _ := o.HandleWebhook(context.Background(), signed(body), body)

	assert.Equal(t, models.StageNotification, first.FailureStage)
	assert.True(t, second.NotificationSent)
}

func TestHandleWebhook_RecordsAndPublishes(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	journal := &recorded{}
	published := &recorded{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	o := newOrchestrator(store, sender,
		WithRecorder(journal),
		WithPublisher(published),
		WithClock(func() time.Time { return fixed }, func() string { return "delivery-1" }))

	body := capturedBody()
	outcome, err := o.HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Equal(t, "delivery-1", outcome.DeliveryID)
	assert.Equal(t, fixed, outcome.ProcessedAt)
	require.Len(t, journal.outcomes, 1)
	require.Len(t, published.outcomes, 1)
	assert.Equal(t, outcome, journal.outcomes[0])
}

func TestHandleWebhook_DispatchesWhenConfigured(t *testing.T) {
	store := &mockStore{}
	sender := &mockSender{}
	dispatcher := &stubDispatcher{}
	published := &recorded{}

	body := capturedBody()
	outcome, err := newOrchestrator(store, sender, WithDispatcher(dispatcher), WithPublisher(published)).
		HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.True(t, outcome.Dispatched)
	assert.Equal(t, 1, dispatcher.calls)
	assert.Empty(t, published.outcomes)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_DispatchFailureFallsBackInline(t *testing.T) {
	store := &mockStore{}
	store.On("UpdateStatus", mock.Anything, int64(10), models.StatusConfirmed).Return(nil)
	sender := &mockSender{}
	sender.On("SendOrderConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dispatcher := &stubDispatcher{err: errors.New("temporal unavailable")}

	body := capturedBody()
	outcome, err := newOrchestrator(store, sender, WithDispatcher(dispatcher)).
		HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.False(t, outcome.Dispatched)
	assert.True(t, outcome.TransitionApplied)
	assert.Equal(t, 1, dispatcher.calls)
}

func TestHandleWebhook_IgnoredEventNotDispatched(t *testing.T) {
	dispatcher := &stubDispatcher{}
	body := []byte(`{"event":"order.paid","payload":{}}`)

	_, err := newOrchestrator(&mockStore{}, &mockSender{}, WithDispatcher(dispatcher)).
		HandleWebhook(context.Background(), signed(body), body)

	require.NoError(t, err)
	assert.Zero(t, dispatcher.calls)
}

func TestNotify_FailureDefaults(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, "a@b.com", "Payment Failed - Order #7",
		"Your payment attempt failed. Reason: Payment failed\n\nPlease try again or contact support if the issue persists.").Return(nil)

	sent, dedup, err := newOrchestrator(&mockStore{}, sender).Notify(context.Background(), models.PaymentEvent{
		EventName:        models.EventPaymentFailed,
		GatewayPaymentID: "pay_7",
		Email:            "a@b.com",
	}, 7)

	require.NoError(t, err)
	assert.True(t, sent)
	assert.False(t, dedup)
	sender.AssertExpectations(t)
}
