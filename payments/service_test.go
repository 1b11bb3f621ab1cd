package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aswathylr-builds/payment-reconciliation/logging"
	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/signature"
)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateOrder(ctx context.Context, params models.CreateOrderParams) (models.GatewayOrder, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(models.GatewayOrder), args.Error(1)
}

func (m *mockGateway) FetchOrder(ctx context.Context, id string) (models.GatewayOrder, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.GatewayOrder), args.Bool(1), args.Error(2)
}

func (m *mockGateway) FetchPayment(ctx context.Context, id string) (models.GatewayPayment, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.GatewayPayment), args.Bool(1), args.Error(2)
}

func (m *mockGateway) VerifyPaymentSignature(orderID, paymentID, sig, secret string) bool {
	return signature.VerifyPayment(orderID, paymentID, sig, secret)
}

const keySecret = "key_secret"

func TestCreateOrder_Defaults(t *testing.T) {
	gw := &mockGateway{}
	gw.On("CreateOrder", mock.Anything, models.CreateOrderParams{
		Amount:   50000,
		Currency: "INR",
		Receipt:  "order_10",
		Notes:    models.OrderNotes{"order_id": int64(10), "source": "ecommerce-platform"},
	}).Return(models.GatewayOrder{ID: "order_GW1", Amount: 50000, Currency: "INR", Status: "created"}, nil)

	resp, err := NewService(gw, keySecret, logging.Nop()).CreateOrder(context.Background(), models.CreateOrderRequest{
		OrderID: 10,
		Amount:  json.Number("500.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, "order_GW1", resp.RazorpayOrderID)
	assert.Equal(t, "created", resp.Status)
	assert.Equal(t, int64(50000), resp.Amount)
	gw.AssertExpectations(t)
}

func TestCreateOrder_NotesCarryNumericOrderID(t *testing.T) {
	var sent models.CreateOrderParams
	gw := &mockGateway{}
	gw.On("CreateOrder", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(models.CreateOrderParams)
	}).Return(models.GatewayOrder{ID: "order_GW1"}, nil)

	_, err := NewService(gw, keySecret, logging.Nop()).CreateOrder(context.Background(), models.CreateOrderRequest{
		OrderID: 10,
		Amount:  json.Number("500"),
	})
	require.NoError(t, err)

	raw, err := json.Marshal(sent)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"order_id":10`)

	// the notes come back on webhooks and are read as text
	var echoed struct {
		Notes models.Notes `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(raw, &echoed))
	orderID, ok := echoed.Notes.Get(models.NoteOrderID)
	assert.True(t, ok)
	assert.Equal(t, "10", orderID)
}

func TestCreateOrder_ExplicitCurrencyAndReceipt(t *testing.T) {
	gw := &mockGateway{}
	gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(p models.CreateOrderParams) bool {
		return p.Currency == "USD" && p.Receipt == "INV-1" && p.Amount == 1999
	})).Return(models.GatewayOrder{ID: "order_GW2"}, nil)

	_, err := NewService(gw, keySecret, logging.Nop()).CreateOrder(context.Background(), models.CreateOrderRequest{
		OrderID:  3,
		Amount:   json.Number("19.99"),
		Currency: "USD",
		Receipt:  "INV-1",
	})

	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.CreateOrderRequest
	}{
		{"zero order id", models.CreateOrderRequest{OrderID: 0, Amount: "10"}},
		{"negative order id", models.CreateOrderRequest{OrderID: -1, Amount: "10"}},
		{"zero amount", models.CreateOrderRequest{OrderID: 1, Amount: "0"}},
		{"negative amount", models.CreateOrderRequest{OrderID: 1, Amount: "-5"}},
		{"missing amount", models.CreateOrderRequest{OrderID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			_, err := NewService(gw, keySecret, logging.Nop()).CreateOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
			gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrder_GatewayError(t *testing.T) {
	gw := &mockGateway{}
	gw.On("CreateOrder", mock.Anything, mock.Anything).
		Return(models.GatewayOrder{}, &models.GatewayError{Op: "create order", StatusCode: 400, Err: errors.New("bad request")})

	_, err := NewService(gw, keySecret, logging.Nop()).CreateOrder(context.Background(), models.CreateOrderRequest{OrderID: 1, Amount: "10"})

	assert.True(t, models.IsGatewayError(err))
}

func TestVerifyPayment(t *testing.T) {
	svc := NewService(&mockGateway{}, keySecret, logging.Nop())
	valid := signature.Sign(signature.PaymentPayload("order_GW1", "pay_1"), keySecret)

	resp, err := svc.VerifyPayment(context.Background(), models.VerifyPaymentRequest{
		RazorpayOrderID: "order_GW1", RazorpayPaymentID: "pay_1", RazorpaySignature: valid,
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationSuccess, resp.Status)
	assert.Equal(t, "pay_1", resp.TransactionID)

	resp, err = svc.VerifyPayment(context.Background(), models.VerifyPaymentRequest{
		RazorpayOrderID: "order_GW1", RazorpayPaymentID: "pay_1", RazorpaySignature: "bogus",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationFailed, resp.Status)
}

func TestVerifyPayment_MissingFields(t *testing.T) {
	svc := NewService(&mockGateway{}, keySecret, logging.Nop())
	for _, req := range []models.VerifyPaymentRequest{
		{RazorpayPaymentID: "pay_1", RazorpaySignature: "s"},
		{RazorpayOrderID: "order_GW1", RazorpaySignature: "s"},
		{RazorpayOrderID: "order_GW1", RazorpayPaymentID: "pay_1"},
	} {
		_, err := svc.VerifyPayment(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	gw := &mockGateway{}
	gw.On("FetchPayment", mock.Anything, "pay_1").
		Return(models.GatewayPayment{ID: "pay_1", OrderID: "order_GW1", Status: "captured", Amount: 50000, Currency: "INR"}, true, nil)
	gw.On("FetchPayment", mock.Anything, "pay_missing").Return(models.GatewayPayment{}, false, nil)
	svc := NewService(gw, keySecret, logging.Nop())

	resp, err := svc.GetPaymentStatus(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "captured", resp.Status)
	assert.Equal(t, "order_GW1", resp.RazorpayOrderID)

	_, err = svc.GetPaymentStatus(context.Background(), "pay_missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.GetPaymentStatus(context.Background(), " ")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
