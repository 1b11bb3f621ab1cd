// Package api is the HTTP surface of the payment service: the gateway
// webhook endpoint and the client-initiated payment operations.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

// SignatureHeader carries the webhook HMAC
const SignatureHeader = "X-Razorpay-Signature"

// MaxWebhookBytes bounds a webhook body
const MaxWebhookBytes = 1 << 20

// WebhookHandler reconciles one webhook delivery
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, signatureHeader string, body []byte) (models.Outcome, error)
}

// PaymentService serves the client-initiated payment operations
type PaymentService interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.PaymentResponse, error)
	VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (models.PaymentResponse, error)
	GetPaymentStatus(ctx context.Context, transactionID string) (models.PaymentResponse, error)
}

// OutcomeLister lists journaled webhook outcomes, newest first
type OutcomeLister interface {
	List(ctx context.Context, limit int) ([]models.Outcome, error)
	Get(ctx context.Context, deliveryID string) (models.Outcome, error)
}

// HealthRoutes mounts health endpoints
type HealthRoutes interface {
	Routes(r chi.Router)
}

// Handler holds the dependencies of the HTTP endpoints
type Handler struct {
	webhooks WebhookHandler
	payments PaymentService
	journal  OutcomeLister
	logger   log.Logger
}

// NewHandler creates the endpoint handlers. journal may be nil.
func NewHandler(webhooks WebhookHandler, payments PaymentService, journal OutcomeLister, logger log.Logger) *Handler {
	return &Handler{webhooks: webhooks, payments: payments, journal: journal, logger: logger}
}

// NewRouter builds the service router. health may be nil.
func NewRouter(h *Handler, health HealthRoutes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/webhook", h.handleWebhook)
		r.Post("/razorpay/create-order", h.handleCreateOrder)
		r.Post("/razorpay/verify", h.handleVerifyPayment)
		if h.journal != nil {
			r.Get("/webhook/deliveries", h.handleListDeliveries)
			r.Get("/webhook/deliveries/{deliveryID}", h.handleGetDelivery)
		}
		r.Get("/{transactionID}", h.handleGetPaymentStatus)
	})

	if health != nil {
		health.Routes(r)
	}
	return r
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
