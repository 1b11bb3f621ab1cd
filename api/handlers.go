package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aswathylr-builds/payment-reconciliation/models"
)

const (
	webhookAccepted = "Webhook processed successfully"
	webhookRejected = "Webhook processing failed"
)

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		h.logger.Error("Failed to read webhook body", "error", err)
		writeText(w, http.StatusBadRequest, webhookRejected)
		return
	}

	// The gateway may hang up before reconciliation finishes; the stages
	// still run to completion under their own timeouts.
	ctx := context.WithoutCancel(r.Context())

	if _, err := h.webhooks.HandleWebhook(ctx, r.Header.Get(SignatureHeader), body); err != nil {
		writeText(w, http.StatusBadRequest, webhookRejected)
		return
	}
	writeText(w, http.StatusOK, webhookAccepted)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.payments.CreateOrder(r.Context(), req)
	if err != nil {
		h.logger.Error("Error creating Razorpay order", "order_id", req.OrderID, "error", err)
		h.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, resp, "Razorpay order created successfully")
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.payments.VerifyPayment(r.Context(), req)
	if err != nil {
		h.logger.Error("Error verifying payment", "payment_id", req.RazorpayPaymentID, "error", err)
		h.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, resp, "Payment verification completed")
}

func (h *Handler) handleGetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	resp, err := h.payments.GetPaymentStatus(r.Context(), transactionID)
	if err != nil {
		h.logger.Error("Error fetching payment status", "transaction_id", transactionID, "error", err)
		h.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, resp, "Payment status retrieved successfully")
}

func (h *Handler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, models.InvalidArgument("limit must be a positive integer"))
			return
		}
		limit = n
	}

	outcomes, err := h.journal.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, outcomes, "Webhook deliveries retrieved successfully")
}

func (h *Handler) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.journal.Get(r.Context(), chi.URLParam(r, "deliveryID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, outcome, "Webhook delivery retrieved successfully")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err := dec.Decode(v); err != nil {
		return models.InvalidArgument("invalid request body: %v", err)
	}
	return nil
}

// StatusFor maps an error onto an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrMalformedPayload),
		errors.Is(err, models.ErrSignatureInvalid):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case models.IsGatewayError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), models.Envelope{
		Success:  false,
		Message:  "Error occurred: " + err.Error(),
		Response: "ERROR",
	})
}

func writeEnvelope(w http.ResponseWriter, status int, data any, message string) {
	raw, err := json.Marshal(data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.Envelope{Message: "Error occurred: " + err.Error(), Response: "ERROR"})
		return
	}
	writeJSON(w, status, models.Envelope{Data: raw, Success: true, Message: message, Response: "SUCCESS"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
