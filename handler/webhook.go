package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sevasetu/paycore/gateway"
	"github.com/sevasetu/paycore/infra/logger"
	"github.com/sevasetu/paycore/infra/middle"
	"github.com/sevasetu/paycore/infra/response"
	"github.com/sevasetu/paycore/reconcile"
)

// WebhookProcessorInterface defines the interface for webhook reconciliation
type WebhookProcessorInterface interface {
	ProcessWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*reconcile.Result, error)
}

// signatureHeaders maps each provider to the header its gateway signs with.
var signatureHeaders = map[string]string{
	"razorpay": "X-Razorpay-Signature",
	"stripe":   "Stripe-Signature",
	"mockpay":  "X-Mockpay-Signature",
}

// WebhookHandler handles incoming provider callbacks
type WebhookHandler struct {
	processor    WebhookProcessorInterface
	providerName string
}

// NewWebhookHandler creates a webhook handler bound to the active provider
func NewWebhookHandler(processor WebhookProcessorInterface, providerName string) *WebhookHandler {
	return &WebhookHandler{
		processor:    processor,
		providerName: providerName,
	}
}

// HandleWebhook verifies and applies one provider callback. The body is read
// raw before any decoding; signatures are computed over the exact bytes sent.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if name := chi.URLParam(r, "provider"); name != "" && name != h.providerName {
		response.Error(w, http.StatusNotFound, "Unknown provider", nil)
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	header := signatureHeaders[h.providerName]
	if header == "" {
		header = "X-Webhook-Signature"
	}
	signature := r.Header.Get(header)

	result, err := h.processor.ProcessWebhook(ctx, rawBody, signature)
	if err != nil {
		h.writeWebhookError(w, r, err)
		return
	}

	body := map[string]any{
		"outcome": string(result.Outcome),
	}
	if result.Request != nil {
		body["referenceNumber"] = result.Request.ReferenceNumber
		body["paymentStatus"] = string(result.Request.PaymentStatus)
	}
	response.Success(w, http.StatusOK, "Webhook processed", body)
}

func (h *WebhookHandler) writeWebhookError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gateway.ErrSignatureVerification):
		logger.Warn("Webhook rejected: bad signature", logger.LogContext{
			Provider: h.providerName,
			Fields: map[string]any{
				"ip": middle.GetClientIP(r),
			},
		})
		response.Error(w, http.StatusBadRequest, "Invalid webhook signature", nil)
	case errors.Is(err, reconcile.ErrUnknownReference):
		response.Error(w, http.StatusNotFound, "Unknown reference number", err)
	case errors.Is(err, reconcile.ErrIncompatibleEvent):
		response.Error(w, http.StatusConflict, "Event incompatible with current payment status", err)
	default:
		response.Error(w, http.StatusInternalServerError, "Webhook processing failed", err)
	}
}
