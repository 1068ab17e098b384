package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sevasetu/paycore/gateway"
	"github.com/sevasetu/paycore/infra/response"
	"github.com/sevasetu/paycore/reconcile"
)

// PaymentServiceInterface defines the interface for payment intent operations
type PaymentServiceInterface interface {
	CreateIntent(ctx context.Context, params reconcile.IntentParams) (string, *gateway.PaymentIntent, error)
	RetryPayment(ctx context.Context, referenceNumber string) (*gateway.PaymentIntent, error)
}

// PaymentHandler handles payment intent HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService PaymentServiceInterface, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
	}
}

// CreateIntentRequest is the body of POST /v1/payments
type CreateIntentRequest struct {
	ServiceID     string `json:"serviceId" validate:"required"`
	TierID        string `json:"tierId,omitempty"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	Description   string `json:"description,omitempty"`
	AffiliateID   string `json:"affiliateId,omitempty"`
}

// RetryPaymentRequest is the body of POST /v1/payments/retry
type RetryPaymentRequest struct {
	ReferenceNumber string `json:"referenceNumber" validate:"required"`
}

// CreateIntent handles payment intent creation requests
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	reference, intent, err := h.paymentService.CreateIntent(ctx, reconcile.IntentParams{
		ServiceID:     req.ServiceID,
		TierID:        req.TierID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
		AffiliateID:   req.AffiliateID,
	})
	if err != nil {
		writePaymentError(w, err)
		return
	}

	response.Success(w, http.StatusCreated, "Payment intent created", map[string]any{
		"referenceNumber": reference,
		"intent":          intent,
	})
}

// RetryPayment handles retry requests for an existing reference
func (h *PaymentHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req RetryPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	intent, err := h.paymentService.RetryPayment(ctx, req.ReferenceNumber)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Payment intent created", map[string]any{
		"referenceNumber": req.ReferenceNumber,
		"intent":          intent,
	})
}

func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcile.ErrAlreadyPaid):
		response.Error(w, http.StatusConflict, "Payment already completed", err)
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		response.Error(w, http.StatusBadGateway, "Payment gateway unavailable", err)
	case errors.Is(err, gateway.ErrInvalidConfig):
		response.Error(w, http.StatusInternalServerError, "Gateway misconfigured", err)
	case isNotFound(err):
		response.Error(w, http.StatusNotFound, "Service request not found", err)
	default:
		response.Error(w, http.StatusInternalServerError, "Payment intent failed", err)
	}
}
