package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sevasetu/paycore/gateway"
	"github.com/sevasetu/paycore/reconcile"
	"github.com/sevasetu/paycore/store"
)

// Mock webhook processor for testing
type mockWebhookProcessor struct {
	processFunc func(ctx context.Context, rawBody []byte, signatureHeader string) (*reconcile.Result, error)
}

func (m *mockWebhookProcessor) ProcessWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*reconcile.Result, error) {
	if m.processFunc != nil {
		return m.processFunc(ctx, rawBody, signatureHeader)
	}
	return &reconcile.Result{
		Outcome: reconcile.OutcomeCreated,
		Request: &store.ServiceRequest{
			ReferenceNumber: "SR-TEST00000001",
			PaymentStatus:   store.PaymentCompleted,
		},
	}, nil
}

func newWebhookRouter(h *WebhookHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/webhooks", h.HandleWebhook)
	r.Post("/webhooks/{provider}", h.HandleWebhook)
	return r
}

func TestHandleWebhook(t *testing.T) {
	var gotBody []byte
	var gotSignature string

	h := NewWebhookHandler(&mockWebhookProcessor{
		processFunc: func(ctx context.Context, rawBody []byte, signatureHeader string) (*reconcile.Result, error) {
			gotBody = rawBody
			gotSignature = signatureHeader
			return &reconcile.Result{
				Outcome: reconcile.OutcomeApplied,
				Request: &store.ServiceRequest{
					ReferenceNumber: "SR-1",
					PaymentStatus:   store.PaymentRefunded,
				},
			}, nil
		},
	}, "razorpay")

	body := `{"id":"evt_1","event":"payment.refunded"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "sig_abc")
	rec := httptest.NewRecorder()

	newWebhookRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if string(gotBody) != body {
		t.Errorf("handler must pass the raw body through unchanged, got %q", gotBody)
	}
	if gotSignature != "sig_abc" {
		t.Errorf("expected signature header to be forwarded, got %q", gotSignature)
	}
}

func TestHandleWebhook_DefaultRoute(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookProcessor{}, "mockpay")

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	newWebhookRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHandleWebhook_WrongProvider(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookProcessor{}, "razorpay")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	newWebhookRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "bad_signature",
			err:        gateway.ErrSignatureVerification,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown_reference",
			err:        reconcile.ErrUnknownReference,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "incompatible_event",
			err:        reconcile.ErrIncompatibleEvent,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "store_failure",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebhookHandler(&mockWebhookProcessor{
				processFunc: func(ctx context.Context, rawBody []byte, signatureHeader string) (*reconcile.Result, error) {
					return nil, tt.err
				},
			}, "mockpay")

			req := httptest.NewRequest(http.MethodPost, "/webhooks/mockpay", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()

			newWebhookRouter(h).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestHandleWebhook_DuplicateAcknowledged(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookProcessor{
		processFunc: func(ctx context.Context, rawBody []byte, signatureHeader string) (*reconcile.Result, error) {
			return &reconcile.Result{
				Outcome: reconcile.OutcomeDuplicate,
				Request: &store.ServiceRequest{
					ReferenceNumber: "SR-1",
					PaymentStatus:   store.PaymentCompleted,
				},
			}, nil
		},
	}, "mockpay")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/mockpay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	newWebhookRouter(h).ServeHTTP(rec, req)

	// Providers stop retrying only on a success response
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for duplicate delivery, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	if data["outcome"] != "duplicate" {
		t.Errorf("expected duplicate outcome, got %v", data["outcome"])
	}
}
