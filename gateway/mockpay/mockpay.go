package mockpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sevasetu/paycore/gateway"
)

// Provider implements the gateway.Adapter interface with a deterministic
// in-process gateway. It signs and verifies webhooks with the same HMAC scheme
// the live adapters use, so the reconciliation path can be exercised end to
// end without a provider account.
type Provider struct {
	webhookSecret string
	failIntents   bool
}

// NewProvider creates a new mock gateway adapter.
func NewProvider() gateway.Adapter {
	return &Provider{}
}

// Name returns the provider tag.
func (p *Provider) Name() string {
	return "mockpay"
}

// Initialize sets up the mock adapter.
func (p *Provider) Initialize(config gateway.Config) error {
	p.webhookSecret = config.WebhookSecret
	if p.webhookSecret == "" {
		return errors.New("mockpay: webhookSecret is required")
	}
	// An apiSecret of "fail" simulates an unreachable provider.
	p.failIntents = config.APISecret == "fail"
	return nil
}

// CreatePaymentIntent simulates the external call and returns a deterministic
// intent. No network I/O is performed.
func (p *Provider) CreatePaymentIntent(ctx context.Context, request gateway.IntentRequest) (*gateway.PaymentIntent, error) {
	if p.failIntents {
		return nil, fmt.Errorf("%w: mockpay: simulated provider outage", gateway.ErrGatewayUnavailable)
	}
	if request.Amount <= 0 {
		return nil, errors.New("mockpay: amount must be greater than 0")
	}

	id := "mock_" + uuid.New().String()
	return &gateway.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       request.Amount,
		Currency:     strings.ToUpper(request.Currency),
		GatewayName:  p.Name(),
	}, nil
}

// VerifyWebhookSignature checks a hex-encoded HMAC-SHA256 of the raw body.
func (p *Provider) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	return hmac.Equal([]byte(signatureHeader), []byte(Sign(payload, p.webhookSecret)))
}

// Sign computes the signature mockpay expects for a payload. Exposed so tests
// can produce validly signed deliveries.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookPayload struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		TransactionID string            `json:"transactionId"`
		Amount        int64             `json:"amount"`
		Currency      string            `json:"currency"`
		Metadata      map[string]string `json:"metadata"`
	} `json:"data"`
}

// ParseWebhookEvent normalizes a verified mockpay webhook payload.
func (p *Provider) ParseWebhookEvent(payload []byte) (*gateway.WebhookEvent, error) {
	var wp webhookPayload
	if err := json.Unmarshal(payload, &wp); err != nil {
		return nil, fmt.Errorf("mockpay: failed to parse webhook payload: %w", err)
	}

	var kind gateway.EventKind
	switch wp.Event {
	case "payment.success":
		kind = gateway.EventPaymentSucceeded
	case "payment.failed":
		kind = gateway.EventPaymentFailed
	case "payment.refunded":
		kind = gateway.EventPaymentRefunded
	default:
		return nil, fmt.Errorf("mockpay: unrecognized webhook event %q", wp.Event)
	}

	eventID := wp.ID
	if eventID == "" {
		eventID = "mock_evt_" + wp.Data.TransactionID
	}

	metadata := wp.Data.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &gateway.WebhookEvent{
		Kind:           kind,
		GatewayEventID: eventID,
		TransactionID:  wp.Data.TransactionID,
		Amount:         wp.Data.Amount,
		Currency:       strings.ToUpper(wp.Data.Currency),
		Metadata:       metadata,
	}, nil
}
