package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sevasetu/paycore/gateway"
)

// Provider implements the gateway.Adapter interface for Stripe using the
// official SDK. Signature verification delegates to the SDK's v1 scheme over
// the raw body.
type Provider struct {
	secretKey     string
	publicKey     string
	webhookSecret string
	api           *client.API
}

// NewProvider creates a new Stripe gateway adapter.
func NewProvider() gateway.Adapter {
	return &Provider{}
}

// Name returns the provider tag.
func (p *Provider) Name() string {
	return "stripe"
}

// Initialize sets up the Stripe adapter with authentication credentials.
// APIKey carries the publishable key, APISecret the secret key.
func (p *Provider) Initialize(config gateway.Config) error {
	p.publicKey = config.APIKey
	p.secretKey = config.APISecret
	p.webhookSecret = config.WebhookSecret

	if p.secretKey == "" {
		return errors.New("stripe: apiSecret (secret key) is required")
	}
	if p.webhookSecret == "" {
		return errors.New("stripe: webhookSecret is required")
	}

	p.api = &client.API{}
	p.api.Init(p.secretKey, nil)

	return nil
}

// CreatePaymentIntent opens a Stripe PaymentIntent for the given amount.
func (p *Provider) CreatePaymentIntent(ctx context.Context, request gateway.IntentRequest) (*gateway.PaymentIntent, error) {
	params := &stripeapi.PaymentIntentParams{
		Params: stripeapi.Params{
			Context: ctx,
		},
		Amount:   stripeapi.Int64(request.Amount),
		Currency: stripeapi.String(strings.ToLower(request.Currency)),
	}
	if request.Description != "" {
		params.Description = stripeapi.String(request.Description)
	}
	if request.CustomerEmail != "" {
		params.ReceiptEmail = stripeapi.String(request.CustomerEmail)
	}

	params.AddMetadata(gateway.MetaReferenceNumber, request.ReferenceNumber)
	for k, v := range request.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %v", gateway.ErrGatewayUnavailable, err)
	}

	return &gateway.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		GatewayName:  p.Name(),
	}, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header over the raw body.
func (p *Provider) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signatureHeader, p.webhookSecret) == nil
}

// ParseWebhookEvent normalizes a verified Stripe event payload.
func (p *Provider) ParseWebhookEvent(payload []byte) (*gateway.WebhookEvent, error) {
	var event stripeapi.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe: failed to parse webhook payload: %w", err)
	}

	var kind gateway.EventKind
	switch event.Type {
	case stripeapi.EventTypePaymentIntentSucceeded:
		kind = gateway.EventPaymentSucceeded
	case stripeapi.EventTypePaymentIntentPaymentFailed:
		kind = gateway.EventPaymentFailed
	case stripeapi.EventTypeChargeRefunded:
		kind = gateway.EventPaymentRefunded
	default:
		return nil, fmt.Errorf("stripe: unrecognized webhook event %q", event.Type)
	}

	var object struct {
		ID            string            `json:"id"`
		Amount        int64             `json:"amount"`
		Currency      string            `json:"currency"`
		LatestCharge  string            `json:"latest_charge"`
		PaymentIntent string            `json:"payment_intent"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return nil, fmt.Errorf("stripe: failed to parse event object: %w", err)
	}

	transactionID := object.LatestCharge
	if transactionID == "" {
		transactionID = object.ID
	}

	metadata := object.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &gateway.WebhookEvent{
		Kind:           kind,
		GatewayEventID: event.ID,
		TransactionID:  transactionID,
		Amount:         object.Amount,
		Currency:       strings.ToUpper(object.Currency),
		Metadata:       metadata,
	}, nil
}
