package gateway

import (
	"context"
	"errors"
)

// EventKind classifies a normalized webhook event.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment.succeeded"
	EventPaymentFailed    EventKind = "payment.failed"
	EventPaymentRefunded  EventKind = "payment.refunded"
)

// Well-known metadata keys carried through payment intents and webhook events.
const (
	MetaReferenceNumber = "referenceNumber"
	MetaServiceID       = "serviceId"
	MetaServiceTierID   = "serviceTierId"
	MetaAffiliateID     = "affiliateId"
)

// Sentinel errors shared by all gateway implementations.
var (
	ErrInvalidConfig         = errors.New("gateway: invalid configuration")
	ErrUnsupportedProvider   = errors.New("gateway: unsupported provider")
	ErrGatewayUnavailable    = errors.New("gateway: provider unavailable")
	ErrSignatureVerification = errors.New("gateway: webhook signature verification failed")
)

// Config holds the credentials required to construct an adapter.
type Config struct {
	Provider      string `json:"provider"`
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"apiSecret"`
	WebhookSecret string `json:"webhookSecret"`
	Environment   string `json:"environment,omitempty"`
}

// IntentRequest contains all information required to create a payment intent.
type IntentRequest struct {
	ReferenceNumber string            `json:"referenceNumber"`
	Amount          int64             `json:"amount"` // minor units
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customerEmail"`
	CustomerName    string            `json:"customerName"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// PaymentIntent is a provider-issued, short-lived authorization artifact.
// It is never persisted beyond the point a service request exists.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	GatewayName  string `json:"gatewayName"`
}

// WebhookEvent is the normalized form of a provider callback, produced by an
// adapter after signature verification.
type WebhookEvent struct {
	Kind           EventKind         `json:"kind"`
	GatewayEventID string            `json:"gatewayEventId"`
	TransactionID  string            `json:"transactionId"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

// ReferenceNumber returns the service request reference carried in the event
// metadata, or "" when absent.
func (e *WebhookEvent) ReferenceNumber() string {
	return e.Metadata[MetaReferenceNumber]
}

// AffiliateID returns the affiliate attribution carried in the event metadata,
// or "" when absent.
func (e *WebhookEvent) AffiliateID() string {
	return e.Metadata[MetaAffiliateID]
}

// Adapter defines the interface that all payment gateways must implement.
type Adapter interface {
	// Name returns the provider tag this adapter was registered under.
	Name() string

	// Initialize sets up the adapter with validated credentials. It must not
	// perform any network I/O.
	Initialize(config Config) error

	// CreatePaymentIntent calls the external provider to open a payment
	// intent for the given amount. Network or provider failures are reported
	// as ErrGatewayUnavailable.
	CreatePaymentIntent(ctx context.Context, request IntentRequest) (*PaymentIntent, error)

	// VerifyWebhookSignature checks the provider's signature over the raw
	// request body. It is pure and must be called on the exact bytes received;
	// reparsing can change byte layout and invalidate signatures.
	VerifyWebhookSignature(payload []byte, signatureHeader string) bool

	// ParseWebhookEvent normalizes a provider-specific webhook payload.
	// Only called after VerifyWebhookSignature succeeds.
	ParseWebhookEvent(payload []byte) (*WebhookEvent, error)
}

// AdapterFactory is a function type that creates a new Adapter.
type AdapterFactory func() Adapter
