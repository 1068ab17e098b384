package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sevasetu/paycore/gateway"
)

const (
	apiBaseURL     = "https://api.razorpay.com"
	endpointOrders = "/v1/orders"

	defaultTimeout = 30 * time.Second
)

// Provider implements the gateway.Adapter interface for Razorpay.
type Provider struct {
	apiKey        string
	apiSecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewProvider creates a new Razorpay gateway adapter.
func NewProvider() gateway.Adapter {
	return &Provider{
		baseURL: apiBaseURL,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Name returns the provider tag.
func (p *Provider) Name() string {
	return "razorpay"
}

// Initialize sets up the Razorpay adapter with authentication credentials.
func (p *Provider) Initialize(config gateway.Config) error {
	p.apiKey = config.APIKey
	p.apiSecret = config.APISecret
	p.webhookSecret = config.WebhookSecret

	if p.apiKey == "" || p.apiSecret == "" {
		return errors.New("razorpay: apiKey and apiSecret are required")
	}
	if p.webhookSecret == "" {
		return errors.New("razorpay: webhookSecret is required")
	}

	return nil
}

// CreatePaymentIntent opens a Razorpay order for the given amount. The order
// id doubles as the intent id; the key id is handed back as the client secret
// for checkout initialization.
func (p *Provider) CreatePaymentIntent(ctx context.Context, request gateway.IntentRequest) (*gateway.PaymentIntent, error) {
	orderData := map[string]any{
		"amount":   request.Amount,
		"currency": strings.ToUpper(request.Currency),
		"receipt":  request.ReferenceNumber,
	}

	notes := map[string]string{
		gateway.MetaReferenceNumber: request.ReferenceNumber,
	}
	for k, v := range request.Metadata {
		notes[k] = v
	}
	orderData["notes"] = notes

	body, err := json.Marshal(orderData)
	if err != nil {
		return nil, fmt.Errorf("razorpay: failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpointOrders, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("razorpay: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.apiKey, p.apiSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: failed to read response: %v", gateway.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: razorpay: order creation returned %d: %s", gateway.ErrGatewayUnavailable, resp.StatusCode, string(respBody))
	}

	var order struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("razorpay: failed to parse order response: %w", err)
	}

	return &gateway.PaymentIntent{
		ID:           order.ID,
		ClientSecret: p.apiKey,
		Amount:       order.Amount,
		Currency:     order.Currency,
		GatewayName:  p.Name(),
	}, nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header: a hex-encoded
// HMAC-SHA256 of the raw request body keyed with the webhook secret.
func (p *Provider) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signatureHeader), []byte(expected))
}

// webhookPayload is the wire shape of a Razorpay payment notification.
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

// ParseWebhookEvent normalizes a verified Razorpay webhook payload.
func (p *Provider) ParseWebhookEvent(payload []byte) (*gateway.WebhookEvent, error) {
	var wp webhookPayload
	if err := json.Unmarshal(payload, &wp); err != nil {
		return nil, fmt.Errorf("razorpay: failed to parse webhook payload: %w", err)
	}

	kind, err := mapEventKind(wp.Event)
	if err != nil {
		return nil, err
	}

	eventID := wp.ID
	if eventID == "" {
		// Older notifications omit the event id; the transaction id plus the
		// outcome still identifies the delivery uniquely.
		eventID = wp.Data.TransactionID + ":" + wp.Event
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

func mapEventKind(event string) (gateway.EventKind, error) {
	switch event {
	case "payment.success", "payment.captured", "order.paid":
		return gateway.EventPaymentSucceeded, nil
	case "payment.failed":
		return gateway.EventPaymentFailed, nil
	case "payment.refunded", "refund.processed":
		return gateway.EventPaymentRefunded, nil
	default:
		return "", fmt.Errorf("razorpay: unrecognized webhook event %q", event)
	}
}
