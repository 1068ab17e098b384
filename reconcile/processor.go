package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sevasetu/paycore/gateway"
	"github.com/sevasetu/paycore/infra/logger"
	"github.com/sevasetu/paycore/infra/opensearch"
	"github.com/sevasetu/paycore/store"
)

var (
	// ErrUnknownReference is returned for a non-success event whose reference
	// has no service request. Requests are never created speculatively.
	ErrUnknownReference = errors.New("reconcile: unknown reference number")

	// ErrIncompatibleEvent is returned when the incoming event contradicts
	// the current payment status (a "reject" cell of the transition table).
	ErrIncompatibleEvent = errors.New("reconcile: event incompatible with current payment status")

	// ErrAlreadyPaid is returned when a new intent is requested for a request
	// whose payment already completed.
	ErrAlreadyPaid = errors.New("reconcile: payment already completed")
)

// Notifier receives lifecycle notifications. Implementations must return
// promptly; the production implementation detaches the fan-out so webhook
// responses never wait on delivery.
type Notifier interface {
	PaymentReceived(ctx context.Context, req *store.ServiceRequest)
	PaymentFailed(ctx context.Context, req *store.ServiceRequest)
	PaymentRefunded(ctx context.Context, req *store.ServiceRequest)
	StatusChanged(ctx context.Context, req *store.ServiceRequest)
}

// Outcome describes what a webhook delivery did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is the reconciliation outcome for one webhook delivery.
type Result struct {
	Outcome Outcome
	Event   *gateway.WebhookEvent
	Request *store.ServiceRequest
}

// Processor turns verified provider callbacks into exactly-once service
// request transitions.
type Processor struct {
	adapter  gateway.Adapter
	requests store.ServiceRequestStore
	notifier Notifier
	audit    *opensearch.Logger
}

// NewProcessor creates a webhook processor bound to the configured active
// gateway adapter.
func NewProcessor(adapter gateway.Adapter, requests store.ServiceRequestStore, notifier Notifier) *Processor {
	return &Processor{
		adapter:  adapter,
		requests: requests,
		notifier: notifier,
	}
}

// SetAuditLog enables indexing of every reconciliation outcome. Indexing is
// fire-and-forget and never delays or fails the webhook response.
func (p *Processor) SetAuditLog(audit *opensearch.Logger) {
	p.audit = audit
}

// ProcessWebhook verifies, normalizes and applies one provider callback.
// Signature failure is the only path by which an attacker-controlled payload
// is discarded; it happens before anything else and causes no state change.
func (p *Processor) ProcessWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*Result, error) {
	result, err := p.processWebhook(ctx, rawBody, signatureHeader)
	p.logAudit(result, err)
	return result, err
}

func (p *Processor) logAudit(result *Result, err error) {
	if p.audit == nil {
		return
	}

	entry := opensearch.ReconciliationLog{Gateway: p.adapter.Name()}
	if err != nil {
		entry.Outcome = "rejected"
		entry.Error = err.Error()
	}
	if result != nil {
		entry.Outcome = string(result.Outcome)
		if result.Event != nil {
			entry.EventID = result.Event.GatewayEventID
			entry.EventKind = string(result.Event.Kind)
			entry.Amount = result.Event.Amount
			entry.Currency = result.Event.Currency
		}
		if result.Request != nil {
			entry.ReferenceNumber = result.Request.ReferenceNumber
			entry.RequestID = result.Request.ID
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if indexErr := p.audit.LogReconciliation(ctx, entry); indexErr != nil {
			logger.Warn("Reconciliation audit indexing failed", logger.LogContext{
				Provider: p.adapter.Name(),
				Fields:   map[string]any{"error": indexErr.Error()},
			})
		}
	}()
}

func (p *Processor) processWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*Result, error) {
	if !p.adapter.VerifyWebhookSignature(rawBody, signatureHeader) {
		logger.Warn("Webhook signature rejected", logger.LogContext{
			Provider: p.adapter.Name(),
		})
		return nil, gateway.ErrSignatureVerification
	}

	event, err := p.adapter.ParseWebhookEvent(rawBody)
	if err != nil {
		return nil, err
	}

	reference := event.ReferenceNumber()
	if reference == "" {
		return nil, fmt.Errorf("%w: event %s carries no reference number", ErrUnknownReference, event.GatewayEventID)
	}

	// An already-processed event id is acknowledged as a no-op before the
	// state table sees it; the status may have legitimately moved past the
	// event since its first delivery.
	seen, err := p.requests.SeenEvent(ctx, event.GatewayEventID)
	if err != nil {
		return nil, err
	}
	if seen {
		req, err := p.requests.GetByReference(ctx, reference)
		if err != nil {
			req = nil
		}
		return &Result{Outcome: OutcomeDuplicate, Event: event, Request: req}, nil
	}

	req, err := p.requests.GetByReference(ctx, reference)
	if errors.Is(err, store.ErrNotFound) {
		if event.Kind == gateway.EventPaymentSucceeded {
			return p.createOnFirstSuccess(ctx, event)
		}
		// Policy decision: a non-success event for an unseen reference is
		// rejected, not silently dropped, so misrouted callbacks surface in
		// provider dashboards instead of disappearing.
		logger.Warn("Webhook event for unknown reference", logger.LogContext{
			Provider: p.adapter.Name(),
			Fields: map[string]any{
				"reference": reference,
				"event_id":  event.GatewayEventID,
				"kind":      string(event.Kind),
			},
		})
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, reference)
	}
	if err != nil {
		return nil, err
	}

	return p.applyTransition(ctx, event, req)
}

// createOnFirstSuccess is the only creation path: the first payment-success
// event for a reference.
func (p *Processor) createOnFirstSuccess(ctx context.Context, event *gateway.WebhookEvent) (*Result, error) {
	req, created, err := p.requests.CreateOnFirstPayment(ctx, store.CreateParams{
		ReferenceNumber: event.ReferenceNumber(),
		ServiceID:       event.Metadata[gateway.MetaServiceID],
		TierID:          event.Metadata[gateway.MetaServiceTierID],
		CustomerName:    event.Metadata["customerName"],
		CustomerEmail:   event.Metadata["customerEmail"],
		CustomerPhone:   event.Metadata["customerPhone"],
		Amount:          event.Amount,
		Currency:        event.Currency,
		TransactionID:   event.TransactionID,
		GatewayName:     p.adapter.Name(),
		GatewayEventID:  event.GatewayEventID,
		AffiliateID:     event.AffiliateID(),
	})
	if err != nil {
		return nil, err
	}

	if !created {
		return &Result{Outcome: OutcomeDuplicate, Event: event, Request: req}, nil
	}

	logger.Info("Service request created on first payment success", logger.LogContext{
		Provider: p.adapter.Name(),
		Fields: map[string]any{
			"reference":    req.ReferenceNumber,
			"amount":       req.PaymentAmount,
			"currency":     req.PaymentCurrency,
			"affiliate_id": req.AffiliateID,
		},
	})

	p.notifier.PaymentReceived(ctx, req)
	return &Result{Outcome: OutcomeCreated, Event: event, Request: req}, nil
}

// transition resolves the payment state table for one (current, event) cell.
// apply=false with ok=true is a recognized no-op; ok=false is a reject cell.
func transition(current store.PaymentStatus, kind gateway.EventKind) (next store.PaymentStatus, apply, ok bool) {
	switch kind {
	case gateway.EventPaymentSucceeded:
		switch current {
		case store.PaymentPending, store.PaymentFailed:
			return store.PaymentCompleted, true, true
		case store.PaymentCompleted:
			return current, false, true
		}
	case gateway.EventPaymentFailed:
		switch current {
		case store.PaymentPending:
			return store.PaymentFailed, true, true
		case store.PaymentFailed:
			return current, false, true
		}
	case gateway.EventPaymentRefunded:
		switch current {
		case store.PaymentCompleted:
			return store.PaymentRefunded, true, true
		case store.PaymentRefunded:
			return current, false, true
		}
	}
	return current, false, false
}

func (p *Processor) applyTransition(ctx context.Context, event *gateway.WebhookEvent, req *store.ServiceRequest) (*Result, error) {
	next, apply, ok := transition(req.PaymentStatus, event.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s while %s (reference %s)",
			ErrIncompatibleEvent, event.Kind, req.PaymentStatus, req.ReferenceNumber)
	}

	if !apply {
		// Providers retry webhooks until acknowledged; an already-settled
		// delivery must answer success without touching anything.
		return &Result{Outcome: OutcomeDuplicate, Event: event, Request: req}, nil
	}

	applied, err := p.requests.ApplyPaymentTransition(ctx, req.ReferenceNumber, req.PaymentStatus, next, event.GatewayEventID, event.TransactionID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent delivery won the compare-and-set; report the status it
		// left behind, not the one read before the race.
		if current, err := p.requests.GetByReference(ctx, req.ReferenceNumber); err == nil {
			req = current
		}
		return &Result{Outcome: OutcomeDuplicate, Event: event, Request: req}, nil
	}

	updated, err := p.requests.GetByReference(ctx, req.ReferenceNumber)
	if err != nil {
		updated = req
	}

	logger.Info("Payment transition applied", logger.LogContext{
		Provider: p.adapter.Name(),
		Fields: map[string]any{
			"reference": req.ReferenceNumber,
			"from":      string(req.PaymentStatus),
			"to":        string(next),
			"event_id":  event.GatewayEventID,
		},
	})

	switch event.Kind {
	case gateway.EventPaymentSucceeded:
		p.notifier.PaymentReceived(ctx, updated)
	case gateway.EventPaymentFailed:
		p.notifier.PaymentFailed(ctx, updated)
	case gateway.EventPaymentRefunded:
		p.notifier.PaymentRefunded(ctx, updated)
	}

	return &Result{Outcome: OutcomeApplied, Event: event, Request: updated}, nil
}

// IntentParams carries everything needed to open a payment intent.
type IntentParams struct {
	ServiceID     string
	TierID        string
	Amount        int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	Description   string
	AffiliateID   string
}

// NewReferenceNumber assigns a globally unique, externally shown reference.
// It is assigned before any intent is created.
func NewReferenceNumber() string {
	return "SR-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

// CreateIntent assigns a fresh reference number and opens an intent for it.
// No service request is created; that happens only on the first success
// webhook.
func (p *Processor) CreateIntent(ctx context.Context, params IntentParams) (string, *gateway.PaymentIntent, error) {
	reference := NewReferenceNumber()

	metadata := map[string]string{
		gateway.MetaServiceID: params.ServiceID,
		"customerEmail":       params.CustomerEmail,
		"customerName":        params.CustomerName,
	}
	if params.TierID != "" {
		metadata[gateway.MetaServiceTierID] = params.TierID
	}
	if params.AffiliateID != "" {
		metadata[gateway.MetaAffiliateID] = params.AffiliateID
	}

	intent, err := p.adapter.CreatePaymentIntent(ctx, gateway.IntentRequest{
		ReferenceNumber: reference,
		Amount:          params.Amount,
		Currency:        params.Currency,
		CustomerEmail:   params.CustomerEmail,
		CustomerName:    params.CustomerName,
		Description:     params.Description,
		Metadata:        metadata,
	})
	if err != nil {
		return "", nil, err
	}

	return reference, intent, nil
}

// RetryPayment opens a fresh intent for an existing reference, permitted only
// while the payment is pending or failed.
func (p *Processor) RetryPayment(ctx context.Context, referenceNumber string) (*gateway.PaymentIntent, error) {
	req, err := p.requests.GetByReference(ctx, referenceNumber)
	if err != nil {
		return nil, err
	}

	switch req.PaymentStatus {
	case store.PaymentPending, store.PaymentFailed:
	default:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPaid, referenceNumber)
	}

	return p.adapter.CreatePaymentIntent(ctx, gateway.IntentRequest{
		ReferenceNumber: req.ReferenceNumber,
		Amount:          req.PaymentAmount,
		Currency:        req.PaymentCurrency,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		Metadata: map[string]string{
			gateway.MetaServiceID: req.ServiceID,
		},
	})
}

// GetRequest returns the service request for an externally shown reference.
func (p *Processor) GetRequest(ctx context.Context, referenceNumber string) (*store.ServiceRequest, error) {
	return p.requests.GetByReference(ctx, referenceNumber)
}

// RequestHistory returns the full status history for a request, oldest first.
func (p *Processor) RequestHistory(ctx context.Context, id string) ([]store.StatusHistoryEntry, error) {
	return p.requests.History(ctx, id)
}

// AdminTransition applies an admin-triggered service status change and/or
// provider assignment. Every status change appends one history entry with the
// acting admin recorded, and the customer is always notified.
func (p *Processor) AdminTransition(ctx context.Context, id string, status store.ServiceStatus, providerID, changedBy, note string) (*store.ServiceRequest, error) {
	if providerID != "" {
		if err := p.requests.AssignProvider(ctx, id, providerID, changedBy); err != nil {
			return nil, err
		}
	}

	if status != "" {
		if _, err := p.requests.UpdateServiceStatus(ctx, id, status, changedBy, note); err != nil {
			return nil, err
		}
	}

	req, err := p.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.notifier.StatusChanged(ctx, req)
	return req, nil
}
