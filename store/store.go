package store

import (
	"context"
	"errors"
	"time"
)

// NoAffiliateID is the sentinel stored when a payment carries no affiliate
// attribution, so downstream commission logic always has a value to join on.
const NoAffiliateID = "none"

// ChangedBySystem marks history entries produced by webhook reconciliation
// rather than an admin user.
const ChangedBySystem = "system"

var (
	// ErrNotFound is returned when no service request matches the lookup.
	ErrNotFound = errors.New("store: service request not found")

	// ErrInvalidTransition is returned when a service status change would
	// move backward or leave a terminal state.
	ErrInvalidTransition = errors.New("store: invalid service status transition")
)

// ServiceRequest is the persisted record of one customer's paid service
// engagement and its lifecycle.
type ServiceRequest struct {
	ID                   string        `json:"id"`
	ReferenceNumber      string        `json:"referenceNumber"`
	ServiceID            string        `json:"serviceId"`
	TierID               string        `json:"tierId,omitempty"`
	CustomerName         string        `json:"customerName"`
	CustomerEmail        string        `json:"customerEmail"`
	CustomerPhone        string        `json:"customerPhone,omitempty"`
	PaymentStatus        PaymentStatus `json:"paymentStatus"`
	ServiceStatus        ServiceStatus `json:"serviceStatus"`
	PaymentAmount        int64         `json:"paymentAmount"` // minor units, immutable once set
	PaymentCurrency      string        `json:"paymentCurrency"`
	PaymentTransactionID string        `json:"paymentTransactionId,omitempty"`
	GatewayName          string        `json:"gatewayName,omitempty"`
	AssignedProviderID   string        `json:"assignedProviderId,omitempty"`
	AffiliateID          string        `json:"affiliateId"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// StatusHistoryEntry is one append-only audit row owned by a service request.
type StatusHistoryEntry struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"requestId"`
	OldStatus string    `json:"oldStatus,omitempty"`
	NewStatus string    `json:"newStatus"`
	ChangedBy string    `json:"changedBy"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateParams carries everything captured at the first payment-success event
// for a reference. AffiliateID falls back to NoAffiliateID when empty.
type CreateParams struct {
	ReferenceNumber string
	ServiceID       string
	TierID          string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Amount          int64
	Currency        string
	TransactionID   string
	GatewayName     string
	GatewayEventID  string
	AffiliateID     string
}

// ServiceRequestStore is the persistence boundary for service requests. All
// mutating operations are transactional: the request row and its history row
// commit together or not at all.
type ServiceRequestStore interface {
	// CreateOnFirstPayment atomically creates a service request with
	// paymentStatus=completed, serviceStatus=payment_confirmed and its first
	// history row. created is false when the gateway event id was already
	// processed; the existing request is returned unchanged.
	CreateOnFirstPayment(ctx context.Context, params CreateParams) (req *ServiceRequest, created bool, err error)

	// ApplyPaymentTransition performs the compare-and-set transition: the
	// payment status moves from expectedPrior to next only if the stored
	// status still equals expectedPrior and the gateway event id has not been
	// seen before. applied=false is the duplicate/no-op outcome, not an error.
	ApplyPaymentTransition(ctx context.Context, referenceNumber string, expectedPrior, next PaymentStatus, gatewayEventID, transactionID string) (applied bool, err error)

	// UpdateServiceStatus applies an admin-triggered service status change,
	// rejecting backward movement with ErrInvalidTransition, and appends the
	// history row in the same transaction.
	UpdateServiceStatus(ctx context.Context, id string, next ServiceStatus, changedBy, note string) (*StatusHistoryEntry, error)

	// AssignProvider sets the assigned provider reference and appends a
	// history entry recording the assignment.
	AssignProvider(ctx context.Context, id, providerID, changedBy string) error

	// SeenEvent reports whether a gateway event id has already been processed.
	// A redelivery of a processed event must be acknowledged as a no-op even
	// when the payment status has since moved past it.
	SeenEvent(ctx context.Context, gatewayEventID string) (bool, error)

	GetByReference(ctx context.Context, referenceNumber string) (*ServiceRequest, error)
	GetByID(ctx context.Context, id string) (*ServiceRequest, error)

	// History returns all status history entries for a request, oldest first.
	History(ctx context.Context, id string) ([]StatusHistoryEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
