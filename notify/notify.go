package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sevasetu/paycore/infra/logger"
	"github.com/sevasetu/paycore/store"
)

// EmailSender is the outbound email transport, an external collaborator with
// its own retry policy.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (messageID string, err error)
}

// Directory resolves notification recipients.
type Directory interface {
	// ProviderEmail resolves an assigned provider id to an active provider's
	// email. ok is false when the provider is unknown or inactive.
	ProviderEmail(ctx context.Context, providerID string) (email string, ok bool)

	// AdminEmails returns the emails of all active admin users.
	AdminEmails(ctx context.Context) []string
}

// LifecycleEvent identifies the customer-facing notification to send.
type LifecycleEvent string

const (
	EventPaymentReceived LifecycleEvent = "payment_received"
	EventPaymentFailed   LifecycleEvent = "payment_failed"
	EventPaymentRefunded LifecycleEvent = "payment_refunded"
	EventStatusChanged   LifecycleEvent = "status_changed"
)

const sendTimeout = 15 * time.Second

// Dispatcher fans out lifecycle notifications. Every dispatch is best-effort:
// failures are logged and swallowed, and no send ever blocks or rolls back the
// state transition that triggered it.
type Dispatcher struct {
	sender    EmailSender
	directory Directory
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(sender EmailSender, directory Directory) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		directory: directory,
	}
}

// NotifyProvider informs the assigned provider of a new or updated request.
// When no provider is assigned or it cannot be resolved, all active admins
// are notified instead, fanned out independently.
func (d *Dispatcher) NotifyProvider(ctx context.Context, req *store.ServiceRequest) {
	subject := fmt.Sprintf("Service request %s: payment %s", req.ReferenceNumber, req.PaymentStatus)
	body := fmt.Sprintf(
		"Reference: %s\nService: %s\nAmount: %d %s\nStatus: %s / %s\n",
		req.ReferenceNumber, req.ServiceID, req.PaymentAmount, req.PaymentCurrency,
		req.PaymentStatus, req.ServiceStatus)

	var recipients []string
	if req.AssignedProviderID != "" {
		if email, ok := d.directory.ProviderEmail(ctx, req.AssignedProviderID); ok {
			recipients = []string{email}
		}
	}
	if len(recipients) == 0 {
		recipients = d.directory.AdminEmails(ctx)
	}
	if len(recipients) == 0 {
		logger.Warn("No notification recipients resolved", logger.LogContext{
			Fields: map[string]any{"reference": req.ReferenceNumber},
		})
		return
	}

	d.fanOut(ctx, recipients, subject, body, req.ReferenceNumber)
}

// customerMessage maps a lifecycle event to a canned message and estimated
// next step.
func customerMessage(event LifecycleEvent, req *store.ServiceRequest) (subject, body string) {
	switch event {
	case EventPaymentReceived:
		return fmt.Sprintf("Payment received for request %s", req.ReferenceNumber),
			"We have received your payment. Our team will contact you within one business day to schedule your service."
	case EventPaymentFailed:
		return fmt.Sprintf("Payment failed for request %s", req.ReferenceNumber),
			"Your payment could not be completed. You can retry the payment from your booking page."
	case EventPaymentRefunded:
		return fmt.Sprintf("Refund processed for request %s", req.ReferenceNumber),
			"Your payment has been refunded. The amount should reach your account within 5-7 business days."
	case EventStatusChanged:
		return fmt.Sprintf("Update on your service request %s", req.ReferenceNumber),
			fmt.Sprintf("Your request is now %q. We will keep you posted on the next steps.", req.ServiceStatus)
	default:
		return fmt.Sprintf("Update on your service request %s", req.ReferenceNumber),
			"There is an update on your service request."
	}
}

// NotifyCustomer sends the canned message for a lifecycle event to the
// customer's stored email.
func (d *Dispatcher) NotifyCustomer(ctx context.Context, req *store.ServiceRequest, event LifecycleEvent) {
	if req.CustomerEmail == "" {
		logger.Warn("Customer has no stored email", logger.LogContext{
			Fields: map[string]any{"reference": req.ReferenceNumber},
		})
		return
	}

	subject, body := customerMessage(event, req)
	d.fanOut(ctx, []string{req.CustomerEmail}, subject, body, req.ReferenceNumber)
}

// fanOut sends to all recipients concurrently and joins on settled semantics:
// each send succeeds or fails on its own, and one failure never suppresses
// the others.
func (d *Dispatcher) fanOut(ctx context.Context, recipients []string, subject, body, reference string) {
	var wg sync.WaitGroup
	for _, to := range recipients {
		wg.Add(1)
		go func(to string) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()

			messageID, err := d.sender.Send(sendCtx, to, subject, body)
			if err != nil {
				logger.Error("Notification delivery failed", err, logger.LogContext{
					Fields: map[string]any{
						"recipient": to,
						"reference": reference,
					},
				})
				return
			}
			logger.Info("Notification sent", logger.LogContext{
				Fields: map[string]any{
					"recipient":  to,
					"reference":  reference,
					"message_id": messageID,
				},
			})
		}(to)
	}
	wg.Wait()
}
