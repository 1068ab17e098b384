package notify

import (
	"context"

	"github.com/sevasetu/paycore/store"
)

// Events adapts the Dispatcher to the reconciliation processor: every call
// returns immediately and runs the fan-out detached from the caller's
// request lifetime, so a webhook response never waits on delivery.
type Events struct {
	dispatcher *Dispatcher
}

// NewEvents wraps a dispatcher for fire-and-forget use.
func NewEvents(dispatcher *Dispatcher) *Events {
	return &Events{dispatcher: dispatcher}
}

func (e *Events) detach(fn func(ctx context.Context)) {
	go fn(context.Background())
}

// PaymentReceived notifies the provider (or admins) and the customer of a
// successful payment.
func (e *Events) PaymentReceived(_ context.Context, req *store.ServiceRequest) {
	e.detach(func(ctx context.Context) {
		e.dispatcher.NotifyProvider(ctx, req)
		e.dispatcher.NotifyCustomer(ctx, req, EventPaymentReceived)
	})
}

// PaymentFailed notifies the customer of a failed payment.
func (e *Events) PaymentFailed(_ context.Context, req *store.ServiceRequest) {
	e.detach(func(ctx context.Context) {
		e.dispatcher.NotifyCustomer(ctx, req, EventPaymentFailed)
	})
}

// PaymentRefunded notifies the customer of a processed refund.
func (e *Events) PaymentRefunded(_ context.Context, req *store.ServiceRequest) {
	e.detach(func(ctx context.Context) {
		e.dispatcher.NotifyCustomer(ctx, req, EventPaymentRefunded)
	})
}

// StatusChanged notifies the customer of an admin status change.
func (e *Events) StatusChanged(_ context.Context, req *store.ServiceRequest) {
	e.detach(func(ctx context.Context) {
		e.dispatcher.NotifyCustomer(ctx, req, EventStatusChanged)
	})
}
