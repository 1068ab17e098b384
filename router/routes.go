package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sevasetu/paycore/handler"
	"github.com/sevasetu/paycore/reconcile"
	"github.com/sevasetu/paycore/store"

	// Import for side-effect registration
	_ "github.com/sevasetu/paycore/gateway/mockpay"
	_ "github.com/sevasetu/paycore/gateway/razorpay"
	_ "github.com/sevasetu/paycore/gateway/stripe"
)

// Deps carries the wired services the routes depend on.
type Deps struct {
	Processor   *reconcile.Processor
	Requests    store.ServiceRequestStore
	GatewayName string
	Environment string
}

// Routes registers all API routes
func Routes(r chi.Router, deps Deps) {
	validate := validator.New()

	paymentHandler := handler.NewPaymentHandler(deps.Processor, validate)
	requestHandler := handler.NewRequestHandler(deps.Processor, validate)
	webhookHandler := handler.NewWebhookHandler(deps.Processor, deps.GatewayName)
	healthHandler := handler.NewHealthHandler(deps.Requests, deps.GatewayName, deps.Environment)

	r.Get("/health", healthHandler.CheckHealth)

	// Webhook routes for gateway notifications
	r.Route("/webhooks", func(r chi.Router) {
		// General webhook route (uses the active gateway)
		r.Post("/", webhookHandler.HandleWebhook)

		// Provider-specific webhook route
		r.Post("/{provider}", webhookHandler.HandleWebhook)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", paymentHandler.CreateIntent)
			r.Post("/retry", paymentHandler.RetryPayment)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/{referenceNumber}", requestHandler.GetRequest)
			r.Patch("/{id}/status", requestHandler.UpdateStatus)
		})
	})
}
