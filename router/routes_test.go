package router

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sevasetu/paycore/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	r := chi.NewRouter()
	require.NotNil(t, r)

	assert.NotPanics(t, func() {
		Routes(r, Deps{GatewayName: "mockpay", Environment: "test"})
	})
}

func TestRoutes_RegisteredPaths(t *testing.T) {
	r := chi.NewRouter()
	Routes(r, Deps{GatewayName: "mockpay", Environment: "test"})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/webhooks"},
		{http.MethodPost, "/webhooks/mockpay"},
		{http.MethodPost, "/v1/payments"},
		{http.MethodPost, "/v1/payments/retry"},
		{http.MethodGet, "/v1/requests/SR-1"},
		{http.MethodPatch, "/v1/requests/req-1/status"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"_"+tt.path, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			assert.True(t, r.Match(rctx, tt.method, tt.path), "route not registered: %s %s", tt.method, tt.path)
		})
	}
}

func TestSideEffectRegistration(t *testing.T) {
	// The blank imports must have registered every bundled adapter
	names := gateway.DefaultRegistry.Names()
	assert.Contains(t, names, "mockpay")
	assert.Contains(t, names, "razorpay")
	assert.Contains(t, names, "stripe")
}
