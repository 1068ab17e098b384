package stripe

import "github.com/sevasetu/paycore/gateway"

// Register Stripe adapter with the gateway registry
func init() {
	gateway.Register("stripe", NewProvider)
}
