package razorpay

import "github.com/sevasetu/paycore/gateway"

// Register Razorpay adapter with the gateway registry
func init() {
	gateway.Register("razorpay", NewProvider)
}
