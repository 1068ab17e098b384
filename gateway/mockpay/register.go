package mockpay

import "github.com/sevasetu/paycore/gateway"

// Register mockpay adapter with the gateway registry
func init() {
	gateway.Register("mockpay", NewProvider)
}
