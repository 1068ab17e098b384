package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_Valid(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, PaymentStatus("authorized").Valid())
	assert.False(t, PaymentStatus("").Valid())
}

func TestServiceStatus_Valid(t *testing.T) {
	for _, s := range []ServiceStatus{
		ServicePaymentConfirmed, ServicePendingContact, ServiceTeamAssigned,
		ServiceInProgress, ServiceCompleted, ServiceCancelled,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, ServiceStatus("on_hold").Valid())
}

func TestServiceStatus_IsTerminal(t *testing.T) {
	assert.True(t, ServiceCompleted.IsTerminal())
	assert.True(t, ServiceCancelled.IsTerminal())
	assert.False(t, ServiceInProgress.IsTerminal())
	assert.False(t, ServicePaymentConfirmed.IsTerminal())
}

func TestServiceStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    ServiceStatus
		to      ServiceStatus
		allowed bool
	}{
		{"forward_one_step", ServicePaymentConfirmed, ServicePendingContact, true},
		{"forward_skip", ServicePaymentConfirmed, ServiceInProgress, true},
		{"forward_to_completed", ServiceInProgress, ServiceCompleted, true},
		{"backward", ServiceInProgress, ServicePendingContact, false},
		{"backward_from_completed", ServiceCompleted, ServiceInProgress, false},
		{"same_status", ServiceTeamAssigned, ServiceTeamAssigned, false},
		{"cancel_from_start", ServicePaymentConfirmed, ServiceCancelled, true},
		{"cancel_from_in_progress", ServiceInProgress, ServiceCancelled, true},
		{"cancel_from_completed", ServiceCompleted, ServiceCancelled, false},
		{"leave_cancelled", ServiceCancelled, ServicePendingContact, false},
		{"unknown_target", ServiceInProgress, ServiceStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}
