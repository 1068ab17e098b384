package store

// PaymentStatus represents the payment lifecycle state of a service request.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// ServiceStatus represents the fulfillment state of a service request.
type ServiceStatus string

const (
	ServicePaymentConfirmed ServiceStatus = "payment_confirmed"
	ServicePendingContact   ServiceStatus = "pending_contact"
	ServiceTeamAssigned     ServiceStatus = "team_assigned"
	ServiceInProgress       ServiceStatus = "in_progress"
	ServiceCompleted        ServiceStatus = "completed"
	ServiceCancelled        ServiceStatus = "cancelled"
)

// serviceStatusRank orders the linear progression. Cancelled sits outside the
// line and is handled separately.
var serviceStatusRank = map[ServiceStatus]int{
	ServicePaymentConfirmed: 0,
	ServicePendingContact:   1,
	ServiceTeamAssigned:     2,
	ServiceInProgress:       3,
	ServiceCompleted:        4,
}

// Valid reports whether s is a known service status.
func (s ServiceStatus) Valid() bool {
	if s == ServiceCancelled {
		return true
	}
	_, ok := serviceStatusRank[s]
	return ok
}

// IsTerminal returns true if the status is a terminal state.
func (s ServiceStatus) IsTerminal() bool {
	return s == ServiceCompleted || s == ServiceCancelled
}

// CanTransitionTo reports whether an admin may move a request from s to
// target. Skipping forward is permitted, moving backward is not; cancelled is
// reachable from any non-terminal state.
func (s ServiceStatus) CanTransitionTo(target ServiceStatus) bool {
	if !s.Valid() || !target.Valid() || s == target {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	if target == ServiceCancelled {
		return true
	}
	return serviceStatusRank[target] > serviceStatusRank[s]
}
