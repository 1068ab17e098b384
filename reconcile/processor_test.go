package reconcile

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sevasetu/paycore/gateway"
	"github.com/sevasetu/paycore/gateway/mockpay"
	"github.com/sevasetu/paycore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

// recordingNotifier counts dispatches per lifecycle event.
type recordingNotifier struct {
	mu        sync.Mutex
	received  int
	failed    int
	refunded  int
	statusChg int
}

func (n *recordingNotifier) PaymentReceived(_ context.Context, _ *store.ServiceRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received++
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, _ *store.ServiceRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed++
}

func (n *recordingNotifier) PaymentRefunded(_ context.Context, _ *store.ServiceRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunded++
}

func (n *recordingNotifier) StatusChanged(_ context.Context, _ *store.ServiceRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChg++
}

func newTestProcessor(t *testing.T) (*Processor, *recordingNotifier) {
	t.Helper()

	adapter := mockpay.NewProvider()
	require.NoError(t, adapter.Initialize(gateway.Config{
		Provider:      "mockpay",
		APIKey:        "key",
		APISecret:     "secret",
		WebhookSecret: testWebhookSecret,
	}))

	requests, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "reconcile_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = requests.Close() })

	notifier := &recordingNotifier{}
	return NewProcessor(adapter, requests, notifier), notifier
}

func webhookBody(t *testing.T, eventID, event, txnID string, amount int64, metadata map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":    eventID,
		"event": event,
		"data": map[string]any{
			"transactionId": txnID,
			"amount":        amount,
			"currency":      "INR",
			"metadata":      metadata,
		},
	})
	require.NoError(t, err)
	return body
}

func signedProcess(t *testing.T, p *Processor, body []byte) (*Result, error) {
	t.Helper()
	return p.ProcessWebhook(context.Background(), body, mockpay.Sign(body, testWebhookSecret))
}

func TestProcessWebhook_CreatesOnFirstSuccess(t *testing.T) {
	p, notifier := newTestProcessor(t)

	body := webhookBody(t, "evt_1", "payment.success", "txn_1", 250000, map[string]string{
		"referenceNumber": "SR-A00000000001",
		"serviceId":       "svc-cleaning",
		"customerName":    "Asha Rao",
		"customerEmail":   "asha@example.com",
		"affiliateId":     "aff-3",
	})

	result, err := signedProcess(t, p, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, "SR-A00000000001", result.Request.ReferenceNumber)
	assert.Equal(t, store.PaymentCompleted, result.Request.PaymentStatus)
	assert.Equal(t, store.ServicePaymentConfirmed, result.Request.ServiceStatus)
	assert.Equal(t, int64(250000), result.Request.PaymentAmount)
	assert.Equal(t, "aff-3", result.Request.AffiliateID)
	assert.Equal(t, "mockpay", result.Request.GatewayName)
	assert.Equal(t, 1, notifier.received)
}

func TestProcessWebhook_DuplicateDeliveryIsIdempotent(t *testing.T) {
	p, notifier := newTestProcessor(t)

	body := webhookBody(t, "evt_2", "payment.success", "txn_2", 100000, map[string]string{
		"referenceNumber": "SR-B00000000001",
	})

	first, err := signedProcess(t, p, body)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, first.Outcome)

	second, err := signedProcess(t, p, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.Request.ID, second.Request.ID)

	// Duplicate deliveries are acknowledged without re-notifying
	assert.Equal(t, 1, notifier.received)
}

func TestProcessWebhook_BadSignature(t *testing.T) {
	p, notifier := newTestProcessor(t)

	body := webhookBody(t, "evt_3", "payment.success", "txn_3", 100000, map[string]string{
		"referenceNumber": "SR-C00000000001",
	})

	_, err := p.ProcessWebhook(context.Background(), body, mockpay.Sign(body, "wrong_secret"))
	assert.ErrorIs(t, err, gateway.ErrSignatureVerification)

	// Nothing was created
	_, err = p.GetRequest(context.Background(), "SR-C00000000001")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, notifier.received)
}

func TestProcessWebhook_NonSuccessForUnknownReference(t *testing.T) {
	p, _ := newTestProcessor(t)

	body := webhookBody(t, "evt_4", "payment.failed", "txn_4", 100000, map[string]string{
		"referenceNumber": "SR-D00000000001",
	})

	_, err := signedProcess(t, p, body)
	assert.ErrorIs(t, err, ErrUnknownReference)

	// Failure events never create requests
	_, err = p.GetRequest(context.Background(), "SR-D00000000001")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessWebhook_MissingReference(t *testing.T) {
	p, _ := newTestProcessor(t)

	body := webhookBody(t, "evt_5", "payment.success", "txn_5", 100000, nil)

	_, err := signedProcess(t, p, body)
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestProcessWebhook_RefundAfterCompletion(t *testing.T) {
	p, notifier := newTestProcessor(t)

	create := webhookBody(t, "evt_6", "payment.success", "txn_6", 100000, map[string]string{
		"referenceNumber": "SR-E00000000001",
	})
	_, err := signedProcess(t, p, create)
	require.NoError(t, err)

	refund := webhookBody(t, "evt_7", "payment.refunded", "rfnd_6", 100000, map[string]string{
		"referenceNumber": "SR-E00000000001",
	})
	result, err := signedProcess(t, p, refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, store.PaymentRefunded, result.Request.PaymentStatus)
	assert.Equal(t, 1, notifier.refunded)

	// A second refund delivery settles as a duplicate
	refund2 := webhookBody(t, "evt_8", "payment.refunded", "rfnd_6", 100000, map[string]string{
		"referenceNumber": "SR-E00000000001",
	})
	result, err = signedProcess(t, p, refund2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, 1, notifier.refunded)
}

func TestProcessWebhook_RedeliveryAfterRefund(t *testing.T) {
	p, notifier := newTestProcessor(t)

	create := webhookBody(t, "evt_40", "payment.success", "txn_40", 100000, map[string]string{
		"referenceNumber": "SR-K00000000001",
	})
	_, err := signedProcess(t, p, create)
	require.NoError(t, err)

	refund := webhookBody(t, "evt_41", "payment.refunded", "rfnd_40", 100000, map[string]string{
		"referenceNumber": "SR-K00000000001",
	})
	_, err = signedProcess(t, p, refund)
	require.NoError(t, err)

	// The provider redelivers the original success event after its ack was
	// lost. The payment is refunded by now, but a processed event id must
	// settle as a no-op success, never a conflict.
	result, err := signedProcess(t, p, create)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, store.PaymentRefunded, result.Request.PaymentStatus)
	assert.Equal(t, 1, notifier.received)
	assert.Equal(t, 1, notifier.refunded)
}

// casMissStore loses every compare-and-set and reflects the winning
// delivery's state on re-read.
type casMissStore struct {
	store.ServiceRequestStore
	mu    sync.Mutex
	reads int
}

func (s *casMissStore) SeenEvent(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *casMissStore) GetByReference(_ context.Context, ref string) (*store.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	status := store.PaymentPending
	if s.reads > 1 {
		status = store.PaymentCompleted
	}
	return &store.ServiceRequest{ID: "req-race-1", ReferenceNumber: ref, PaymentStatus: status}, nil
}

func (s *casMissStore) ApplyPaymentTransition(_ context.Context, _ string, _, _ store.PaymentStatus, _, _ string) (bool, error) {
	return false, nil
}

func TestProcessWebhook_LostRaceReportsCurrentStatus(t *testing.T) {
	adapter := mockpay.NewProvider()
	require.NoError(t, adapter.Initialize(gateway.Config{
		Provider:      "mockpay",
		APIKey:        "key",
		APISecret:     "secret",
		WebhookSecret: testWebhookSecret,
	}))

	notifier := &recordingNotifier{}
	p := NewProcessor(adapter, &casMissStore{}, notifier)

	body := webhookBody(t, "evt_42", "payment.success", "txn_42", 100000, map[string]string{
		"referenceNumber": "SR-L00000000001",
	})
	result, err := signedProcess(t, p, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)

	// The result carries the status the race winner left behind, not the one
	// read before the guard missed
	assert.Equal(t, store.PaymentCompleted, result.Request.PaymentStatus)
	assert.Equal(t, 0, notifier.received)
}

func TestProcessWebhook_IncompatibleEvent(t *testing.T) {
	p, _ := newTestProcessor(t)

	create := webhookBody(t, "evt_9", "payment.success", "txn_9", 100000, map[string]string{
		"referenceNumber": "SR-F00000000001",
	})
	_, err := signedProcess(t, p, create)
	require.NoError(t, err)

	refund := webhookBody(t, "evt_10", "payment.refunded", "rfnd_9", 100000, map[string]string{
		"referenceNumber": "SR-F00000000001",
	})
	_, err = signedProcess(t, p, refund)
	require.NoError(t, err)

	// A success event against a refunded payment contradicts history
	late := webhookBody(t, "evt_11", "payment.success", "txn_9b", 100000, map[string]string{
		"referenceNumber": "SR-F00000000001",
	})
	_, err = signedProcess(t, p, late)
	assert.ErrorIs(t, err, ErrIncompatibleEvent)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		current store.PaymentStatus
		kind    gateway.EventKind
		next    store.PaymentStatus
		apply   bool
		ok      bool
	}{
		{"pending_success", store.PaymentPending, gateway.EventPaymentSucceeded, store.PaymentCompleted, true, true},
		{"pending_failed", store.PaymentPending, gateway.EventPaymentFailed, store.PaymentFailed, true, true},
		{"pending_refund_rejected", store.PaymentPending, gateway.EventPaymentRefunded, store.PaymentPending, false, false},
		{"completed_success_noop", store.PaymentCompleted, gateway.EventPaymentSucceeded, store.PaymentCompleted, false, true},
		{"completed_failed_rejected", store.PaymentCompleted, gateway.EventPaymentFailed, store.PaymentCompleted, false, false},
		{"completed_refund", store.PaymentCompleted, gateway.EventPaymentRefunded, store.PaymentRefunded, true, true},
		{"failed_success_retry", store.PaymentFailed, gateway.EventPaymentSucceeded, store.PaymentCompleted, true, true},
		{"failed_failed_noop", store.PaymentFailed, gateway.EventPaymentFailed, store.PaymentFailed, false, true},
		{"failed_refund_rejected", store.PaymentFailed, gateway.EventPaymentRefunded, store.PaymentFailed, false, false},
		{"refunded_success_rejected", store.PaymentRefunded, gateway.EventPaymentSucceeded, store.PaymentRefunded, false, false},
		{"refunded_failed_rejected", store.PaymentRefunded, gateway.EventPaymentFailed, store.PaymentRefunded, false, false},
		{"refunded_refund_noop", store.PaymentRefunded, gateway.EventPaymentRefunded, store.PaymentRefunded, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, apply, ok := transition(tt.current, tt.kind)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.apply, apply)
			if ok {
				assert.Equal(t, tt.next, next)
			}
		})
	}
}

func TestNewReferenceNumber(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref := NewReferenceNumber()
		assert.True(t, strings.HasPrefix(ref, "SR-"))
		assert.Len(t, ref, 15)
		assert.False(t, seen[ref], "reference numbers must not repeat")
		seen[ref] = true
	}
}

func TestCreateIntent(t *testing.T) {
	p, _ := newTestProcessor(t)

	reference, intent, err := p.CreateIntent(context.Background(), IntentParams{
		ServiceID:     "svc-cleaning",
		Amount:        150000,
		Currency:      "INR",
		CustomerName:  "Asha Rao",
		CustomerEmail: "asha@example.com",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reference, "SR-"))
	assert.NotNil(t, intent)
	assert.Equal(t, int64(150000), intent.Amount)

	// No request exists until a success webhook lands
	_, err = p.GetRequest(context.Background(), reference)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRetryPayment_AlreadyPaid(t *testing.T) {
	p, _ := newTestProcessor(t)

	create := webhookBody(t, "evt_20", "payment.success", "txn_20", 100000, map[string]string{
		"referenceNumber": "SR-G00000000001",
	})
	_, err := signedProcess(t, p, create)
	require.NoError(t, err)

	_, err = p.RetryPayment(context.Background(), "SR-G00000000001")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestRetryPayment_UnknownReference(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.RetryPayment(context.Background(), "SR-NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdminTransition(t *testing.T) {
	p, notifier := newTestProcessor(t)

	create := webhookBody(t, "evt_30", "payment.success", "txn_30", 100000, map[string]string{
		"referenceNumber": "SR-H00000000001",
	})
	result, err := signedProcess(t, p, create)
	require.NoError(t, err)

	updated, err := p.AdminTransition(context.Background(), result.Request.ID, store.ServiceTeamAssigned, "prov-5", "admin@sevasetu.in", "crew booked")
	require.NoError(t, err)
	assert.Equal(t, store.ServiceTeamAssigned, updated.ServiceStatus)
	assert.Equal(t, "prov-5", updated.AssignedProviderID)
	assert.Equal(t, 1, notifier.statusChg)

	// Creation, provider assignment, then the status change
	history, err := p.RequestHistory(context.Background(), result.Request.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "assigned provider prov-5", history[1].Note)
	assert.Equal(t, "admin@sevasetu.in", history[2].ChangedBy)
	assert.Equal(t, "crew booked", history[2].Note)
}

func TestAdminTransition_ProviderOnlyWritesHistory(t *testing.T) {
	p, notifier := newTestProcessor(t)

	create := webhookBody(t, "evt_32", "payment.success", "txn_32", 100000, map[string]string{
		"referenceNumber": "SR-J00000000001",
	})
	result, err := signedProcess(t, p, create)
	require.NoError(t, err)

	updated, err := p.AdminTransition(context.Background(), result.Request.ID, "", "prov-9", "admin@sevasetu.in", "")
	require.NoError(t, err)
	assert.Equal(t, "prov-9", updated.AssignedProviderID)
	assert.Equal(t, store.ServicePaymentConfirmed, updated.ServiceStatus)
	assert.Equal(t, 1, notifier.statusChg)

	history, err := p.RequestHistory(context.Background(), result.Request.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "assigned provider prov-9", history[1].Note)
	assert.Equal(t, "admin@sevasetu.in", history[1].ChangedBy)
}

func TestAdminTransition_BackwardRejected(t *testing.T) {
	p, _ := newTestProcessor(t)

	create := webhookBody(t, "evt_31", "payment.success", "txn_31", 100000, map[string]string{
		"referenceNumber": "SR-I00000000001",
	})
	result, err := signedProcess(t, p, create)
	require.NoError(t, err)

	_, err = p.AdminTransition(context.Background(), result.Request.ID, store.ServiceInProgress, "", "admin", "")
	require.NoError(t, err)

	_, err = p.AdminTransition(context.Background(), result.Request.ID, store.ServicePendingContact, "", "admin", "")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}
