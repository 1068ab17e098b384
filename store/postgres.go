package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore is the production ServiceRequestStore. The conditional-update
// semantics are identical to the SQLite variant; Postgres carries the
// concurrency load across multiple service replicas.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres with a bounded retry loop and ensures
// the schema exists.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	var db *sql.DB
	var err error

	for attempts := 1; attempts <= 5; attempts++ {
		db, err = sql.Open("postgres", connStr)
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}

		db.Close()
		db = nil
		time.Sleep(2 * time.Second)
	}
	if db == nil {
		return nil, fmt.Errorf("failed to connect to postgres after 5 attempts: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS service_requests (
			id TEXT PRIMARY KEY,
			reference_number TEXT NOT NULL UNIQUE,
			service_id TEXT NOT NULL DEFAULT '',
			tier_id TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			customer_email TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			payment_status TEXT NOT NULL,
			service_status TEXT NOT NULL,
			payment_amount BIGINT NOT NULL,
			payment_currency TEXT NOT NULL,
			payment_transaction_id TEXT NOT NULL DEFAULT '',
			gateway_name TEXT NOT NULL DEFAULT '',
			assigned_provider_id TEXT NOT NULL DEFAULT '',
			affiliate_id TEXT NOT NULL DEFAULT 'none',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS service_request_status_history (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL REFERENCES service_requests(id),
			old_status TEXT NOT NULL DEFAULT '',
			new_status TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_webhook_events (
			gateway_event_id TEXT PRIMARY KEY,
			reference_number TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_request ON service_request_status_history(request_id)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func isPQUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// CreateOnFirstPayment atomically creates the request, its first history row
// and the processed-event record.
func (s *PostgresStore) CreateOnFirstPayment(ctx context.Context, params CreateParams) (*ServiceRequest, bool, error) {
	affiliateID := params.AffiliateID
	if affiliateID == "" {
		affiliateID = NoAffiliateID
	}

	now := time.Now().UTC()
	req := &ServiceRequest{
		ID:                   uuid.New().String(),
		ReferenceNumber:      params.ReferenceNumber,
		ServiceID:            params.ServiceID,
		TierID:               params.TierID,
		CustomerName:         params.CustomerName,
		CustomerEmail:        params.CustomerEmail,
		CustomerPhone:        params.CustomerPhone,
		PaymentStatus:        PaymentCompleted,
		ServiceStatus:        ServicePaymentConfirmed,
		PaymentAmount:        params.Amount,
		PaymentCurrency:      params.Currency,
		PaymentTransactionID: params.TransactionID,
		GatewayName:          params.GatewayName,
		AffiliateID:          affiliateID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: create on first payment: %w", err)
	}
	defer tx.Rollback()

	duplicate := false
	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_webhook_events (gateway_event_id, reference_number, created_at) VALUES ($1, $2, $3)`,
		params.GatewayEventID, params.ReferenceNumber, now)
	if isPQUniqueViolation(err) {
		duplicate = true
	} else if err != nil {
		return nil, false, fmt.Errorf("store: create on first payment: %w", err)
	}

	if !duplicate {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO service_requests (
				id, reference_number, service_id, tier_id,
				customer_name, customer_email, customer_phone,
				payment_status, service_status,
				payment_amount, payment_currency, payment_transaction_id,
				gateway_name, affiliate_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			req.ID, req.ReferenceNumber, req.ServiceID, req.TierID,
			req.CustomerName, req.CustomerEmail, req.CustomerPhone,
			req.PaymentStatus, req.ServiceStatus,
			req.PaymentAmount, req.PaymentCurrency, req.PaymentTransactionID,
			req.GatewayName, req.AffiliateID, req.CreatedAt, req.UpdatedAt)
		if isPQUniqueViolation(err) {
			duplicate = true
		} else if err != nil {
			return nil, false, fmt.Errorf("store: create on first payment: %w", err)
		}
	}

	if duplicate {
		existing, err := s.GetByReference(ctx, params.ReferenceNumber)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
		 VALUES ($1, '', $2, $3, $4, $5)`,
		req.ID, string(PaymentCompleted), ChangedBySystem, "created on first payment success", now)
	if err != nil {
		return nil, false, fmt.Errorf("store: create on first payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: create on first payment: %w", err)
	}

	return req, true, nil
}

// ApplyPaymentTransition is the compare-and-set primitive.
func (s *PostgresStore) ApplyPaymentTransition(ctx context.Context, referenceNumber string, expectedPrior, next PaymentStatus, gatewayEventID, transactionID string) (bool, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: apply payment transition: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_webhook_events (gateway_event_id, reference_number, created_at) VALUES ($1, $2, $3)`,
		gatewayEventID, referenceNumber, now)
	if isPQUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: apply payment transition: %w", err)
	}

	var requestID string
	err = tx.QueryRowContext(ctx,
		`UPDATE service_requests
		 SET payment_status = $1, payment_transaction_id = $2, updated_at = $3
		 WHERE reference_number = $4 AND payment_status = $5
		 RETURNING id`,
		next, transactionID, now, referenceNumber, expectedPrior).Scan(&requestID)
	if err == sql.ErrNoRows {
		// Already applied or superseded; roll back so the event id stays free
		// for the delivery that does apply.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: apply payment transition: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
		 VALUES ($1, $2, $3, $4, '', $5)`,
		requestID, string(expectedPrior), string(next), ChangedBySystem, now)
	if err != nil {
		return false, fmt.Errorf("store: apply payment transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: apply payment transition: %w", err)
	}
	return true, nil
}

// UpdateServiceStatus applies an admin-triggered service status change.
func (s *PostgresStore) UpdateServiceStatus(ctx context.Context, id string, next ServiceStatus, changedBy, note string) (*StatusHistoryEntry, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current ServiceStatus
	err = tx.QueryRowContext(ctx,
		`SELECT service_status FROM service_requests WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE service_requests SET service_status = $1, updated_at = $2 WHERE id = $3`,
		next, now, id); err != nil {
		return nil, err
	}

	var entryID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		id, string(current), string(next), changedBy, note, now).Scan(&entryID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &StatusHistoryEntry{
		ID:        entryID,
		RequestID: id,
		OldStatus: string(current),
		NewStatus: string(next),
		ChangedBy: changedBy,
		Note:      note,
		CreatedAt: now,
	}, nil
}

// AssignProvider sets the assigned provider reference and appends a history
// entry for the assignment in the same transaction.
func (s *PostgresStore) AssignProvider(ctx context.Context, id, providerID, changedBy string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current ServiceStatus
	err = tx.QueryRowContext(ctx,
		`SELECT service_status FROM service_requests WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE service_requests SET assigned_provider_id = $1, updated_at = $2 WHERE id = $3`,
		providerID, now, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(current), string(current), changedBy, "assigned provider "+providerID, now); err != nil {
		return err
	}

	return tx.Commit()
}

// SeenEvent reports whether the gateway event id was already processed.
func (s *PostgresStore) SeenEvent(ctx context.Context, gatewayEventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_webhook_events WHERE gateway_event_id = $1`, gatewayEventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) scanRequest(row *sql.Row) (*ServiceRequest, error) {
	var req ServiceRequest
	err := row.Scan(
		&req.ID, &req.ReferenceNumber, &req.ServiceID, &req.TierID,
		&req.CustomerName, &req.CustomerEmail, &req.CustomerPhone,
		&req.PaymentStatus, &req.ServiceStatus,
		&req.PaymentAmount, &req.PaymentCurrency, &req.PaymentTransactionID,
		&req.GatewayName, &req.AssignedProviderID, &req.AffiliateID,
		&req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByReference looks up a request by its externally-visible reference number.
func (s *PostgresStore) GetByReference(ctx context.Context, referenceNumber string) (*ServiceRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectRequestColumns+` FROM service_requests WHERE reference_number = $1`, referenceNumber)
	return s.scanRequest(row)
}

// GetByID looks up a request by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*ServiceRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectRequestColumns+` FROM service_requests WHERE id = $1`, id)
	return s.scanRequest(row)
}

// History returns all status history entries for a request, oldest first.
func (s *PostgresStore) History(ctx context.Context, id string) ([]StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, old_status, new_status, changed_by, note, created_at
		 FROM service_request_status_history WHERE request_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StatusHistoryEntry
	for rows.Next() {
		var e StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.OldStatus, &e.NewStatus, &e.ChangedBy, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
