package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a ServiceRequestStore backed by SQLite, tuned for multiple
// concurrent webhook-handling processes (WAL, immediate transactions, busy
// retries).
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the request database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
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
			payment_amount INTEGER NOT NULL,
			payment_currency TEXT NOT NULL,
			payment_transaction_id TEXT NOT NULL DEFAULT '',
			gateway_name TEXT NOT NULL DEFAULT '',
			assigned_provider_id TEXT NOT NULL DEFAULT '',
			affiliate_id TEXT NOT NULL DEFAULT 'none',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS service_request_status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL REFERENCES service_requests(id),
			old_status TEXT NOT NULL DEFAULT '',
			new_status TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_webhook_events (
			gateway_event_id TEXT PRIMARY KEY,
			reference_number TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
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

// retryOperation executes a database operation with retry logic for
// SQLITE_BUSY errors.
func (s *SQLiteStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateOnFirstPayment atomically creates the request, its first history row
// and the processed-event record. A duplicate delivery of the creating event
// observes created=false and the existing row.
func (s *SQLiteStore) CreateOnFirstPayment(ctx context.Context, params CreateParams) (*ServiceRequest, bool, error) {
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

	var duplicate bool
	err := s.retryOperation(func() error {
		duplicate = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO processed_webhook_events (gateway_event_id, reference_number, created_at) VALUES (?, ?, ?)`,
			params.GatewayEventID, params.ReferenceNumber, now)
		if isUniqueViolation(err) {
			duplicate = true
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO service_requests (
				id, reference_number, service_id, tier_id,
				customer_name, customer_email, customer_phone,
				payment_status, service_status,
				payment_amount, payment_currency, payment_transaction_id,
				gateway_name, affiliate_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.ID, req.ReferenceNumber, req.ServiceID, req.TierID,
			req.CustomerName, req.CustomerEmail, req.CustomerPhone,
			req.PaymentStatus, req.ServiceStatus,
			req.PaymentAmount, req.PaymentCurrency, req.PaymentTransactionID,
			req.GatewayName, req.AffiliateID, req.CreatedAt, req.UpdatedAt)
		if isUniqueViolation(err) {
			// Same reference created by a concurrent first-success delivery
			// with a different event id.
			duplicate = true
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
			 VALUES (?, '', ?, ?, ?, ?)`,
			req.ID, string(PaymentCompleted), ChangedBySystem, "created on first payment success", now)
		if err != nil {
			return err
		}

		return tx.Commit()
	}, 4)
	if err != nil {
		return nil, false, fmt.Errorf("store: create on first payment: %w", err)
	}

	if duplicate {
		existing, err := s.GetByReference(ctx, params.ReferenceNumber)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return req, true, nil
}

// ApplyPaymentTransition is the compare-and-set primitive. The update is
// guarded by the expected prior status so a concurrent duplicate delivery
// observes zero rows changed rather than re-applying the effect.
func (s *SQLiteStore) ApplyPaymentTransition(ctx context.Context, referenceNumber string, expectedPrior, next PaymentStatus, gatewayEventID, transactionID string) (bool, error) {
	now := time.Now().UTC()

	var applied bool
	err := s.retryOperation(func() error {
		applied = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO processed_webhook_events (gateway_event_id, reference_number, created_at) VALUES (?, ?, ?)`,
			gatewayEventID, referenceNumber, now)
		if isUniqueViolation(err) {
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE service_requests
			 SET payment_status = ?, payment_transaction_id = ?, updated_at = ?
			 WHERE reference_number = ? AND payment_status = ?`,
			next, transactionID, now, referenceNumber, expectedPrior)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Prior status no longer matches: the transition was already
			// applied or superseded. Roll back so the event id stays free for
			// the delivery that does apply.
			return nil
		}

		var requestID string
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM service_requests WHERE reference_number = ?`, referenceNumber).Scan(&requestID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
			 VALUES (?, ?, ?, ?, '', ?)`,
			requestID, string(expectedPrior), string(next), ChangedBySystem, now)
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		applied = true
		return nil
	}, 4)
	if err != nil {
		return false, fmt.Errorf("store: apply payment transition: %w", err)
	}

	return applied, nil
}

// UpdateServiceStatus applies an admin-triggered service status change and
// appends the history row in the same transaction.
func (s *SQLiteStore) UpdateServiceStatus(ctx context.Context, id string, next ServiceStatus, changedBy, note string) (*StatusHistoryEntry, error) {
	now := time.Now().UTC()

	var entry *StatusHistoryEntry
	err := s.retryOperation(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var current ServiceStatus
		err = tx.QueryRowContext(ctx,
			`SELECT service_status FROM service_requests WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if !current.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE service_requests SET service_status = ?, updated_at = ? WHERE id = ?`,
			next, now, id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(current), string(next), changedBy, note, now)
		if err != nil {
			return err
		}
		entryID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		entry = &StatusHistoryEntry{
			ID:        entryID,
			RequestID: id,
			OldStatus: string(current),
			NewStatus: string(next),
			ChangedBy: changedBy,
			Note:      note,
			CreatedAt: now,
		}
		return nil
	}, 4)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// AssignProvider sets the assigned provider reference and appends a history
// entry for the assignment in the same transaction.
func (s *SQLiteStore) AssignProvider(ctx context.Context, id, providerID, changedBy string) error {
	now := time.Now().UTC()
	return s.retryOperation(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var current ServiceStatus
		err = tx.QueryRowContext(ctx,
			`SELECT service_status FROM service_requests WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE service_requests SET assigned_provider_id = ?, updated_at = ? WHERE id = ?`,
			providerID, now, id); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_request_status_history (request_id, old_status, new_status, changed_by, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(current), string(current), changedBy, "assigned provider "+providerID, now); err != nil {
			return err
		}

		return tx.Commit()
	}, 4)
}

// SeenEvent reports whether the gateway event id was already processed.
func (s *SQLiteStore) SeenEvent(ctx context.Context, gatewayEventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_webhook_events WHERE gateway_event_id = ?`, gatewayEventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const selectRequestColumns = `
	id, reference_number, service_id, tier_id,
	customer_name, customer_email, customer_phone,
	payment_status, service_status,
	payment_amount, payment_currency, payment_transaction_id,
	gateway_name, assigned_provider_id, affiliate_id,
	created_at, updated_at`

func (s *SQLiteStore) scanRequest(row *sql.Row) (*ServiceRequest, error) {
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
func (s *SQLiteStore) GetByReference(ctx context.Context, referenceNumber string) (*ServiceRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectRequestColumns+` FROM service_requests WHERE reference_number = ?`, referenceNumber)
	return s.scanRequest(row)
}

// GetByID looks up a request by id.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*ServiceRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectRequestColumns+` FROM service_requests WHERE id = ?`, id)
	return s.scanRequest(row)
}

// History returns all status history entries for a request, oldest first.
func (s *SQLiteStore) History(ctx context.Context, id string) ([]StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, old_status, new_status, changed_by, note, created_at
		 FROM service_request_status_history WHERE request_id = ? ORDER BY id ASC`, id)
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
