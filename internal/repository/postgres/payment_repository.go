package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The repository expects this table:
//
//	CREATE TABLE payments (
//	    id          UUID PRIMARY KEY,
//	    reference   VARCHAR(64) NOT NULL UNIQUE,
//	    email       VARCHAR(254) NOT NULL,
//	    amount      NUMERIC(12,2) NOT NULL CHECK (amount > 0),
//	    status      CHAR(2) NOT NULL DEFAULT 'UP',
//	    processor   VARCHAR(32) NOT NULL,
//	    date        TIMESTAMPTZ NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX payments_unprocessed_idx ON payments (created_at) WHERE status = 'UP';

const paymentColumns = `id, reference, email, amount, status, processor, date, created_at, updated_at`

const uniqueViolation = "23505"

// DBTX is the common query interface satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: pool}
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Reference, p.Email, amountToNumeric(p.Amount), string(p.Status),
		p.Processor, p.Date, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrDuplicateReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByReference retrieves a payment by its gateway reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
}

// ExistsReference reports whether a reference is already taken.
func (r *PaymentRepository) ExistsReference(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE reference = $1)`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}
	return exists, nil
}

// Update writes a finalized payment. The row is only touched while still
// unprocessed.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $1, date = $2, updated_at = $3
		 WHERE reference = $4 AND status = $5`,
		string(p.Status), p.Date, p.UpdatedAt, p.Reference, string(payment.StatusUnprocessed),
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.ExistsReference(ctx, p.Reference)
	if err != nil {
		return err
	}
	if !exists {
		return domainErrors.ErrPaymentNotFound
	}
	return domainErrors.ErrPaymentAlreadyProcessed
}

// Delete removes a payment by reference.
func (r *PaymentRepository) Delete(ctx context.Context, reference string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE reference = $1`, reference)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// ListUnprocessed returns unprocessed payments created before the cutoff,
// oldest first.
func (r *PaymentRepository) ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		string(payment.StatusUnprocessed), createdBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// scanPayment scans a payment from any source implementing the scanner interface.
func scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		amountStr string
		status    string
	)
	err := s.Scan(
		&p.ID, &p.Reference, &p.Email, &amountStr, &status,
		&p.Processor, &p.Date, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	amount, err := numericToAmount(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = amount
	p.Status = payment.PaymentStatus(status)
	return p, nil
}
