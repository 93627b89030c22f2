package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
)

type PaymentRepo struct {
	DB DBTX
}

const paymentColumns = `id, owner_id, owner_kind, amount, currency, gateway_order_id, gateway_payment_id, gateway_signature, status, created_at, updated_at`

const createPayment = `-- name: CreatePayment
INSERT INTO payments (id, owner_id, owner_kind, amount, currency, gateway_order_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING ` + paymentColumns

func (r *PaymentRepo) CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusCreated
	}

	rows, _ := r.DB.Query(ctx, createPayment, p.ID, p.Owner.ID, p.Owner.Kind, p.Amount, p.Currency, p.GatewayOrderID, p.Status, p.CreatedAt)
	payment, err := pgx.CollectOneRow(rows, rowToPayment)
	if err != nil {
		return payment, fmt.Errorf("db error: %w", err)
	}

	return payment, nil
}

const getPaymentByOrderForUpdate = `-- name: GetPaymentByOrderForUpdate
SELECT ` + paymentColumns + ` FROM payments
WHERE gateway_order_id = $1
FOR UPDATE
`

func (r *PaymentRepo) GetByOrderForUpdate(ctx context.Context, gatewayOrderID string) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, getPaymentByOrderForUpdate, gatewayOrderID)
	return collectPayment(rows)
}

const markPaymentPaid = `-- name: MarkPaymentPaid
UPDATE payments
SET status = 'paid', gateway_payment_id = $2, gateway_signature = $3, updated_at = $4
WHERE id = $1
RETURNING ` + paymentColumns

func (r *PaymentRepo) MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string, signature string) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, markPaymentPaid, id, gatewayPaymentID, signature, time.Now())
	return collectPayment(rows)
}

const markPaymentFailed = `-- name: MarkPaymentFailed
UPDATE payments
SET status = 'failed', updated_at = $2
WHERE id = $1
RETURNING ` + paymentColumns

func (r *PaymentRepo) MarkFailed(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, markPaymentFailed, id, time.Now())
	return collectPayment(rows)
}

const listPendingPayments = `-- name: ListPendingPayments
SELECT ` + paymentColumns + ` FROM payments
WHERE status = 'created' AND created_at < $1
ORDER BY created_at
LIMIT $2
`

func (r *PaymentRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	rows, _ := r.DB.Query(ctx, listPendingPayments, olderThan, limit)
	payments, err := pgx.CollectRows(rows, rowToPayment)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return payments, nil
}

const listPayments = `-- name: ListPayments
SELECT ` + paymentColumns + ` FROM payments
WHERE $1::uuid IS NULL
	OR owner_id = $1
	OR owner_id IN (SELECT id FROM users WHERE parent_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2
`

func (r *PaymentRepo) List(ctx context.Context, filter repository.PaymentFilter) ([]models.Payment, error) {
	rows, _ := r.DB.Query(ctx, listPayments, filter.ManagedBy, filter.Limit)
	payments, err := pgx.CollectRows(rows, rowToPayment)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return payments, nil
}

func collectPayment(rows pgx.Rows) (models.Payment, error) {
	payment, err := pgx.CollectOneRow(rows, rowToPayment)

	switch {
	case err == nil:
		return payment, nil
	case errors.Is(err, pgx.ErrNoRows):
		return payment, apperrors.ErrPaymentNotFound
	default:
		return payment, fmt.Errorf("db error: %w", err)
	}
}

func rowToPayment(row pgx.CollectableRow) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.Owner.ID, &p.Owner.Kind, &p.Amount, &p.Currency,
		&p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewaySignature, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
