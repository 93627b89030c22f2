package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

const walletColumns = `id, owner_id, owner_kind, balance, currency, created_at, updated_at`

const createWallet = `-- name: CreateWallet
INSERT INTO wallets (id, owner_id, owner_kind, balance, currency, created_at, updated_at)
VALUES ($1, $2, $3, 0, $4, $5, $5)
RETURNING ` + walletColumns

func (r *WalletRepo) CreateWallet(ctx context.Context, owner models.OwnerRef, currency models.Currency) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, createWallet, uuid.New(), owner.ID, owner.Kind, currency, time.Now())
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return wallet, apperrors.ErrWalletAlreadyExists
		}

		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

const getWallet = `-- name: GetWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE owner_id = $1 AND owner_kind = $2
`

func (r *WalletRepo) GetWallet(ctx context.Context, owner models.OwnerRef) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWallet, owner.ID, owner.Kind)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

const listTransactions = `-- name: ListTransactions
SELECT id, wallet_id, amount, type, description, by_actor, created_at FROM wallet_transactions
WHERE wallet_id = $1
ORDER BY created_at DESC, seq DESC
`

func (r *WalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listTransactions, walletID)
	txs, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return txs, nil
}

// One statement reads one snapshot: the balance and the history can't disagree
const getHistory = `-- name: GetHistory
SELECT w.id, w.owner_id, w.owner_kind, w.balance, w.currency, w.created_at, w.updated_at,
	t.id, t.amount, t.type, t.description, t.by_actor, t.created_at
FROM wallets w
LEFT JOIN wallet_transactions t ON t.wallet_id = w.id
WHERE w.owner_id = $1 AND w.owner_kind = $2
ORDER BY t.created_at DESC, t.seq DESC
`

func (r *WalletRepo) GetHistory(ctx context.Context, owner models.OwnerRef) (models.Wallet, []models.Transaction, error) {
	var (
		wallet models.Wallet
		txs    = []models.Transaction{}
		found  bool

		// Transaction columns are NULL for a wallet without history
		txID                   *uuid.UUID
		amount                 *decimal.Decimal
		txType, descr, byActor *string
		createdAt              *time.Time
	)

	rows, _ := r.DB.Query(ctx, getHistory, owner.ID, owner.Kind)
	_, err := pgx.ForEachRow(rows, []any{
		&wallet.ID, &wallet.Owner.ID, &wallet.Owner.Kind, &wallet.Balance, &wallet.Currency, &wallet.CreatedAt, &wallet.UpdatedAt,
		&txID, &amount, &txType, &descr, &byActor, &createdAt,
	}, func() error {
		found = true
		if txID != nil {
			txs = append(txs, models.Transaction{
				ID:          *txID,
				WalletID:    wallet.ID,
				Amount:      *amount,
				Type:        *txType,
				Description: *descr,
				By:          *byActor,
				CreatedAt:   *createdAt,
			})
		}
		return nil
	})
	switch {
	case err != nil:
		return models.Wallet{}, nil, fmt.Errorf("db error: %w", err)
	case !found:
		return models.Wallet{}, nil, apperrors.ErrWalletNotFound
	}

	return wallet, txs, nil
}

// Change the balance only if it stays non negative and record the transaction in the same statement.
// The row lock taken by UPDATE serializes concurrent changes of one wallet,
// the guard is re-evaluated against the latest committed balance.
const applyTransaction = `-- name: ApplyTransaction
WITH updated AS (
	UPDATE wallets
	SET balance = balance + $3::numeric, updated_at = $4
	WHERE owner_id = $1 AND owner_kind = $2 AND balance + $3::numeric >= 0
	RETURNING ` + walletColumns + `
), inserted AS (
	INSERT INTO wallet_transactions (id, wallet_id, amount, type, description, by_actor, created_at)
	SELECT $5, updated.id, $6::numeric, $7, $8, $9, $4 FROM updated
)
SELECT ` + walletColumns + ` FROM updated
`

const getBalanceForReport = `-- name: GetBalanceForReport
SELECT balance, currency FROM wallets
WHERE owner_id = $1 AND owner_kind = $2
`

func (r *WalletRepo) Apply(ctx context.Context, owner models.OwnerRef, tx models.Transaction) (models.Wallet, error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, applyTransaction,
		owner.ID, owner.Kind, tx.Signed(), tx.CreatedAt,
		tx.ID, tx.Amount, tx.Type, tx.Description, tx.By,
	)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return wallet, fmt.Errorf("db error: %w", err)
	}

	// Nothing updated: either no wallet or the guard rejected the debit
	var (
		balance  decimal.Decimal
		currency string
	)
	err = r.DB.QueryRow(ctx, getBalanceForReport, owner.ID, owner.Kind).Scan(&balance, &currency)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	case err != nil:
		return wallet, fmt.Errorf("db error: %w", err)
	default:
		return wallet, &apperrors.InsufficientBalanceError{Balance: balance, Requested: tx.Amount, Currency: currency}
	}
}

const deleteWallet = `-- name: DeleteWallet
DELETE FROM wallets
WHERE owner_id = $1 AND owner_kind = $2
`

func (r *WalletRepo) DeleteWallet(ctx context.Context, owner models.OwnerRef) error {
	tag, err := r.DB.Exec(ctx, deleteWallet, owner.ID, owner.Kind)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrWalletNotFound
	}

	return nil
}

const findDiscrepancies = `-- name: FindDiscrepancies
SELECT w.owner_id, w.owner_kind, w.balance, l.total
FROM wallets w
CROSS JOIN LATERAL (
	SELECT COALESCE(SUM(CASE WHEN t.type = 'credit' THEN t.amount ELSE -t.amount END), 0) AS total
	FROM wallet_transactions t
	WHERE t.wallet_id = w.id
) l
WHERE w.balance <> l.total
ORDER BY w.created_at
`

func (r *WalletRepo) FindDiscrepancies(ctx context.Context) ([]models.Discrepancy, error) {
	rows, _ := r.DB.Query(ctx, findDiscrepancies)
	found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Discrepancy, error) {
		var d models.Discrepancy
		err := row.Scan(&d.Owner.ID, &d.Owner.Kind, &d.Balance, &d.Ledger)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return found, nil
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.Owner.ID, &w.Owner.Kind, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Description, &t.By, &t.CreatedAt)
	return t, err
}
