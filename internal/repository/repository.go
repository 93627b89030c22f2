package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/models"
)

// Storage gives access to every repository bound to the same connection or transaction
type Storage interface {
	User() UserRepo
	Wallet() WalletRepo
	Payment() PaymentRepo
	Plan() PlanRepo

	// Run fn within a transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Same as GetUserByID, but locks the user row until the transaction ends
	GetUserByIDForUpdate(ctx context.Context, userID uuid.UUID) (models.User, error)

	// Must return apperrors.ErrUserNotFound if nothing deleted
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Set the active plan and reset the usage counter
	ActivatePlan(ctx context.Context, userID uuid.UUID, planID uuid.UUID, activatedAt time.Time, endsAt time.Time) (models.User, error)
}

// Wallet repository interface
type WalletRepo interface {
	// Create zero balance wallet
	// Must return apperrors.ErrWalletAlreadyExists if the owner has a wallet
	CreateWallet(ctx context.Context, owner models.OwnerRef, currency models.Currency) (models.Wallet, error)

	// Must return apperrors.ErrWalletNotFound if the owner has no wallet
	GetWallet(ctx context.Context, owner models.OwnerRef) (models.Wallet, error)

	// Transactions of the wallet, newest first
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error)

	// The wallet with its transactions, newest first, read from one snapshot
	// so the balance always equals the history total.
	// Must return apperrors.ErrWalletNotFound if the owner has no wallet
	GetHistory(ctx context.Context, owner models.OwnerRef) (models.Wallet, []models.Transaction, error)

	// Apply the transaction to the owner's wallet and record it as one atomic step.
	// A debit that would make the balance negative changes nothing and returns *apperrors.InsufficientBalanceError.
	// Must return apperrors.ErrWalletNotFound if the owner has no wallet.
	Apply(ctx context.Context, owner models.OwnerRef, tx models.Transaction) (models.Wallet, error)

	// Delete the wallet with its transactions
	// Must return apperrors.ErrWalletNotFound if nothing deleted
	DeleteWallet(ctx context.Context, owner models.OwnerRef) error

	// Wallets whose balance differs from the sum of their transactions
	FindDiscrepancies(ctx context.Context) ([]models.Discrepancy, error)
}

// Payment repository interface
type PaymentRepo interface {
	CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error)

	// Lock the payment row until the transaction ends
	// Must return apperrors.ErrPaymentNotFound if not exists
	GetByOrderForUpdate(ctx context.Context, gatewayOrderID string) (models.Payment, error)

	MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string, signature string) (models.Payment, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (models.Payment, error)

	// Payments still in 'created' status created before olderThan, oldest first
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)

	// Payments matching the filter, newest first
	List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)
}

// Zero filter matches every payment
type PaymentFilter struct {
	// Payments made by this owner or by the users it manages
	ManagedBy *uuid.UUID
	Limit     int
}

// Plan repository interface
type PlanRepo interface {
	// Insert the plan or update it by name
	Upsert(ctx context.Context, p models.Plan) (models.Plan, error)

	// Must return apperrors.ErrPlanNotFound if not exists
	GetByName(ctx context.Context, name string) (models.Plan, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Plan, error)

	// Plans ordered by price
	List(ctx context.Context) ([]models.Plan, error)
}
