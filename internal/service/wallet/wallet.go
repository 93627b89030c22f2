package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/currency"
	"github.com/nkiryanov/seowallet/internal/events"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/service/validate"
)

const (
	DefaultStoreTimeout = 5 * time.Second

	alertTimeout = 10 * time.Second
)

// Store the ledger works on
type Store interface {
	Wallet() repository.WalletRepo
}

// Stores able to run several operations in one transaction
type txStore interface {
	InTx(ctx context.Context, fn func(repository.Storage) error) error
}

type WalletService struct {
	store     Store
	converter currency.Converter
	alerts    events.Publisher
	timeout   time.Duration
	logger    logger.Logger
}

type Config struct {
	Converter    currency.Converter
	Alerts       events.Publisher
	StoreTimeout time.Duration
	Logger       logger.Logger
}

func NewService(store Store, cfg Config) *WalletService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Alerts == nil {
		cfg.Alerts = &events.LogPublisher{L: cfg.Logger}
	}

	return &WalletService{
		store:     store,
		converter: cfg.Converter,
		alerts:    cfg.Alerts,
		timeout:   cfg.StoreTimeout,
		logger:    cfg.Logger,
	}
}

// WithStore returns the service bound to another store, usually a transaction
func (s *WalletService) WithStore(store Store) *WalletService {
	bound := *s
	bound.store = store
	return &bound
}

func (s *WalletService) CreateWallet(ctx context.Context, owner models.OwnerRef, cur models.Currency) (models.Wallet, error) {
	if _, err := models.ParseCurrency(string(cur)); err != nil {
		return models.Wallet{}, err
	}

	return s.mutate(ctx, func(ctx context.Context) (models.Wallet, error) {
		return s.store.Wallet().CreateWallet(ctx, owner, cur)
	})
}

func (s *WalletService) DeleteWallet(ctx context.Context, owner models.OwnerRef) error {
	_, err := s.mutate(ctx, func(ctx context.Context) (models.Wallet, error) {
		return models.Wallet{}, s.store.Wallet().DeleteWallet(ctx, owner)
	})
	return err
}

// Credit adds amount to the owner's wallet and records it
func (s *WalletService) Credit(ctx context.Context, owner models.OwnerRef, amount decimal.Decimal, by string, description string) (models.Wallet, error) {
	if err := validate.Amount(amount); err != nil {
		return models.Wallet{}, err
	}

	return s.apply(ctx, owner, models.Transaction{
		Amount:      amount,
		Type:        models.TransactionTypeCredit,
		Description: description,
		By:          by,
	})
}

// Debit takes amount from the owner's wallet
// Balance is checked by the store in the same step that changes it
func (s *WalletService) Debit(ctx context.Context, owner models.OwnerRef, amount decimal.Decimal, description string, by string) (models.Wallet, error) {
	if err := validate.Amount(amount); err != nil {
		return models.Wallet{}, err
	}

	return s.apply(ctx, owner, models.Transaction{
		Amount:      amount,
		Type:        models.TransactionTypeDebit,
		Description: description,
		By:          by,
	})
}

func (s *WalletService) apply(ctx context.Context, owner models.OwnerRef, tx models.Transaction) (models.Wallet, error) {
	return s.mutate(ctx, func(ctx context.Context) (models.Wallet, error) {
		return s.store.Wallet().Apply(ctx, owner, tx)
	})
}

// Run store mutation with bounded time
// If the deadline is hit the store may or may not have committed the change
func (s *WalletService) mutate(ctx context.Context, fn func(context.Context) (models.Wallet, error)) (models.Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	w, err := fn(ctx)
	if err != nil && isInterrupted(ctx, err) {
		return w, fmt.Errorf("%w: %w", apperrors.ErrOutcomeUnknown, err)
	}

	return w, err
}

func (s *WalletService) read(ctx context.Context, owner models.OwnerRef) (models.Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.store.Wallet().GetWallet(ctx, owner)
}

func isInterrupted(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	// Drivers don't always wrap context errors
	var insufficient *apperrors.InsufficientBalanceError
	known := errors.As(err, &insufficient) ||
		errors.Is(err, apperrors.ErrWalletNotFound) ||
		errors.Is(err, apperrors.ErrWalletAlreadyExists)

	return ctx.Err() != nil && !known
}

func (s *WalletService) raise(ctx context.Context, alert events.Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()

	if err := s.alerts.PublishAlert(ctx, alert); err != nil {
		s.logger.Error("Failed to publish ledger alert", "kind", alert.Kind, "owner", alert.Owner, "error", err)
	}
}
