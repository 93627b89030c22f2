package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
)

// Storage keeps wallets in process memory
// It has no transactions, so transfers over it run as a saga
type Storage struct {
	wallets *WalletRepo
}

func NewStorage() *Storage {
	return &Storage{wallets: NewWalletRepo()}
}

func (s *Storage) Wallet() repository.WalletRepo {
	return s.wallets
}

type wallet struct {
	mu      sync.Mutex
	deleted bool
	data    models.Wallet
	txs     []models.Transaction // append order
}

// WalletRepo serializes changes of one wallet with the wallet's own mutex
// Changes of different wallets don't block each other
type WalletRepo struct {
	mu      sync.RWMutex
	byOwner map[models.OwnerRef]*wallet
	byID    map[uuid.UUID]*wallet
}

func NewWalletRepo() *WalletRepo {
	return &WalletRepo{
		byOwner: make(map[models.OwnerRef]*wallet),
		byID:    make(map[uuid.UUID]*wallet),
	}
}

func (r *WalletRepo) CreateWallet(ctx context.Context, owner models.OwnerRef, currency models.Currency) (models.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return models.Wallet{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOwner[owner]; ok {
		return models.Wallet{}, apperrors.ErrWalletAlreadyExists
	}

	now := time.Now()
	w := &wallet{data: models.Wallet{
		ID:        uuid.New(),
		Owner:     owner,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	r.byOwner[owner] = w
	r.byID[w.data.ID] = w

	return w.data, nil
}

func (r *WalletRepo) GetWallet(ctx context.Context, owner models.OwnerRef) (models.Wallet, error) {
	w, err := r.lookup(ctx, owner)
	if err != nil {
		return models.Wallet{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deleted {
		return models.Wallet{}, apperrors.ErrWalletNotFound
	}
	return w.data, nil
}

func (r *WalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	w, ok := r.byID[walletID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	w.mu.Lock()
	txs := slices.Clone(w.txs)
	w.mu.Unlock()

	return newestFirst(txs), nil
}

// Equal timestamps keep reverse append order
func newestFirst(txs []models.Transaction) []models.Transaction {
	if txs == nil {
		txs = []models.Transaction{}
	}
	slices.Reverse(txs)
	slices.SortStableFunc(txs, func(a, b models.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return txs
}

func (r *WalletRepo) GetHistory(ctx context.Context, owner models.OwnerRef) (models.Wallet, []models.Transaction, error) {
	w, err := r.lookup(ctx, owner)
	if err != nil {
		return models.Wallet{}, nil, err
	}

	w.mu.Lock()
	if w.deleted {
		w.mu.Unlock()
		return models.Wallet{}, nil, apperrors.ErrWalletNotFound
	}
	data, txs := w.data, slices.Clone(w.txs)
	w.mu.Unlock()

	return data, newestFirst(txs), nil
}

func (r *WalletRepo) Apply(ctx context.Context, owner models.OwnerRef, tx models.Transaction) (models.Wallet, error) {
	w, err := r.lookup(ctx, owner)
	if err != nil {
		return models.Wallet{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deleted {
		return models.Wallet{}, apperrors.ErrWalletNotFound
	}

	balance := w.data.Balance.Add(tx.Signed())
	if balance.IsNegative() {
		return models.Wallet{}, &apperrors.InsufficientBalanceError{
			Balance:   w.data.Balance,
			Requested: tx.Amount,
			Currency:  string(w.data.Currency),
		}
	}

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	tx.WalletID = w.data.ID

	w.data.Balance = balance
	w.data.UpdatedAt = tx.CreatedAt
	w.txs = append(w.txs, tx)

	return w.data, nil
}

func (r *WalletRepo) DeleteWallet(ctx context.Context, owner models.OwnerRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	w, ok := r.byOwner[owner]
	if ok {
		delete(r.byOwner, owner)
		delete(r.byID, w.data.ID)
	}
	r.mu.Unlock()

	if !ok {
		return apperrors.ErrWalletNotFound
	}

	// Changes that already hold the wallet finish before it's gone
	w.mu.Lock()
	w.deleted = true
	w.mu.Unlock()

	return nil
}

func (r *WalletRepo) FindDiscrepancies(ctx context.Context) ([]models.Discrepancy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	wallets := make([]*wallet, 0, len(r.byOwner))
	for _, w := range r.byOwner {
		wallets = append(wallets, w)
	}
	r.mu.RUnlock()

	var found []models.Discrepancy
	for _, w := range wallets {
		w.mu.Lock()
		ledger := decimal.Zero
		for _, tx := range w.txs {
			ledger = ledger.Add(tx.Signed())
		}
		if !ledger.Equal(w.data.Balance) {
			found = append(found, models.Discrepancy{Owner: w.data.Owner, Balance: w.data.Balance, Ledger: ledger})
		}
		w.mu.Unlock()
	}

	return found, nil
}

func (r *WalletRepo) lookup(ctx context.Context, owner models.OwnerRef) (*wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byOwner[owner]
	if !ok {
		return nil, apperrors.ErrWalletNotFound
	}
	return w, nil
}
