package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/testutil"
)

func credit(amount int64) models.Transaction {
	return models.Transaction{Amount: decimal.NewFromInt(amount), Type: models.TransactionTypeCredit, Description: "test credit", By: "test"}
}

func debit(amount int64) models.Transaction {
	return models.Transaction{Amount: decimal.NewFromInt(amount), Type: models.TransactionTypeDebit, Description: "test debit", By: "test"}
}

func TestWallet(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			storage := NewStorage(innerTx)
			fn(innerTx, storage)
		})
	}

	owner := models.OwnerRef{ID: uuid.New(), Kind: models.OwnerUser}

	t.Run("CreateWallet", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					wallet, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)

					require.NoError(t, err)
					assert.NotEqual(t, uuid.Nil, wallet.ID)
					assert.Equal(t, owner, wallet.Owner)
					assert.Equal(t, models.CurrencyINR, wallet.Currency)
					assert.True(t, wallet.Balance.IsZero(), "new wallet must be empty")
					assert.WithinDuration(t, time.Now(), wallet.CreatedAt, time.Second)
				})
			})

			t.Run("create duplicate", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
					require.NoError(t, err)

					_, err = storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyUSD)

					require.ErrorIs(t, err, apperrors.ErrWalletAlreadyExists)
				})
			})

			t.Run("same id different kind is another owner", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
					require.NoError(t, err)

					_, err = storage.Wallet().CreateWallet(t.Context(), models.OwnerRef{ID: owner.ID, Kind: models.OwnerReseller}, models.CurrencyINR)

					require.NoError(t, err)
				})
			})
		})
	})

	t.Run("GetWallet", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			created, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyUSD)
			require.NoError(t, err)

			got, err := storage.Wallet().GetWallet(t.Context(), owner)
			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)

			_, err = storage.Wallet().GetWallet(t.Context(), models.OwnerRef{ID: uuid.New(), Kind: models.OwnerUser})
			require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
		})
	})

	t.Run("Apply", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
			require.NoError(t, err)

			t.Run("credit then debit", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					wallet, err := storage.Wallet().Apply(t.Context(), owner, credit(1000))
					require.NoError(t, err)
					require.True(t, wallet.Balance.Equal(decimal.NewFromInt(1000)), "got %s", wallet.Balance)

					wallet, err = storage.Wallet().Apply(t.Context(), owner, debit(300))
					require.NoError(t, err)
					require.True(t, wallet.Balance.Equal(decimal.NewFromInt(700)), "got %s", wallet.Balance)

					txs, err := storage.Wallet().ListTransactions(t.Context(), wallet.ID)
					require.NoError(t, err)
					require.Len(t, txs, 2)
					assert.Equal(t, models.TransactionTypeDebit, txs[0].Type, "newest first")
					assert.Equal(t, models.TransactionTypeCredit, txs[1].Type)
					assert.Equal(t, "test debit", txs[0].Description)
					assert.Equal(t, "test", txs[0].By)
				})
			})

			t.Run("debit to exact zero", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Apply(t.Context(), owner, credit(50))
					require.NoError(t, err)

					wallet, err := storage.Wallet().Apply(t.Context(), owner, debit(50))

					require.NoError(t, err)
					require.True(t, wallet.Balance.IsZero())
				})
			})

			t.Run("insufficient balance changes nothing", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Wallet().Apply(t.Context(), owner, credit(100))
					require.NoError(t, err)

					_, err = storage.Wallet().Apply(t.Context(), owner, debit(101))

					require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
					var insufficient *apperrors.InsufficientBalanceError
					require.ErrorAs(t, err, &insufficient)
					assert.True(t, insufficient.Balance.Equal(decimal.NewFromInt(100)))
					assert.True(t, insufficient.Requested.Equal(decimal.NewFromInt(101)))
					assert.Equal(t, "INR", insufficient.Currency)

					txs, err := storage.Wallet().ListTransactions(t.Context(), created.ID)
					require.NoError(t, err)
					require.Len(t, txs, 1, "rejected debit must not be recorded")
				})
			})

			t.Run("wallet not found", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Apply(t.Context(), models.OwnerRef{ID: uuid.New(), Kind: models.OwnerUser}, credit(10))

					require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
				})
			})

			t.Run("fractional amounts", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Apply(t.Context(), owner, models.Transaction{
						Amount: decimal.RequireFromString("0.10"), Type: models.TransactionTypeCredit, By: "test",
					})
					require.NoError(t, err)

					wallet, err := storage.Wallet().Apply(t.Context(), owner, models.Transaction{
						Amount: decimal.RequireFromString("0.20"), Type: models.TransactionTypeCredit, By: "test",
					})

					require.NoError(t, err)
					require.Equal(t, "0.30", wallet.Balance.StringFixed(2))
				})
			})
		})
	})

	t.Run("GetHistory", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			t.Run("empty wallet", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
					require.NoError(t, err)

					wallet, txs, err := storage.Wallet().GetHistory(t.Context(), owner)

					require.NoError(t, err)
					assert.Equal(t, created.ID, wallet.ID)
					assert.True(t, wallet.Balance.IsZero())
					assert.Empty(t, txs)
					assert.NotNil(t, txs)
				})
			})

			t.Run("balance with history newest first", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
					require.NoError(t, err)
					for _, tr := range []models.Transaction{credit(10), credit(5), debit(3)} {
						_, err := storage.Wallet().Apply(t.Context(), owner, tr)
						require.NoError(t, err)
					}

					wallet, txs, err := storage.Wallet().GetHistory(t.Context(), owner)

					require.NoError(t, err)
					assert.Equal(t, "12.00", wallet.Balance.StringFixed(2))
					require.Len(t, txs, 3)
					assert.Equal(t, models.TransactionTypeDebit, txs[0].Type)
					assert.Equal(t, "test debit", txs[0].Description)
					assert.Equal(t, "test", txs[0].By)
					assert.Equal(t, created.ID, txs[0].WalletID)
					assert.Equal(t, "10.00", txs[2].Amount.StringFixed(2))
				})
			})

			t.Run("wallet not found", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, _, err := storage.Wallet().GetHistory(t.Context(), models.OwnerRef{ID: uuid.New(), Kind: models.OwnerAdmin})

					require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
				})
			})
		})
	})

	t.Run("DeleteWallet", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
			require.NoError(t, err)
			_, err = storage.Wallet().Apply(t.Context(), owner, credit(10))
			require.NoError(t, err)

			err = storage.Wallet().DeleteWallet(t.Context(), owner)
			require.NoError(t, err)

			_, err = storage.Wallet().GetWallet(t.Context(), owner)
			require.ErrorIs(t, err, apperrors.ErrWalletNotFound)

			err = storage.Wallet().DeleteWallet(t.Context(), owner)
			require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
		})
	})

	t.Run("transactions are append only", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			wallet, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
			require.NoError(t, err)
			_, err = storage.Wallet().Apply(t.Context(), owner, credit(10))
			require.NoError(t, err)

			_, err = tx.Exec(t.Context(), "UPDATE wallet_transactions SET amount = 1000 WHERE wallet_id = $1", wallet.ID)

			require.Error(t, err)
			require.Contains(t, err.Error(), "append only")
		})
	})

	t.Run("FindDiscrepancies", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			wallet, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
			require.NoError(t, err)
			_, err = storage.Wallet().Apply(t.Context(), owner, credit(10))
			require.NoError(t, err)

			found, err := storage.Wallet().FindDiscrepancies(t.Context())
			require.NoError(t, err)
			require.Empty(t, found, "ledger matches balance")

			_, err = tx.Exec(t.Context(), "UPDATE wallets SET balance = 25 WHERE id = $1", wallet.ID)
			require.NoError(t, err)

			found, err = storage.Wallet().FindDiscrepancies(t.Context())
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, owner, found[0].Owner)
			assert.True(t, found[0].Balance.Equal(decimal.NewFromInt(25)))
			assert.True(t, found[0].Ledger.Equal(decimal.NewFromInt(10)))
		})
	})

	t.Run("InTx rolls back on error", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
			require.NoError(t, err)

			err = storage.InTx(t.Context(), func(s repository.Storage) error {
				_, err := s.Wallet().Apply(t.Context(), owner, credit(500))
				require.NoError(t, err)
				return apperrors.ErrForbidden
			})
			require.ErrorIs(t, err, apperrors.ErrForbidden)

			wallet, err := storage.Wallet().GetWallet(t.Context(), owner)
			require.NoError(t, err)
			require.True(t, wallet.Balance.IsZero(), "credit must be rolled back")
		})
	})
}

// Concurrent debits run on the pool directly, every one in its own transaction
func TestWallet_ConcurrentDebits(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	storage := NewStorage(pg.Pool)
	owner := models.OwnerRef{ID: uuid.New(), Kind: models.OwnerReseller}

	_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Wallet().DeleteWallet(t.Context(), owner) })

	_, err = storage.Wallet().Apply(t.Context(), owner, credit(100))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.Wallet().Apply(t.Context(), owner, debit(10))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	wallet, err := storage.Wallet().GetWallet(t.Context(), owner)
	require.NoError(t, err)
	require.True(t, wallet.Balance.IsZero(), "got %s", wallet.Balance)

	found, err := storage.Wallet().FindDiscrepancies(t.Context())
	require.NoError(t, err)
	require.Empty(t, found)
}

// Readers on the pool race with writers; every snapshot must have balance == history total
func TestWallet_HistoryMatchesBalance(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	storage := NewStorage(pg.Pool)
	owner := models.OwnerRef{ID: uuid.New(), Kind: models.OwnerUser}

	_, err := storage.Wallet().CreateWallet(t.Context(), owner, models.CurrencyINR)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Wallet().DeleteWallet(context.Background(), owner) })

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				_, err := storage.Wallet().Apply(t.Context(), owner, credit(1))
				assert.NoError(t, err)
			}
		}()
	}

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				wallet, txs, err := storage.Wallet().GetHistory(t.Context(), owner)
				if !assert.NoError(t, err) {
					return
				}
				total := decimal.Zero
				for _, tx := range txs {
					total = total.Add(tx.Signed())
				}
				assert.True(t, total.Equal(wallet.Balance), "balance %s, history total %s", wallet.Balance, total)
			}
		}()
	}
	wg.Wait()

	wallet, txs, err := storage.Wallet().GetHistory(t.Context(), owner)
	require.NoError(t, err)
	require.Equal(t, "100.00", wallet.Balance.StringFixed(2))
	require.Len(t, txs, 100)
}
