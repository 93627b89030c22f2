package wallet

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository/postgres"
	"github.com/nkiryanov/seowallet/internal/testutil"
)

func TestWalletService_TransferPostgres(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	storage := postgres.NewStorage(pg.Pool)
	s := NewService(storage, Config{Converter: newConverter(t), Alerts: &recordingPublisher{}, StoreTimeout: 30 * time.Second})

	// Pair of funded wallets; first one has the lower id and is locked first
	newPair := func(t *testing.T, balance string) (low models.Wallet, high models.Wallet) {
		t.Helper()
		var wallets [2]models.Wallet
		for i := range wallets {
			owner := models.OwnerRef{ID: uuid.New(), Kind: models.OwnerUser}
			w, err := s.CreateWallet(t.Context(), owner, models.CurrencyINR)
			require.NoError(t, err)
			if !dec(balance).IsZero() {
				w, err = s.Credit(t.Context(), owner, dec(balance), "admin1", "seed")
				require.NoError(t, err)
			}
			wallets[i] = w
			t.Cleanup(func() { _ = storage.Wallet().DeleteWallet(context.Background(), owner) })
		}
		if bytes.Compare(wallets[0].ID[:], wallets[1].ID[:]) > 0 {
			wallets[0], wallets[1] = wallets[1], wallets[0]
		}
		return wallets[0], wallets[1]
	}

	balanceOf := func(t *testing.T, owner models.OwnerRef) string {
		t.Helper()
		w, err := storage.Wallet().GetWallet(t.Context(), owner)
		require.NoError(t, err)
		return w.Balance.StringFixed(2)
	}

	t.Run("rejected debit rolls back credit", func(t *testing.T) {
		tests := []struct {
			name         string
			sourceLocked string
		}{
			{name: "destination locked first", sourceLocked: "second"},
			{name: "source locked first", sourceLocked: "first"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				low, high := newPair(t, "10")
				from, to := high, low
				if tt.sourceLocked == "first" {
					from, to = low, high
				}

				_, err := s.Transfer(t.Context(), from.Owner, to.Owner, dec("25"), "admin1")

				require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
				assert.Equal(t, "10.00", balanceOf(t, from.Owner))
				assert.Equal(t, "10.00", balanceOf(t, to.Owner), "credit must not survive the rejected debit")

				history, err := s.GetHistory(t.Context(), to.Owner, "")
				require.NoError(t, err)
				assert.Len(t, history.Transactions, 1, "only the seed credit")
			})
		}
	})

	t.Run("both orders move money", func(t *testing.T) {
		low, high := newPair(t, "50")

		res, err := s.Transfer(t.Context(), high.Owner, low.Owner, dec("20"), "admin1")
		require.NoError(t, err)
		assert.Equal(t, "30.00", res.From.Balance.StringFixed(2))
		assert.Equal(t, "70.00", res.To.Balance.StringFixed(2))
		assert.Equal(t, high.ID, res.From.ID)

		res, err = s.Transfer(t.Context(), low.Owner, high.Owner, dec("5"), "admin1")
		require.NoError(t, err)
		assert.Equal(t, "65.00", res.From.Balance.StringFixed(2))
		assert.Equal(t, "35.00", res.To.Balance.StringFixed(2))
	})

	t.Run("missing destination", func(t *testing.T) {
		from, _ := newPair(t, "10")
		missing := models.OwnerRef{ID: uuid.New(), Kind: models.OwnerUser}

		_, err := s.Transfer(t.Context(), from.Owner, missing, dec("1"), "admin1")

		require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
		assert.Equal(t, "10.00", balanceOf(t, from.Owner))
	})

	t.Run("opposite transfers don't deadlock", func(t *testing.T) {
		a, b := newPair(t, "100")

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := range 40 {
			from, to := a.Owner, b.Owner
			if i%2 == 1 {
				from, to = to, from
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Transfer(t.Context(), from, to, dec("3"), "admin1")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
			}
		}

		total := dec(balanceOf(t, a.Owner)).Add(dec(balanceOf(t, b.Owner)))
		assert.Equal(t, "200.00", total.StringFixed(2), "money is conserved")

		found, err := storage.Wallet().FindDiscrepancies(t.Context())
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}
