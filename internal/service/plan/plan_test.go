package plan

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
	"github.com/nkiryanov/seowallet/internal/currency"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/repository/postgres"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
	"github.com/nkiryanov/seowallet/internal/testutil"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	converter, err := currency.NewConverter(decimal.RequireFromString("83.71"))
	require.NoError(t, err)

	type env struct {
		s       *PlanService
		storage repository.Storage
		wallets *wallet.WalletService
		user    models.User
	}

	// Seeded plans and a user with a wallet holding balance
	inTx := func(t *testing.T, balance int64, fn func(e env)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			wallets := wallet.NewService(storage, wallet.Config{Converter: converter})
			s := NewService(storage, wallets, logger.NewNoOpLogger())
			require.NoError(t, s.Seed(t.Context()))

			user, err := storage.User().CreateUser(t.Context(), models.User{Username: "buyer", HashedPassword: "hash", Role: models.RoleUser})
			require.NoError(t, err)
			_, err = wallets.CreateWallet(t.Context(), user.Owner(), models.CurrencyINR)
			require.NoError(t, err)
			if balance > 0 {
				_, err = wallets.Credit(t.Context(), user.Owner(), decimal.NewFromInt(balance), "admin", "seed")
				require.NoError(t, err)
			}

			fn(env{s: s, storage: storage, wallets: wallets, user: user})
		})
	}

	balance := func(t *testing.T, e env) string {
		b, err := e.wallets.GetBalance(t.Context(), e.user.Owner(), "")
		require.NoError(t, err)
		return b.Amount.StringFixed(2)
	}

	t.Run("seed is repeatable", func(t *testing.T) {
		inTx(t, 0, func(e env) {
			require.NoError(t, e.s.Seed(t.Context()))

			plans, err := e.s.List(t.Context())
			require.NoError(t, err)
			require.Len(t, plans, len(DefaultPlans))
			assert.Equal(t, models.PlanTrial, plans[0].Name)
			assert.Equal(t, models.PlanYearly, plans[len(plans)-1].Name)
		})
	})

	t.Run("purchase debits and activates", func(t *testing.T) {
		inTx(t, 1000, func(e env) {
			res, err := e.s.Purchase(t.Context(), e.user.ID, models.PlanMonthly)

			require.NoError(t, err)
			assert.Equal(t, models.PlanMonthly, res.Plan.Name)
			assert.Equal(t, "201.00", res.Wallet.Balance.StringFixed(2))
			require.NotNil(t, res.User.PlanID)
			assert.Equal(t, res.Plan.ID, *res.User.PlanID)
			require.NotNil(t, res.User.PlanEndsAt)
			assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *res.User.PlanEndsAt, time.Minute)

			st, err := e.wallets.GetHistory(t.Context(), e.user.Owner(), "")
			require.NoError(t, err)
			assert.Equal(t, "Plan purchase: MONTHLY", st.Transactions[0].Description)
			assert.Equal(t, e.user.ID.String(), st.Transactions[0].By)
		})
	})

	t.Run("insufficient balance activates nothing", func(t *testing.T) {
		inTx(t, 100, func(e env) {
			_, err := e.s.Purchase(t.Context(), e.user.ID, models.PlanYearly)

			require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
			assert.Equal(t, "100.00", balance(t, e))

			user, err := e.storage.User().GetUserByID(t.Context(), e.user.ID)
			require.NoError(t, err)
			assert.Nil(t, user.PlanID)
		})
	})

	t.Run("trial is free", func(t *testing.T) {
		inTx(t, 0, func(e env) {
			res, err := e.s.Purchase(t.Context(), e.user.ID, models.PlanTrial)

			require.NoError(t, err)
			assert.Equal(t, models.PlanTrial, res.Plan.Name)
			assert.Equal(t, "0.00", balance(t, e))
		})
	})

	t.Run("only upgrades", func(t *testing.T) {
		inTx(t, 10000, func(e env) {
			_, err := e.s.Purchase(t.Context(), e.user.ID, models.PlanThreeMonths)
			require.NoError(t, err)

			_, err = e.s.Purchase(t.Context(), e.user.ID, models.PlanThreeMonths)
			require.ErrorIs(t, err, apperrors.ErrPlanDowngrade)

			_, err = e.s.Purchase(t.Context(), e.user.ID, models.PlanMonthly)
			require.ErrorIs(t, err, apperrors.ErrPlanDowngrade)
			assert.Equal(t, "7501.00", balance(t, e), "rejected purchases don't debit")

			_, err = e.s.Purchase(t.Context(), e.user.ID, models.PlanYearly)
			require.NoError(t, err)
		})
	})

	t.Run("unknown plan", func(t *testing.T) {
		inTx(t, 0, func(e env) {
			_, err := e.s.Purchase(t.Context(), e.user.ID, "LIFETIME")

			require.ErrorIs(t, err, apperrors.ErrPlanNotFound)
		})
	})

	t.Run("unknown user", func(t *testing.T) {
		inTx(t, 0, func(e env) {
			_, err := e.s.Purchase(t.Context(), uuid.New(), models.PlanMonthly)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("wallet in another currency", func(t *testing.T) {
		inTx(t, 0, func(e env) {
			user, err := e.storage.User().CreateUser(t.Context(), models.User{Username: "usd-buyer", HashedPassword: "hash", Role: models.RoleUser})
			require.NoError(t, err)
			_, err = e.wallets.CreateWallet(t.Context(), user.Owner(), models.CurrencyUSD)
			require.NoError(t, err)
			_, err = e.wallets.Credit(t.Context(), user.Owner(), decimal.NewFromInt(10000), "admin", "seed")
			require.NoError(t, err)

			_, err = e.s.Purchase(t.Context(), user.ID, models.PlanMonthly)

			require.ErrorIs(t, err, apperrors.ErrCurrencyMismatch)
		})
	})
}

// Purchases run on the pool directly, every one in its own transaction
func TestPlan_ConcurrentPurchase(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	converter, err := currency.NewConverter(decimal.RequireFromString("83.71"))
	require.NoError(t, err)

	storage := postgres.NewStorage(pg.Pool)
	wallets := wallet.NewService(storage, wallet.Config{Converter: converter})
	s := NewService(storage, wallets, logger.NewNoOpLogger())
	require.NoError(t, s.Seed(t.Context()))

	user, err := storage.User().CreateUser(t.Context(), models.User{Username: "buyer-" + uuid.NewString(), HashedPassword: "hash", Role: models.RoleUser})
	require.NoError(t, err)
	_, err = wallets.CreateWallet(t.Context(), user.Owner(), models.CurrencyINR)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = storage.Wallet().DeleteWallet(context.Background(), user.Owner())
		_ = storage.User().DeleteUser(context.Background(), user.ID)
	})

	_, err = wallets.Credit(t.Context(), user.Owner(), decimal.NewFromInt(2000), "admin", "seed")
	require.NoError(t, err)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		purchased  int
		downgraded int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Purchase(t.Context(), user.ID, models.PlanMonthly)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				purchased++
			case assert.ErrorIs(t, err, apperrors.ErrPlanDowngrade):
				downgraded++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, purchased, "one plan is paid once")
	assert.Equal(t, 1, downgraded, "the repeat sees the plan already active")

	b, err := wallets.GetBalance(t.Context(), user.Owner(), "")
	require.NoError(t, err)
	require.Equal(t, "1201.00", b.Amount.StringFixed(2))

	st, err := wallets.GetHistory(t.Context(), user.Owner(), "")
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2, "seed credit and one plan debit")
}
