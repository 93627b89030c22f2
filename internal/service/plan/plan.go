package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
)

// Plans every installation starts with
var DefaultPlans = []models.Plan{
	{Name: models.PlanTrial, Price: decimal.Zero, Currency: models.CurrencyINR, DurationDays: 7, SearchesLimit: 10},
	{Name: models.PlanMonthly, Price: decimal.NewFromInt(799), Currency: models.CurrencyINR, DurationDays: 30, SearchesLimit: 50},
	{Name: models.PlanThreeMonths, Price: decimal.NewFromInt(2499), Currency: models.CurrencyINR, DurationDays: 90, SearchesLimit: 180},
	{Name: models.PlanSixMonths, Price: decimal.NewFromInt(4699), Currency: models.CurrencyINR, DurationDays: 180, SearchesLimit: 360},
	{Name: models.PlanYearly, Price: decimal.NewFromInt(7999), Currency: models.CurrencyINR, DurationDays: 365, SearchesLimit: 950},
}

type PlanService struct {
	storage repository.Storage
	wallets *wallet.WalletService
	logger  logger.Logger
}

func NewService(storage repository.Storage, wallets *wallet.WalletService, l logger.Logger) *PlanService {
	return &PlanService{storage: storage, wallets: wallets, logger: l}
}

// Seed inserts the default plans or updates them by name
func (s *PlanService) Seed(ctx context.Context) error {
	return s.storage.InTx(ctx, func(st repository.Storage) error {
		for _, p := range DefaultPlans {
			if _, err := st.Plan().Upsert(ctx, p); err != nil {
				return fmt.Errorf("can't seed plan %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	return s.storage.Plan().List(ctx)
}

type PurchaseResult struct {
	User   models.User
	Plan   models.Plan
	Wallet models.Wallet
}

// Purchase debits the plan price from the user's wallet and activates the plan
// Only upgrades are allowed. Nothing is activated if the debit fails.
func (s *PlanService) Purchase(ctx context.Context, userID uuid.UUID, planName string) (PurchaseResult, error) {
	var res PurchaseResult

	targetRank, ok := models.PlanRanks[planName]
	if !ok {
		return res, fmt.Errorf("%w: %q", apperrors.ErrPlanNotFound, planName)
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		// Concurrent purchases of one user wait here and see the plan activated by the first one
		user, err := st.User().GetUserByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		target, err := st.Plan().GetByName(ctx, planName)
		if err != nil {
			return err
		}

		if user.PlanID != nil {
			current, err := st.Plan().GetByID(ctx, *user.PlanID)
			switch {
			case errors.Is(err, apperrors.ErrPlanNotFound):
			case err != nil:
				return err
			case targetRank <= models.PlanRanks[current.Name]:
				return fmt.Errorf("%w: %s to %s", apperrors.ErrPlanDowngrade, current.Name, target.Name)
			}
		}

		wallets := s.wallets.WithStore(st)
		owner := user.Owner()

		b, err := wallets.GetBalance(ctx, owner, "")
		if err != nil {
			return err
		}
		res.Wallet = b.Wallet

		// Trial is free and needs no debit
		if target.Price.IsPositive() {
			if b.Wallet.Currency != target.Currency {
				return fmt.Errorf("%w: wallet in %s, plan in %s", apperrors.ErrCurrencyMismatch, b.Wallet.Currency, target.Currency)
			}

			res.Wallet, err = wallets.Debit(ctx, owner, target.Price, "Plan purchase: "+target.Name, user.ID.String())
			if err != nil {
				return err
			}
		}

		now := time.Now()
		res.User, err = st.User().ActivatePlan(ctx, user.ID, target.ID, now, now.AddDate(0, 0, target.DurationDays))
		if err != nil {
			return err
		}
		res.Plan = target
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	s.logger.Info("Plan purchased", "user_id", userID, "plan", res.Plan.Name, "ends_at", res.User.PlanEndsAt)
	return res, nil
}
