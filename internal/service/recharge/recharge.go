package recharge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/service/gateway"
	"github.com/nkiryanov/seowallet/internal/service/validate"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
)

const (
	// Actor recorded for recharges settled without the client
	SystemActor = "system"

	// Payments without a captured gateway payment are failed after this
	DefaultExpireAfter = 24 * time.Hour

	DefaultListLimit = 100
	MaxListLimit     = 500
)

type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency string, receipt string) (gateway.Order, error)
	OrderPayments(ctx context.Context, orderID string) ([]gateway.Payment, error)
	VerifySignature(orderID string, paymentID string, signature string) bool
}

type RechargeService struct {
	storage     repository.Storage
	wallets     *wallet.WalletService
	gateway     Gateway
	expireAfter time.Duration
	logger      logger.Logger
}

func NewService(storage repository.Storage, wallets *wallet.WalletService, gw Gateway, l logger.Logger) *RechargeService {
	return &RechargeService{
		storage:     storage,
		wallets:     wallets,
		gateway:     gw,
		expireAfter: DefaultExpireAfter,
		logger:      l,
	}
}

type InitResult struct {
	Payment models.Payment
	Order   gateway.Order
}

// Init creates the gateway order and the pending payment for it
func (s *RechargeService) Init(ctx context.Context, owner models.OwnerRef, amount decimal.Decimal) (InitResult, error) {
	var res InitResult

	if err := validate.Amount(amount); err != nil {
		return res, err
	}

	w, err := s.storage.Wallet().GetWallet(ctx, owner)
	if err != nil {
		return res, err
	}

	res.Order, err = s.gateway.CreateOrder(ctx, amount.Shift(2).IntPart(), string(w.Currency), receipt(owner, time.Now()))
	if err != nil {
		return res, fmt.Errorf("can't create gateway order: %w", err)
	}

	res.Payment, err = s.storage.Payment().CreatePayment(ctx, models.Payment{
		Owner:          owner,
		Amount:         amount,
		Currency:       w.Currency,
		GatewayOrderID: res.Order.ID,
		Status:         models.PaymentStatusCreated,
	})
	if err != nil {
		return res, fmt.Errorf("can't save payment: %w", err)
	}

	s.logger.Info("Recharge initiated", "owner", owner, "order_id", res.Order.ID, "amount", amount)
	return res, nil
}

// Gateway receipts are limited in length, so only the owner id tail is used
func receipt(owner models.OwnerRef, at time.Time) string {
	id := owner.ID.String()
	return fmt.Sprintf("w-%s-%d", id[len(id)-6:], at.UnixMilli())
}

type VerifyResult struct {
	Payment          models.Payment
	Wallet           models.Wallet
	AlreadyProcessed bool
}

// Verify the checkout signature and credit the wallet once per payment
func (s *RechargeService) Verify(ctx context.Context, owner models.OwnerRef, orderID string, paymentID string, signature string, by string) (VerifyResult, error) {
	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		return VerifyResult{}, apperrors.ErrPaymentSignatureInvalid
	}

	return s.settle(ctx, &owner, orderID, paymentID, signature, by)
}

func (s *RechargeService) settle(ctx context.Context, owner *models.OwnerRef, orderID string, paymentID string, signature string, by string) (VerifyResult, error) {
	var res VerifyResult

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		p, err := st.Payment().GetByOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if owner != nil && p.Owner != *owner {
			return apperrors.ErrPaymentNotFound
		}

		if p.Status == models.PaymentStatusPaid {
			res.Payment = p
			res.AlreadyProcessed = true
			return nil
		}

		res.Payment, err = st.Payment().MarkPaid(ctx, p.ID, paymentID, signature)
		if err != nil {
			return err
		}

		res.Wallet, err = s.wallets.WithStore(st).Credit(ctx, p.Owner, p.Amount, by, fmt.Sprintf("Wallet recharge via Razorpay (Payment ID: %s)", paymentID))
		return err
	})
	if err != nil {
		return VerifyResult{}, err
	}

	if !res.AlreadyProcessed {
		s.logger.Info("Recharge settled", "owner", res.Payment.Owner, "order_id", orderID, "payment_id", paymentID, "amount", res.Payment.Amount)
	}
	return res, nil
}

// List payments visible to the caller, newest first
// Admins see every payment, resellers their own and their users'.
func (s *RechargeService) List(ctx context.Context, caller models.User, limit int) ([]models.Payment, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	filter := repository.PaymentFilter{Limit: limit}
	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleReseller:
		filter.ManagedBy = &caller.ID
	default:
		return nil, apperrors.ErrForbidden
	}

	payments, err := s.storage.Payment().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("can't list payments: %w", err)
	}
	return payments, nil
}

func (s *RechargeService) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	return s.storage.Payment().ListPending(ctx, olderThan, limit)
}

// Reconcile a pending payment with the gateway
// Captured payment settles the recharge, stale payment with nothing captured is failed.
// Gateway errors are returned as is so the caller can respect throttling.
func (s *RechargeService) Reconcile(ctx context.Context, p models.Payment) error {
	payments, err := s.gateway.OrderPayments(ctx, p.GatewayOrderID)
	if err != nil {
		return err
	}

	for _, gp := range payments {
		if gp.Status != gateway.PaymentCaptured {
			continue
		}

		_, err := s.settle(ctx, nil, p.GatewayOrderID, gp.ID, "", SystemActor)
		return err
	}

	if time.Since(p.CreatedAt) < s.expireAfter {
		return nil
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		locked, err := st.Payment().GetByOrderForUpdate(ctx, p.GatewayOrderID)
		if err != nil {
			return err
		}
		if locked.Status != models.PaymentStatusCreated {
			return nil
		}
		_, err = st.Payment().MarkFailed(ctx, locked.ID)
		return err
	})
	if err != nil && !errors.Is(err, apperrors.ErrPaymentNotFound) {
		return err
	}

	s.logger.Info("Recharge expired", "owner", p.Owner, "order_id", p.GatewayOrderID)
	return nil
}
