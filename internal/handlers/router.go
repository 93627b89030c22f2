package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/handlers/middleware"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/service/plan"
	"github.com/nkiryanov/seowallet/internal/service/recharge"
	"github.com/nkiryanov/seowallet/internal/service/user"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Auth     authService
	Owners   ownerService
	Wallets  walletService
	Recharge rechargeService
	Plans    planService

	// Optional: idempotency keys are not enforced without it
	Cache          *redis.Client
	IdempotencyTTL time.Duration
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(s.Auth)
	idempotent := middleware.Idempotency(s.Cache, s.IdempotencyTTL, logger)

	authed := func(h http.Handler, roles ...string) http.Handler {
		if len(roles) == 0 {
			return withAuth(h)
		}
		return chain(h, withAuth, middleware.RequireRole(roles...))
	}
	mutating := func(h http.Handler, roles ...string) http.Handler {
		return authed(idempotent(h), roles...)
	}

	managers := []string{models.RoleAdmin, models.RoleReseller}

	api := http.NewServeMux()

	api.Handle("POST /auth/register", handleRegister(s.Auth, logger))
	api.Handle("POST /auth/login", handleLogin(s.Auth, logger))
	api.Handle("GET /me", authed(handleMe()))

	api.Handle("POST /owners", authed(handleCreateOwner(s.Owners, logger), managers...))
	api.Handle("DELETE /owners/{id}", authed(handleDeleteOwner(s.Owners, logger), models.RoleAdmin))

	api.Handle("GET /wallets/{kind}/{id}", authed(handleWalletHistory(s.Wallets, s.Owners, logger)))
	api.Handle("POST /wallets/transfer", mutating(handleTransfer(s.Wallets, s.Owners, logger), managers...))
	api.Handle("POST /wallets/withdraw", mutating(handleWithdraw(s.Wallets, s.Owners, logger), managers...))
	api.Handle("POST /wallets/recharge/init", authed(handleRechargeInit(s.Recharge, logger)))
	api.Handle("POST /wallets/recharge/verify", mutating(handleRechargeVerify(s.Recharge, logger)))
	api.Handle("GET /payments", authed(handleListPayments(s.Recharge, logger), managers...))
	api.Handle("POST /admin/wallet/recharge", mutating(handleAdminRecharge(s.Wallets, logger), models.RoleAdmin))

	api.Handle("GET /plans", handleListPlans(s.Plans, logger))
	api.Handle("POST /plans/purchase", mutating(handlePurchasePlan(s.Plans, logger), models.RoleUser))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Has to return apperrors.ErrUserNotFound if user not found or password is wrong
	Login(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Set access token to response
	SetToken(w http.ResponseWriter, token models.IssuedToken)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type ownerService interface {
	CreateOwner(ctx context.Context, p user.CreateParams) (models.User, models.Wallet, error)
	DeleteOwner(ctx context.Context, id uuid.UUID) error
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type walletService interface {
	GetHistory(ctx context.Context, owner models.OwnerRef, display models.Currency) (wallet.Statement, error)
	Transfer(ctx context.Context, from models.OwnerRef, to models.OwnerRef, amount decimal.Decimal, by string) (wallet.TransferResult, error)
	Credit(ctx context.Context, owner models.OwnerRef, amount decimal.Decimal, by string, description string) (models.Wallet, error)
	Debit(ctx context.Context, owner models.OwnerRef, amount decimal.Decimal, description string, by string) (models.Wallet, error)
}

type rechargeService interface {
	Init(ctx context.Context, owner models.OwnerRef, amount decimal.Decimal) (recharge.InitResult, error)
	Verify(ctx context.Context, owner models.OwnerRef, orderID string, paymentID string, signature string, by string) (recharge.VerifyResult, error)
	List(ctx context.Context, caller models.User, limit int) ([]models.Payment, error)
}

type planService interface {
	List(ctx context.Context) ([]models.Plan, error)
	Purchase(ctx context.Context, userID uuid.UUID, planName string) (plan.PurchaseResult, error)
}
