package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/service/auth"
	"github.com/nkiryanov/seowallet/internal/service/wallet"
)

// Currency of wallets created by public signup
const DefaultCurrency = models.CurrencyINR

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
	wallets *wallet.WalletService
	logger  logger.Logger
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, wallets *wallet.WalletService, l logger.Logger) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		wallets: wallets,
		logger:  l,
	}
}

type CreateParams struct {
	Username string
	Password string
	Role     string
	Currency models.Currency

	// Reseller creating the owner, nil otherwise
	ParentID *uuid.UUID
}

// CreateOwner creates the user with an empty wallet in one transaction
func (s *UserService) CreateOwner(ctx context.Context, p CreateParams) (models.User, models.Wallet, error) {
	var (
		user models.User
		w    models.Wallet
	)

	if p.Password == "" {
		return user, w, apperrors.ErrPasswordInvalid
	}
	if !models.IsValidRole(p.Role) {
		return user, w, fmt.Errorf("%w: %q", apperrors.ErrRoleInvalid, p.Role)
	}
	if _, err := models.ParseCurrency(string(p.Currency)); err != nil {
		return user, w, err
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return user, w, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		user, err = st.User().CreateUser(ctx, models.User{
			Username:       p.Username,
			HashedPassword: hash,
			Role:           p.Role,
			ParentID:       p.ParentID,
		})
		if err != nil {
			return err
		}

		w, err = s.wallets.WithStore(st).CreateWallet(ctx, user.Owner(), p.Currency)
		return err
	})
	if err != nil {
		return models.User{}, models.Wallet{}, fmt.Errorf("can't create owner. Err: %w", err)
	}

	s.logger.Info("Owner created", "owner", user.Owner().String(), "currency", w.Currency)
	return user, w, nil
}

// Register is the public signup: a plain user with a wallet in the default currency
func (s *UserService) Register(ctx context.Context, username string, password string) (models.User, error) {
	user, _, err := s.CreateOwner(ctx, CreateParams{
		Username: username,
		Password: password,
		Role:     models.RoleUser,
		Currency: DefaultCurrency,
	})
	return user, err
}

// DeleteOwner removes the wallet with its history and the user in one transaction
func (s *UserService) DeleteOwner(ctx context.Context, id uuid.UUID) error {
	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err := st.User().GetUserByID(ctx, id)
		if err != nil {
			return err
		}

		err = s.wallets.WithStore(st).DeleteWallet(ctx, user.Owner())
		if err != nil && !errors.Is(err, apperrors.ErrWalletNotFound) {
			return err
		}

		return st.User().DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Owner deleted", "owner_id", id)
	return nil
}

// Unknown username and wrong password are reported the same way
func (s *UserService) Login(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, apperrors.ErrUserNotFound
	case err != nil:
		return user, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, id)
}
