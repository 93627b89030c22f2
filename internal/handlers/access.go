package handlers

import (
	"context"
	"errors"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
)

// authorize returns apperrors.ErrForbidden unless the caller may act on the target wallet.
// Admins act on any wallet, owners on their own, resellers also on wallets of users they created.
func authorize(ctx context.Context, owners ownerService, caller models.User, target models.OwnerRef) error {
	if caller.Role == models.RoleAdmin || caller.Owner() == target {
		return nil
	}

	if caller.Role != models.RoleReseller || target.Kind != models.OwnerUser {
		return apperrors.ErrForbidden
	}

	child, err := owners.GetUserByID(ctx, target.ID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return apperrors.ErrForbidden
	case err != nil:
		return err
	case child.ParentID == nil || *child.ParentID != caller.ID:
		return apperrors.ErrForbidden
	}

	return nil
}
