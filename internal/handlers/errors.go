package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/handlers/middleware"
	"github.com/nkiryanov/seowallet/internal/handlers/render"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/service/gateway"
)

// Domain errors reported to the client as is
var badRequestErrors = []error{
	apperrors.ErrInvalidAmount,
	apperrors.ErrInsufficientBalance,
	apperrors.ErrCurrencyMismatch,
	apperrors.ErrCurrencyInvalid,
	apperrors.ErrSelfTransfer,
	apperrors.ErrOwnerKindInvalid,
	apperrors.ErrRoleInvalid,
	apperrors.ErrPasswordInvalid,
	apperrors.ErrPaymentSignatureInvalid,
	apperrors.ErrPlanDowngrade,
}

var notFoundErrors = []error{
	apperrors.ErrWalletNotFound,
	apperrors.ErrUserNotFound,
	apperrors.ErrPaymentNotFound,
	apperrors.ErrPlanNotFound,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// renderError maps service errors to HTTP statuses
func renderError(w http.ResponseWriter, l logger.Logger, op string, err error) {
	var gwErr *gateway.Error

	switch {
	// Checked first: it also unwraps to its cause
	case errors.Is(err, apperrors.ErrPartialTransfer):
		l.Error("Ledger is inconsistent after partial transfer", "op", op, "error", err)
		w.Header().Set(middleware.OutcomeUnknownHeader, "true")
		render.ServiceError(w, "Transfer partially applied, support is notified", http.StatusInternalServerError)
	case errors.Is(err, apperrors.ErrOutcomeUnknown):
		l.Warn("Store operation timed out", "op", op, "error", err)
		w.Header().Set(middleware.OutcomeUnknownHeader, "true")
		render.ServiceError(w, "Operation timed out, its outcome is unknown", http.StatusGatewayTimeout)
	case errors.Is(err, apperrors.ErrForbidden):
		render.ServiceError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrUserAlreadyExists), errors.Is(err, apperrors.ErrWalletAlreadyExists):
		render.ServiceError(w, err.Error(), http.StatusConflict)
	case isAny(err, notFoundErrors):
		render.ServiceError(w, err.Error(), http.StatusNotFound)
	case isAny(err, badRequestErrors):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &gwErr):
		l.Error("Payment gateway failed", "op", op, "error", err)
		render.ServiceError(w, "Payment gateway is unavailable", http.StatusBadGateway)
	default:
		l.Error("Request failed", "op", op, "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
