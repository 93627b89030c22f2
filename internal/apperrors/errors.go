package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrRoleInvalid       = errors.New("role is invalid")
	ErrForbidden         = errors.New("action is not allowed")
	ErrPasswordInvalid   = errors.New("password is invalid")
	ErrTokenInvalid      = errors.New("access token is invalid")

	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	ErrOwnerKindInvalid    = errors.New("owner kind is invalid")
	ErrCurrencyInvalid     = errors.New("currency is invalid")
	ErrInvalidAmount       = errors.New("amount is invalid")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCurrencyMismatch    = errors.New("wallet currencies do not match")
	ErrSelfTransfer        = errors.New("transfer to the same wallet")
	ErrPartialTransfer     = errors.New("transfer partially applied")

	// Store operation hit its deadline: it may or may not have been committed
	ErrOutcomeUnknown = errors.New("operation outcome unknown")

	ErrConfiguration = errors.New("configuration error")

	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentSignatureInvalid = errors.New("payment signature is invalid")

	ErrPlanNotFound  = errors.New("plan not found")
	ErrPlanDowngrade = errors.New("plan can only be upgraded")
)

// InsufficientBalanceError reports the balance the debit was checked against
type InsufficientBalanceError struct {
	Balance   decimal.Decimal
	Requested decimal.Decimal
	Currency  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %s %s available, %s requested", e.Balance.StringFixed(2), e.Currency, e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// PartialTransferError means the source was debited but the destination was not credited
// and the debit could not be reverted. The ledger total is broken until reconciled by hand.
type PartialTransferError struct {
	From   string
	To     string
	Amount decimal.Decimal
	Cause  error
}

func (e *PartialTransferError) Error() string {
	return fmt.Sprintf("transfer of %s from %s to %s partially applied: %v", e.Amount.StringFixed(2), e.From, e.To, e.Cause)
}

func (e *PartialTransferError) Unwrap() []error {
	return []error{ErrPartialTransfer, e.Cause}
}
