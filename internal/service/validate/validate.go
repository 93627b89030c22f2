package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
)

// Amount of money accepted by the ledger: positive with at most two fractional digits
func Amount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive, got %s", apperrors.ErrInvalidAmount, amount)
	}

	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: at most 2 decimal places allowed, got %s", apperrors.ErrInvalidAmount, amount)
	}

	return nil
}

// Parse and validate amount given as text
func ParseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", apperrors.ErrInvalidAmount, value)
	}

	return amount, Amount(amount)
}
