package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/models"
)

// Converter turns ledger amounts into display amounts
// Its results must never be fed back into the ledger
type Converter struct {
	usdRate decimal.Decimal // INR per one USD
}

// Create converter with the INR per USD rate
// Rate must be positive
func NewConverter(usdRate decimal.Decimal) (Converter, error) {
	if !usdRate.IsPositive() {
		return Converter{}, fmt.Errorf("%w: USD rate must be positive, got %s", apperrors.ErrConfiguration, usdRate)
	}

	return Converter{usdRate: usdRate}, nil
}

// Parse the rate as it comes from the environment
func ParseRate(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%w: USD rate is not set", apperrors.ErrConfiguration)
	}

	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: USD rate %q is not a number", apperrors.ErrConfiguration, value)
	}

	return rate, nil
}

func (c Converter) Rate() decimal.Decimal {
	return c.usdRate
}

// Convert amount and round it to cents
func (c Converter) Convert(amount decimal.Decimal, from models.Currency, to models.Currency) (decimal.Decimal, error) {
	if !c.usdRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: currency converter has no USD rate", apperrors.ErrConfiguration)
	}

	switch {
	case from == to:
		return amount.Round(2), nil
	case from == models.CurrencyINR && to == models.CurrencyUSD:
		return amount.Div(c.usdRate).Round(2), nil
	case from == models.CurrencyUSD && to == models.CurrencyINR:
		return amount.Mul(c.usdRate).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: can't convert %s to %s", apperrors.ErrCurrencyInvalid, from, to)
	}
}
