package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyINR Currency = "INR"
)

func ParseCurrency(value string) (Currency, error) {
	switch c := Currency(value); c {
	case CurrencyUSD, CurrencyINR:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrCurrencyInvalid, value)
	}
}

const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"
)

type Wallet struct {
	ID        uuid.UUID
	Owner     OwnerRef
	Balance   decimal.Decimal // always in Currency, never negative
	Currency  Currency
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an append-only record of one balance change.
// Amount is always positive, the direction is carried by Type.
type Transaction struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	Amount      decimal.Decimal
	Type        string
	Description string
	By          string
	CreatedAt   time.Time
}

// Signed amount: positive for credits and negative for debits
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Wallet with balance different from the sum of its transactions
type Discrepancy struct {
	Owner   OwnerRef
	Balance decimal.Decimal
	Ledger  decimal.Decimal
}
