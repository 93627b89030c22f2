package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/models"
)

// Balance of the wallet converted for display
type Balance struct {
	Wallet   models.Wallet
	Amount   decimal.Decimal
	Currency models.Currency
}

type StatementLine struct {
	models.Transaction
	DisplayAmount decimal.Decimal
}

// Statement is the balance with the wallet history, newest first
type Statement struct {
	Balance
	Transactions []StatementLine
}

// GetBalance in display currency; empty display currency means the wallet's own
func (s *WalletService) GetBalance(ctx context.Context, owner models.OwnerRef, display models.Currency) (Balance, error) {
	w, err := s.read(ctx, owner)
	if err != nil {
		return Balance{}, err
	}

	return s.balance(w, display)
}

// GetHistory returns the balance and the history read together, so they always agree
func (s *WalletService) GetHistory(ctx context.Context, owner models.OwnerRef, display models.Currency) (Statement, error) {
	var st Statement

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	w, txs, err := s.store.Wallet().GetHistory(ctx, owner)
	if err != nil {
		return st, fmt.Errorf("can't read wallet history: %w", err)
	}

	st.Balance, err = s.balance(w, display)
	if err != nil {
		return st, err
	}

	st.Transactions = make([]StatementLine, 0, len(txs))
	for _, tx := range txs {
		amount, err := s.converter.Convert(tx.Amount, w.Currency, st.Currency)
		if err != nil {
			return st, err
		}
		st.Transactions = append(st.Transactions, StatementLine{Transaction: tx, DisplayAmount: amount})
	}

	return st, nil
}

func (s *WalletService) balance(w models.Wallet, display models.Currency) (Balance, error) {
	if display == "" {
		display = w.Currency
	}
	if _, err := models.ParseCurrency(string(display)); err != nil {
		return Balance{}, err
	}

	amount, err := s.converter.Convert(w.Balance, w.Currency, display)
	if err != nil {
		return Balance{}, err
	}

	return Balance{Wallet: w, Amount: amount, Currency: display}, nil
}
