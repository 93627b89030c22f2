package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/apperrors"
	"github.com/nkiryanov/seowallet/internal/events"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/repository"
	"github.com/nkiryanov/seowallet/internal/service/validate"
)

type TransferResult struct {
	From models.Wallet
	To   models.Wallet
}

// Transfer moves amount between two wallets of the same currency
// Transactional stores apply both sides in one transaction; other stores run
// debit, then credit, and revert the debit if the credit fails.
func (s *WalletService) Transfer(ctx context.Context, from models.OwnerRef, to models.OwnerRef, amount decimal.Decimal, by string) (TransferResult, error) {
	var res TransferResult

	if err := validate.Amount(amount); err != nil {
		return res, err
	}
	if from == to {
		return res, apperrors.ErrSelfTransfer
	}

	fromWallet, err := s.read(ctx, from)
	if err != nil {
		return res, fmt.Errorf("source wallet: %w", err)
	}
	toWallet, err := s.read(ctx, to)
	if err != nil {
		return res, fmt.Errorf("destination wallet: %w", err)
	}
	if fromWallet.Currency != toWallet.Currency {
		return res, fmt.Errorf("%w: %s to %s", apperrors.ErrCurrencyMismatch, fromWallet.Currency, toWallet.Currency)
	}

	debit := models.Transaction{
		Amount:      amount,
		Type:        models.TransactionTypeDebit,
		Description: fmt.Sprintf("Transferred to %s", to),
		By:          by,
	}
	credit := models.Transaction{
		Amount:      amount,
		Type:        models.TransactionTypeCredit,
		Description: fmt.Sprintf("Received from %s", from),
		By:          by,
	}

	if store, ok := s.store.(txStore); ok {
		return s.transferInTx(ctx, store, fromWallet, toWallet, debit, credit)
	}

	return s.transferSaga(ctx, from, to, debit, credit)
}

func (s *WalletService) transferInTx(
	ctx context.Context,
	store txStore,
	fromWallet models.Wallet,
	toWallet models.Wallet,
	debit models.Transaction,
	credit models.Transaction,
) (TransferResult, error) {
	var res TransferResult

	type step struct {
		owner models.OwnerRef
		tx    models.Transaction
		out   *models.Wallet
	}
	steps := []step{
		{fromWallet.Owner, debit, &res.From},
		{toWallet.Owner, credit, &res.To},
	}
	// Lock wallets in one global order so opposite transfers can't deadlock
	// Rollback undoes the credit if the debit is rejected
	if bytes.Compare(toWallet.ID[:], fromWallet.ID[:]) < 0 {
		steps[0], steps[1] = steps[1], steps[0]
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := store.InTx(ctx, func(tx repository.Storage) error {
		for _, st := range steps {
			w, err := tx.Wallet().Apply(ctx, st.owner, st.tx)
			if err != nil {
				return err
			}
			*st.out = w
		}
		return nil
	})

	switch {
	case err == nil:
		return res, nil
	case isInterrupted(ctx, err):
		return TransferResult{}, fmt.Errorf("%w: %w", apperrors.ErrOutcomeUnknown, err)
	default:
		return TransferResult{}, err
	}
}

func (s *WalletService) transferSaga(ctx context.Context, from models.OwnerRef, to models.OwnerRef, debit models.Transaction, credit models.Transaction) (TransferResult, error) {
	var res TransferResult

	fromWallet, err := s.apply(ctx, from, debit)
	if err != nil {
		return res, err
	}

	toWallet, creditErr := s.apply(ctx, to, credit)
	if creditErr == nil {
		return TransferResult{From: fromWallet, To: toWallet}, nil
	}

	// The credit may have been stored, reverting the debit could create money
	if errors.Is(creditErr, apperrors.ErrOutcomeUnknown) {
		return res, s.partialTransfer(ctx, from, to, debit.Amount, creditErr)
	}

	reversal := models.Transaction{
		Amount:      debit.Amount,
		Type:        models.TransactionTypeCredit,
		Description: fmt.Sprintf("Reverted transfer to %s", to),
		By:          debit.By,
	}
	if _, err := s.apply(ctx, from, reversal); err != nil {
		return res, s.partialTransfer(ctx, from, to, debit.Amount, errors.Join(creditErr, err))
	}

	s.logger.Warn("Transfer reverted", "from", from, "to", to, "amount", debit.Amount, "error", creditErr)
	return res, fmt.Errorf("transfer reverted: %w", creditErr)
}

func (s *WalletService) partialTransfer(ctx context.Context, from models.OwnerRef, to models.OwnerRef, amount decimal.Decimal, cause error) error {
	err := &apperrors.PartialTransferError{From: from.String(), To: to.String(), Amount: amount, Cause: cause}

	s.raise(ctx, events.Alert{
		Kind:         events.AlertPartialTransfer,
		Owner:        from.String(),
		Counterparty: to.String(),
		Amount:       &amount,
		Message:      err.Error(),
		At:           time.Now(),
	})

	return err
}
