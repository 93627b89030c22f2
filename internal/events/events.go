package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/seowallet/internal/logger"
)

const (
	AlertPartialTransfer    = "partial_transfer"
	AlertBalanceDiscrepancy = "balance_discrepancy"
)

// Alert is raised when the ledger lost its conservation of value and needs a human
type Alert struct {
	Kind         string           `json:"kind"`
	Owner        string           `json:"owner"`
	Counterparty string           `json:"counterparty,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Message      string           `json:"message"`
	At           time.Time        `json:"at"`
}

type Publisher interface {
	PublishAlert(ctx context.Context, alert Alert) error
}

// LogPublisher writes alerts to the error log only
type LogPublisher struct {
	L logger.Logger
}

func (p *LogPublisher) PublishAlert(_ context.Context, alert Alert) error {
	p.L.Error("Ledger alert",
		"kind", alert.Kind,
		"owner", alert.Owner,
		"counterparty", alert.Counterparty,
		"amount", alert.Amount,
		"message", alert.Message,
		"at", alert.At,
	)
	return nil
}
