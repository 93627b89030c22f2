package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nkiryanov/seowallet/internal/events"
	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/repository"
)

const (
	DefaultSchedule = "@every 10m"

	runTimeout = 5 * time.Minute
)

type walletStore interface {
	Wallet() repository.WalletRepo
}

// Reconciler periodically checks that every wallet balance equals the sum of its transactions
type Reconciler struct {
	store  walletStore
	alerts events.Publisher
	logger logger.Logger
	cron   *cron.Cron
}

func New(store walletStore, alerts events.Publisher, l logger.Logger) *Reconciler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Slog(l).Handler(), slog.LevelError))

	return &Reconciler{
		store:  store,
		alerts: alerts,
		logger: l,
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Run one reconciliation pass and return the number of discrepancies found
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	found, err := r.store.Wallet().FindDiscrepancies(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't look for discrepancies: %w", err)
	}

	for _, d := range found {
		diff := d.Balance.Sub(d.Ledger)
		alert := events.Alert{
			Kind:    events.AlertBalanceDiscrepancy,
			Owner:   d.Owner.String(),
			Amount:  &diff,
			Message: fmt.Sprintf("balance %s differs from transactions total %s", d.Balance.StringFixed(2), d.Ledger.StringFixed(2)),
			At:      time.Now(),
		}

		if err := r.alerts.PublishAlert(ctx, alert); err != nil {
			r.logger.Error("Failed to publish discrepancy alert", "owner", alert.Owner, "error", err)
		}
	}

	return len(found), nil
}

// Start runs reconciliation by the cron schedule until Stop
func (r *Reconciler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		n, err := r.Run(ctx)
		if err != nil {
			r.logger.Error("Reconciliation failed", "error", err)
			return
		}
		r.logger.Info("Reconciliation finished", "discrepancies", n)
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	r.cron.Start()
	r.logger.Info("Reconciler scheduled", "schedule", schedule)
	return nil
}

// Stop the scheduler; the returned context is done when a running pass completes
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}
