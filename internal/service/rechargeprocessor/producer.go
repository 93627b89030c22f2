package rechargeprocessor

import (
	"context"
	"time"

	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
)

type Producer struct {
	interval    time.Duration
	gracePeriod time.Duration
	batchSize   int
	logger      logger.Logger
	service     rechargeService
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Payment) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				payments, err := p.service.ListPending(ctx, time.Now().Add(-p.gracePeriod), p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list pending payments", "error", err)
					continue
				}

				for _, payment := range payments {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending payments")
						return
					case out <- payment:
						p.logger.Debug("Payment sent to channel", "order_id", payment.GatewayOrderID)
					}
				}
			}
		}
	}()

	return idleStopped
}
