package rechargeprocessor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
	"github.com/nkiryanov/seowallet/internal/service/gateway"
)

type Consumer struct {
	countWorkers int

	// Gateway may throttle requests
	// If it does, every worker waits until the time is up
	waitUntil atomic.Int64

	service rechargeService
	logger  logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Payment) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Payment) {
	for {
		waitUntil := time.UnixMilli(c.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for rate limit to reset", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case payment, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}

			err := c.service.Reconcile(ctx, payment)
			var gwErr *gateway.Error

			switch {
			case err == nil:
			case errors.As(err, &gwErr) && gwErr.Code == gateway.CodeRetryAfter:
				c.logger.Info("Gateway rate limit exceeded, waiting", "retry_after", gwErr.RetryAfter)
				c.waitUntil.Store(time.Now().Add(gwErr.RetryAfter).UnixMilli())
			default:
				c.logger.Error("Failed to reconcile payment", "error", err, "order_id", payment.GatewayOrderID)
			}
		}
	}
}
