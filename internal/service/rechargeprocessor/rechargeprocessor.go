package rechargeprocessor

import (
	"context"
	"time"

	"github.com/nkiryanov/seowallet/internal/logger"
	"github.com/nkiryanov/seowallet/internal/models"
)

const (
	defaultCountWorkers    = 4                // Number of workers asking the gateway
	defaultProduceInterval = time.Minute      // Interval for fetching pending payments
	defaultGracePeriod     = 10 * time.Minute // Client usually verifies within this time
	defaultBatchSize       = 100
)

type rechargeService interface {
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
	Reconcile(ctx context.Context, p models.Payment) error
}

// Processor settles recharges whose client never came back to verify them
type Processor struct {
	consumer *Consumer
	producer *Producer
}

func New(logger logger.Logger, service rechargeService) *Processor {
	return &Processor{
		consumer: &Consumer{
			countWorkers: defaultCountWorkers,
			service:      service,
			logger:       logger,
		},
		producer: &Producer{
			interval:    defaultProduceInterval,
			gracePeriod: defaultGracePeriod,
			batchSize:   defaultBatchSize,
			service:     service,
			logger:      logger,
		},
	}
}

func (p *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	paymentChan := make(chan models.Payment)

	producerStopped := p.producer.Produce(ctx, paymentChan)
	consumerStopped := p.consumer.Consume(ctx, paymentChan)

	go func() {
		defer close(idleStopped)
		defer close(paymentChan)
		<-producerStopped
		<-consumerStopped
		p.consumer.logger.Debug("RechargeProcessor stopped")
	}()

	return idleStopped
}
