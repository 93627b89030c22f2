package events

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/nkiryanov/seowallet/internal/logger"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes alerts to one topic, retrying with exponential backoff
// Every alert is written to the error log as well, so it is never lost silently
type KafkaPublisher struct {
	writer messageWriter
	retry  RetryConfig
	logger logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, retry RetryConfig, l logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return newKafkaPublisher(w, retry, l)
}

func newKafkaPublisher(w messageWriter, retry RetryConfig, l logger.Logger) *KafkaPublisher {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay == 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 10 * time.Second
	}

	return &KafkaPublisher{writer: w, retry: retry, logger: l}
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, alert Alert) error {
	_ = (&LogPublisher{L: p.logger}).PublishAlert(ctx, alert)

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("error marshaling alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.Owner),
		Value: data,
		Time:  alert.At,
	}

	return p.publishWithRetry(ctx, msg)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error

	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 0 {
				p.logger.Info("Alert published after retries", "attempts", attempt+1)
			}
			return nil
		}

		lastErr = err

		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		p.logger.Warn("Alert publish failed, retrying", "attempt", attempt+1, "max_attempts", p.retry.MaxAttempts, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
			continue
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed to publish alert after %d attempts: %w", p.retry.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay

	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}

	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}

	return delay
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
