package app

import (
	"context"
	"time"

	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/internal/telemetry"
	"github.com/transfa/superapp-backend/pkg/rabbitmq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
	maxRetryShift          = 8 // 2^8 = 256 seconds
)

// PublisherFactory opens a broker connection for the dispatcher.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxObserver is told about every publish attempt.
type OutboxObserver interface {
	ObserveOutboxPublished(routingKey string)
	ObserveOutboxFailed(routingKey string)
}

type nopOutboxObserver struct{}

func (nopOutboxObserver) ObserveOutboxPublished(string) {}
func (nopOutboxObserver) ObserveOutboxFailed(string)    {}

// OutboxDispatcher relays committed outbox rows to RabbitMQ.
type OutboxDispatcher struct {
	repo                store.Repository
	newPublisher        PublisherFactory
	logger              *logging.Logger
	observer            OutboxObserver
	tracer              trace.Tracer
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	publisher           rabbitmq.Publisher
}

func NewOutboxDispatcher(repo store.Repository, newPublisher PublisherFactory, logger *logging.Logger) *OutboxDispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OutboxDispatcher{
		repo:                repo,
		newPublisher:        newPublisher,
		logger:              logger.Component("outbox_dispatcher"),
		observer:            nopOutboxObserver{},
		tracer:              telemetry.Tracer("superapp/outbox"),
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
}

// SetObserver records publish outcomes, typically into Prometheus.
func (d *OutboxDispatcher) SetObserver(observer OutboxObserver) {
	if observer != nil {
		d.observer = observer
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closePublisher()

	d.logger.Info("outbox dispatcher started", zap.Duration("poll_interval", d.pollInterval), zap.Int("batch_size", d.batchSize))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.FlushOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox flush error", zap.Error(err))
			}
		}
	}
}

// FlushOnce publishes one claimed batch and returns how many rows were published.
func (d *OutboxDispatcher) FlushOnce(ctx context.Context) (int, error) {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			d.observer.ObserveOutboxFailed(message.RoutingKey)
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed",
				zap.Int64("outbox_id", message.ID),
				zap.String("routing_key", message.RoutingKey),
				zap.Int("attempts", message.Attempts),
				zap.Int("retry_after_seconds", retryAfter),
				zap.Error(err),
			)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to mark outbox message failed", zap.Int64("outbox_id", message.ID), zap.Error(markErr))
			}
			continue
		}
		d.observer.ObserveOutboxPublished(message.RoutingKey)
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message published", zap.Int64("outbox_id", message.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message domain.OutboxMessage) (err error) {
	ctx, span := d.tracer.Start(ctx, "outbox.publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", message.Exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", message.RoutingKey),
			attribute.Int64("outbox.id", message.ID),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if d.publisher == nil {
		publisher, err := d.newPublisher()
		if err != nil {
			return err
		}
		d.publisher = publisher
	}

	if err := d.publisher.Publish(ctx, message.Exchange, message.RoutingKey, message.Payload); err != nil {
		d.closePublisher()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closePublisher() {
	if d.publisher != nil {
		d.publisher.Close()
		d.publisher = nil
	}
}

// retryDelaySeconds is 2^min(attempt, 8) seconds, capped at 256 seconds.
func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	return 1 << min(attempt, maxRetryShift)
}
