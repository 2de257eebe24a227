package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/elohim31520/order-pipeline/pkg/rabbitmq"
)

// IntentProcessor defines the interface for the processing use case
type IntentProcessor interface {
	ProcessIntent(ctx context.Context, body []byte) error
}

// OrderConsumer drives the consume loop on the main work queue
type OrderConsumer struct {
	queue     *rabbitmq.Client
	processor IntentProcessor
	tracer    trace.Tracer
	logger    *zap.Logger
	committed metric.Int64Counter
	rejected  metric.Int64Counter
}

// NewOrderConsumer creates a new OrderConsumer instance
func NewOrderConsumer(
	queue *rabbitmq.Client,
	processor IntentProcessor,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *zap.Logger,
) (*OrderConsumer, error) {
	committed, err := meter.Int64Counter("orders_committed_total",
		metric.WithDescription("Order intents processed and committed"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("orders_rejected_total",
		metric.WithDescription("Order intents nacked to the dead-letter queue"))
	if err != nil {
		return nil, err
	}

	return &OrderConsumer{
		queue:     queue,
		processor: processor,
		tracer:    tracer,
		logger:    logger,
		committed: committed,
		rejected:  rejected,
	}, nil
}

// Run consumes the main queue until the context ends, the connection dies, or
// an infrastructure failure occurs. In the failure cases the in-flight message
// is left unacknowledged so the broker redelivers it once a consumer is back.
func (c *OrderConsumer) Run(ctx context.Context) error {
	deliveries, err := c.queue.Consume(rabbitmq.MainQueue, "order-worker")
	if err != nil {
		return err
	}
	closed := c.queue.NotifyClose()

	c.logger.Info("👂 Waiting for order intents", zap.String("queue", rabbitmq.MainQueue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			return fmt.Errorf("broker connection lost: %w", amqpErr)
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, delivery); err != nil {
				return err
			}
		}
	}
}

// handleDelivery resolves one message to an ack or a dead-letter nack. A
// non-nil return means an infrastructure failure: the message stays unacked
// and the consume loop stops.
func (c *OrderConsumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	ctx, span := c.tracer.Start(ctx, "process_order_intent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.message.id", delivery.MessageId),
		attribute.Bool("messaging.redelivered", delivery.Redelivered),
	)

	err := c.processor.ProcessIntent(ctx, delivery.Body)
	if err == nil {
		c.committed.Add(ctx, 1)
		return delivery.Ack(false)
	}

	span.RecordError(err)

	if IsBusinessFailure(err) {
		c.logger.Warn("❌ Order intent rejected, routing to dead-letter queue",
			zap.String("message_id", delivery.MessageId),
			zap.Error(err),
		)
		c.rejected.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", rejectionReason(err)),
		))
		// requeue=false: the broker routes the message to the dead-letter
		// exchange instead of looping it back onto the main queue
		return delivery.Nack(false, false)
	}

	c.logger.Error("🛑 Infrastructure failure, stopping consumption",
		zap.String("message_id", delivery.MessageId),
		zap.Error(err),
	)
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedIntent):
		return "malformed"
	case errors.Is(err, ErrUnknownProduct):
		return "unknown_product"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return "sqlstate_" + pgErr.Code
		}
		return "unknown"
	}
}
