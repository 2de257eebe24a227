package main

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/elohim31520/order-pipeline/pkg/rabbitmq"
)

// IntentRepairer defines the interface for the repair use case
type IntentRepairer interface {
	RepairIntent(body []byte, info DeadLetterInfo) (string, []byte)
}

// RepairConsumer drains the dead-letter queue and resubmits repaired intents
type RepairConsumer struct {
	queue    *rabbitmq.Client
	repairer IntentRepairer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewRepairConsumer creates a new RepairConsumer instance
func NewRepairConsumer(queue *rabbitmq.Client, repairer IntentRepairer, tracer trace.Tracer, logger *zap.Logger) *RepairConsumer {
	return &RepairConsumer{
		queue:    queue,
		repairer: repairer,
		tracer:   tracer,
		logger:   logger,
	}
}

// Run consumes the failed queue until the context ends or the connection
// dies. Republish failures leave the dead-letter message unacked so it is
// redelivered; nothing is ever dropped here.
func (c *RepairConsumer) Run(ctx context.Context) error {
	deliveries, err := c.queue.Consume(rabbitmq.FailedQueue, "order-repair")
	if err != nil {
		return err
	}
	closed := c.queue.NotifyClose()

	c.logger.Info("🚑 Watching dead-letter queue", zap.String("queue", rabbitmq.FailedQueue))

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

func (c *RepairConsumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	ctx, span := c.tracer.Start(ctx, "repair_order_intent")
	defer span.End()

	info := deathInfo(delivery.Headers)
	span.SetAttributes(
		attribute.String("messaging.message.id", delivery.MessageId),
		attribute.String("death.reason", info.Reason),
		attribute.Int64("death.count", info.Count),
	)

	c.logger.Info("⚠️ Dead-lettered intent received",
		zap.String("message_id", delivery.MessageId),
		zap.String("reason", info.Reason),
		zap.Int64("count", info.Count),
	)

	targetQueue, payload := c.repairer.RepairIntent(delivery.Body, info)

	if err := c.queue.Publish(ctx, targetQueue, payload, delivery.MessageId); err != nil {
		span.RecordError(err)
		return err
	}

	return delivery.Ack(false)
}

// deathInfo extracts the broker-attached x-death metadata. The header is an
// array of tables, most recent death first.
func deathInfo(headers amqp.Table) DeadLetterInfo {
	info := DeadLetterInfo{Reason: "unknown"}

	deaths, ok := headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return info
	}
	death, ok := deaths[0].(amqp.Table)
	if !ok {
		return info
	}

	if reason, ok := death["reason"].(string); ok {
		info.Reason = reason
	}
	if count, ok := death["count"].(int64); ok {
		info.Count = count
	}
	return info
}
