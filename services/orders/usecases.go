package main

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/elohim31520/order-pipeline/pkg/rabbitmq"
)

// QueuePublisher abstracts the broker publish operation
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte, messageID string) error
}

// OrderUseCase contains the enqueue business logic
type OrderUseCase struct {
	publisher QueuePublisher
	logger    *zap.Logger
}

// NewOrderUseCase creates a new OrderUseCase instance
func NewOrderUseCase(publisher QueuePublisher, logger *zap.Logger) *OrderUseCase {
	return &OrderUseCase{
		publisher: publisher,
		logger:    logger,
	}
}

// EnqueueOrder serializes the intent and publishes it on the main work queue.
// It returns the assigned order ID. A publish failure is returned to the
// caller so the HTTP layer can answer with a 5xx instead of dropping the order.
func (uc *OrderUseCase) EnqueueOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	intent := NewOrderIntent(req)

	body, err := json.Marshal(intent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order intent: %w", err)
	}

	if err := uc.publisher.Publish(ctx, rabbitmq.MainQueue, body, intent.OrderID); err != nil {
		uc.logger.Error("❌ Failed to enqueue order intent",
			zap.String("order_id", intent.OrderID),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to enqueue order intent: %w", err)
	}

	uc.logger.Info("📨 Order intent enqueued",
		zap.String("order_id", intent.OrderID),
		zap.String("user_id", intent.UserID),
		zap.Int("items", len(intent.Items)),
	)
	return intent.OrderID, nil
}
