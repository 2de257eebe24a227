package main

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/elohim31520/order-pipeline/pkg/rabbitmq"
)

// RepairUseCase decides what happens to a dead-lettered intent: another
// attempt on the main queue, or the parking queue once it is out of attempts
type RepairUseCase struct {
	maxAttempts int64
	logger      *zap.Logger
}

// NewRepairUseCase creates a new RepairUseCase instance
func NewRepairUseCase(maxAttempts int64, logger *zap.Logger) *RepairUseCase {
	return &RepairUseCase{
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// RepairIntent stamps the intent as repaired and picks its destination queue.
// Unparseable payloads and intents past the attempt cap go to the parking
// queue for operator attention instead of looping between the two queues.
func (uc *RepairUseCase) RepairIntent(body []byte, info DeadLetterInfo) (string, []byte) {
	var intent OrderIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		uc.logger.Warn("🅿️ Unparseable dead letter, parking as-is",
			zap.String("reason", info.Reason),
			zap.Error(err),
		)
		return rabbitmq.ParkingQueue, body
	}

	if info.Count > uc.maxAttempts {
		uc.logger.Warn("🅿️ Intent out of repair attempts, parking",
			zap.String("order_id", intent.OrderID),
			zap.String("reason", info.Reason),
			zap.Int64("attempts", info.Count),
		)
		return rabbitmq.ParkingQueue, body
	}

	// A marker, not a data fix. The underlying cause (stock replenishment,
	// catalog correction) is resolved outside this component.
	intent.Repaired = true
	intent.RepairedAt = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(intent)
	if err != nil {
		// Marshal of a struct we just unmarshaled cannot realistically fail;
		// fall back to the original body rather than lose the message
		payload = body
	}

	uc.logger.Info("🛠️ Intent repaired, resubmitting to main queue",
		zap.String("order_id", intent.OrderID),
		zap.String("reason", info.Reason),
		zap.Int64("attempts", info.Count),
	)
	return rabbitmq.MainQueue, payload
}
