package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Business failures. These route the message to the dead-letter queue; any
// other error is treated as an infrastructure failure and stops consumption
// instead of poison-marking the message.
var (
	ErrMalformedIntent   = errors.New("malformed order intent")
	ErrUnknownProduct    = errors.New("invalid or missing product")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// IsBusinessFailure reports whether the error is a processing verdict on the
// message itself rather than a broker/database problem. Postgres data and
// integrity errors (SQLSTATE classes 22 and 23: bad casts, FK violations)
// are verdicts on the message content; only connectivity-class errors may
// stop consumption.
func IsBusinessFailure(err error) bool {
	if errors.Is(err, ErrMalformedIntent) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrInsufficientStock) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}

// ProcessorUseCase contains the order processing business logic
type ProcessorUseCase struct {
	repository Repository
	logger     *zap.Logger
}

// NewProcessorUseCase creates a new ProcessorUseCase instance
func NewProcessorUseCase(repository Repository, logger *zap.Logger) *ProcessorUseCase {
	return &ProcessorUseCase{
		repository: repository,
		logger:     logger,
	}
}

// ProcessIntent runs one message through validation, stock reservation and
// commit. Stock decrements and the order/order-items inserts happen in a
// single transaction; on any failure the whole transaction rolls back.
func (uc *ProcessorUseCase) ProcessIntent(ctx context.Context, body []byte) error {
	var intent OrderIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}
	if err := intent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}

	uc.logger.Info("➡️ Processing order intent",
		zap.String("order_id", intent.OrderID),
		zap.String("user_id", intent.UserID),
		zap.Bool("repaired", intent.Repaired),
	)

	// A repaired or redelivered intent keeps its order ID, so a second
	// delivery of an already committed order is acked without touching stock.
	exists, err := uc.repository.OrderExists(ctx, intent.OrderID)
	if err != nil {
		return fmt.Errorf("failed to check order existence: %w", err)
	}
	if exists {
		uc.logger.Info("ℹ️ Order already committed, skipping",
			zap.String("order_id", intent.OrderID))
		return nil
	}

	productIDs := intent.DistinctProductIDs()
	products, err := uc.repository.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	if len(products) != len(productIDs) {
		return fmt.Errorf("%w: requested %d products, found %d",
			ErrUnknownProduct, len(productIDs), len(products))
	}

	// Totals come from the authoritative catalog prices, never from the payload
	totalAmount := decimal.Zero
	sortedItems := intent.SortedItems()
	for _, item := range sortedItems {
		price := products[item.ProductID].Price
		totalAmount = totalAmount.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range sortedItems {
		reserved, err := uc.repository.ReserveStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		if !reserved {
			uc.logger.Warn("❌ Stock reservation failed",
				zap.String("order_id", intent.OrderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
			)
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, item.ProductID)
		}
	}

	order := NewOrder(intent.OrderID, intent.UserID, totalAmount)
	if err := uc.repository.CreateOrder(ctx, tx, order); err != nil {
		// A unique violation on the order id means a concurrent delivery of
		// this same intent already committed: roll back and ack, don't
		// dead-letter a duplicate
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			uc.logger.Info("ℹ️ Order committed by a concurrent delivery, skipping",
				zap.String("order_id", intent.OrderID))
			return nil
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	orderItems := make([]OrderItem, 0, len(sortedItems))
	for _, item := range sortedItems {
		orderItems = append(orderItems, OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: products[item.ProductID].Price,
		})
	}
	if err := uc.repository.CreateOrderItems(ctx, tx, orderItems); err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	uc.logger.Info("✅ Order committed",
		zap.String("order_id", order.ID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(orderItems)),
	)
	return nil
}
