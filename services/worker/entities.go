package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus values persisted on orders
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// OrderIntent is the queued order request before stock and price verification.
// Repaired intents carry the marker fields stamped by the repair consumer.
type OrderIntent struct {
	OrderID    string       `json:"order_id"`
	UserID     string       `json:"user_id"`
	Items      []IntentItem `json:"items"`
	Repaired   bool         `json:"repaired,omitempty"`
	RepairedAt string       `json:"repaired_at,omitempty"`
}

// IntentItem is one requested line item
type IntentItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Validate checks the structural shape of an intent. A failure here is
// permanent; the payload can never become processable on its own. All ids
// must be UUIDs so a crafted id can never reach the database as anything but
// a parameter of the right type.
func (i *OrderIntent) Validate() error {
	if _, err := uuid.Parse(i.OrderID); err != nil {
		return fmt.Errorf("order_id must be a uuid: %q", i.OrderID)
	}
	if _, err := uuid.Parse(i.UserID); err != nil {
		return fmt.Errorf("user_id must be a uuid: %q", i.UserID)
	}
	if len(i.Items) == 0 {
		return errors.New("at least one item is required")
	}
	for _, item := range i.Items {
		if _, err := uuid.Parse(item.ProductID); err != nil {
			return fmt.Errorf("product_id must be a uuid: %q", item.ProductID)
		}
		if item.Quantity <= 0 {
			return errors.New("quantity must be positive")
		}
	}
	return nil
}

// DistinctProductIDs returns the distinct referenced product IDs in ascending order
func (i *OrderIntent) DistinctProductIDs() []string {
	seen := make(map[string]struct{}, len(i.Items))
	ids := make([]string, 0, len(i.Items))
	for _, item := range i.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

// SortedItems returns the line items in ascending product-id order. Reserving
// stock in a stable order avoids lock-ordering deadlocks between two orders
// touching the same products from opposite directions.
func (i *OrderIntent) SortedItems() []IntentItem {
	items := make([]IntentItem, len(i.Items))
	copy(items, i.Items)
	sort.Slice(items, func(a, b int) bool {
		return items[a].ProductID < items[b].ProductID
	})
	return items
}

// Product is the authoritative catalog row: the price source of truth and the
// stock the worker decrements
type Product struct {
	ID    string          `json:"id" db:"id"`
	Name  string          `json:"name" db:"name"`
	Price decimal.Decimal `json:"price" db:"price"`
	Stock int             `json:"stock" db:"stock"`
}

// Order is a committed order
type Order struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// NewOrder creates a new pending Order instance
func NewOrder(id, userID string, totalAmount decimal.Decimal) *Order {
	return &Order{
		ID:          id,
		UserID:      userID,
		TotalAmount: totalAmount,
		Status:      OrderStatusPending,
		CreatedAt:   time.Now(),
	}
}

// OrderItem is a committed line item. UnitPrice is frozen at commit time and
// does not follow later catalog price changes.
type OrderItem struct {
	ID        string          `json:"id" db:"id"`
	OrderID   string          `json:"order_id" db:"order_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}
