package main

import (
	"github.com/google/uuid"
)

// CreateOrderRequest is the payload accepted by the order endpoint. The
// producer does not check product existence or stock; that is the worker's job.
type CreateOrderRequest struct {
	UserID string             `json:"user_id" binding:"required,uuid"`
	Items  []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// OrderItemRequest is one requested line item
type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// OrderIntent is the message published on the main work queue
type OrderIntent struct {
	OrderID string       `json:"order_id"`
	UserID  string       `json:"user_id"`
	Items   []IntentItem `json:"items"`
}

// IntentItem is one line item inside an OrderIntent
type IntentItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// NewOrderIntent builds an OrderIntent from the request and assigns the order
// ID the worker will commit under. The same ID survives dead-lettering and
// repair, so a redelivered intent can never create a second order.
func NewOrderIntent(req CreateOrderRequest) *OrderIntent {
	items := make([]IntentItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, IntentItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	return &OrderIntent{
		OrderID: uuid.New().String(),
		UserID:  req.UserID,
		Items:   items,
	}
}
