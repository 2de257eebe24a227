package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrderUseCaseInterface defines the interface for the enqueue use case
type OrderUseCaseInterface interface {
	EnqueueOrder(ctx context.Context, req CreateOrderRequest) (string, error)
}

// OrderHandler contains the HTTP handlers
type OrderHandler struct {
	useCase OrderUseCaseInterface
	tracer  trace.Tracer
}

// NewOrderHandler creates a new OrderHandler instance
func NewOrderHandler(useCase OrderUseCaseInterface, tracer trace.Tracer) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// PlaceOrder accepts an order intent and answers 202 as soon as it is queued.
// Processing is asynchronous; the caller never learns the eventual outcome here.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "enqueue_order")
	defer span.End()

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int("items", len(req.Items)),
	)

	orderID, err := h.useCase.EnqueueOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to accept order"})
		return
	}

	span.SetAttributes(attribute.String("order_id", orderID))

	c.JSON(http.StatusAccepted, gin.H{
		"order_id": orderID,
		"message":  "order accepted for processing",
	})
}

// HealthCheck reports service health
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "orders-service",
	})
}
