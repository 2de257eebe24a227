package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockRepository simulates the worker repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) OrderExists(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]Product), args.Error(1)
}

func (m *MockRepository) BeginTx(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	return args.Get(0).(Tx), args.Error(1)
}

func (m *MockRepository) ReserveStock(ctx context.Context, tx Tx, productID string, quantity int) (bool, error) {
	args := m.Called(ctx, tx, productID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateOrder(ctx context.Context, tx Tx, order *Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockRepository) CreateOrderItems(ctx context.Context, tx Tx, items []OrderItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

// MockTx simulates a database transaction
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func intentBody(t *testing.T, intent OrderIntent) []byte {
	t.Helper()
	body, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("failed to marshal intent: %v", err)
	}
	return body
}

func TestProcessIntent_CommitsOrder(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	mockTx := new(MockTx)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items:   []IntentItem{{ProductID: testProductA, Quantity: 3}},
	})

	mockRepo.On("OrderExists", ctx, testOrderID).Return(false, nil)
	mockRepo.On("GetProductsByIDs", ctx, []string{testProductA}).Return(map[string]Product{
		testProductA: {ID: testProductA, Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5},
	}, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("ReserveStock", ctx, mockTx, testProductA, 3).Return(true, nil)
	mockRepo.On("CreateOrder", ctx, mockTx, mock.MatchedBy(func(order *Order) bool {
		return order.ID == testOrderID &&
			order.UserID == testUserID &&
			order.Status == OrderStatusPending &&
			order.TotalAmount.Equal(decimal.RequireFromString("30.00"))
	})).Return(nil)
	mockRepo.On("CreateOrderItems", ctx, mockTx, mock.MatchedBy(func(items []OrderItem) bool {
		return len(items) == 1 &&
			items[0].OrderID == testOrderID &&
			items[0].ProductID == testProductA &&
			items[0].Quantity == 3 &&
			items[0].UnitPrice.Equal(decimal.RequireFromString("10.00"))
	})).Return(nil)
	mockTx.On("Commit").Return(nil)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockTx.AssertCalled(t, "Commit")
}

func TestProcessIntent_MalformedBody(t *testing.T) {
	mockRepo := new(MockRepository)
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	err := uc.ProcessIntent(context.Background(), []byte("{not json"))

	assert.ErrorIs(t, err, ErrMalformedIntent)
}

func TestProcessIntent_InvalidShape(t *testing.T) {
	mockRepo := new(MockRepository)
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items:   []IntentItem{{ProductID: testProductA, Quantity: 0}},
	})

	err := uc.ProcessIntent(context.Background(), body)

	assert.ErrorIs(t, err, ErrMalformedIntent)
}

func TestProcessIntent_NonUUIDProductIDIsMalformed(t *testing.T) {
	// Arrange: a crafted id must be rejected before any query, never reach
	// the uuid[] cast and come back as an unclassified database error
	mockRepo := new(MockRepository)
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items:   []IntentItem{{ProductID: "definitely-not-a-uuid", Quantity: 1}},
	})

	// Act
	err := uc.ProcessIntent(context.Background(), body)

	// Assert: dead-lettered, not left to stall the queue
	assert.ErrorIs(t, err, ErrMalformedIntent)
	assert.True(t, IsBusinessFailure(err))
	mockRepo.AssertNotCalled(t, "OrderExists", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "GetProductsByIDs", mock.Anything, mock.Anything)
}

func TestProcessIntent_AlreadyCommitted(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID:  testOrderID,
		UserID:   testUserID,
		Items:    []IntentItem{{ProductID: testProductA, Quantity: 1}},
		Repaired: true,
	})

	// No product load, no transaction: the mock would reject any other call
	mockRepo.On("OrderExists", ctx, testOrderID).Return(true, nil)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestProcessIntent_DuplicateCommitIsSkipped(t *testing.T) {
	// Arrange: a concurrent delivery of the same intent commits between our
	// existence check and our insert, so the order id unique key fires
	mockRepo := new(MockRepository)
	mockTx := new(MockTx)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items:   []IntentItem{{ProductID: testProductA, Quantity: 1}},
	})

	mockRepo.On("OrderExists", ctx, testOrderID).Return(false, nil)
	mockRepo.On("GetProductsByIDs", ctx, []string{testProductA}).Return(map[string]Product{
		testProductA: {ID: testProductA, Price: decimal.RequireFromString("10.00"), Stock: 5},
	}, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("ReserveStock", ctx, mockTx, testProductA, 1).Return(true, nil)
	mockRepo.On("CreateOrder", ctx, mockTx, mock.Anything).
		Return(&pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey"})
	mockTx.On("Rollback").Return(nil)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert: treated as already done, our reservation rolls back, the
	// message gets acked instead of dead-lettered or stalled
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockTx.AssertCalled(t, "Rollback")
	mockTx.AssertNotCalled(t, "Commit")
}

func TestProcessIntent_UnknownProduct(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items: []IntentItem{
			{ProductID: testProductA, Quantity: 1},
			{ProductID: testProductC, Quantity: 1},
		},
	})

	mockRepo.On("OrderExists", ctx, testOrderID).Return(false, nil)
	mockRepo.On("GetProductsByIDs", ctx, []string{testProductA, testProductC}).Return(map[string]Product{
		testProductA: {ID: testProductA, Price: decimal.RequireFromString("10.00"), Stock: 5},
	}, nil)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert: no transaction is even started, nothing is decremented
	assert.ErrorIs(t, err, ErrUnknownProduct)
	mockRepo.AssertExpectations(t)
}

func TestProcessIntent_InsufficientStockRollsBack(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	mockTx := new(MockTx)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items: []IntentItem{
			{ProductID: testProductA, Quantity: 1},
			{ProductID: testProductB, Quantity: 99},
		},
	})

	mockRepo.On("OrderExists", ctx, testOrderID).Return(false, nil)
	mockRepo.On("GetProductsByIDs", ctx, []string{testProductA, testProductB}).Return(map[string]Product{
		testProductA: {ID: testProductA, Price: decimal.RequireFromString("10.00"), Stock: 5},
		testProductB: {ID: testProductB, Price: decimal.RequireFromString("7.50"), Stock: 1},
	}, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("ReserveStock", ctx, mockTx, testProductA, 1).Return(true, nil)
	mockRepo.On("ReserveStock", ctx, mockTx, testProductB, 99).Return(false, nil)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert: the first reservation is undone with the transaction, no order rows
	assert.ErrorIs(t, err, ErrInsufficientStock)
	mockRepo.AssertExpectations(t)
	mockTx.AssertCalled(t, "Rollback")
	mockTx.AssertNotCalled(t, "Commit")
}

func TestProcessIntent_ReservesInAscendingProductOrder(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	mockTx := new(MockTx)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	// Items arrive in descending order on purpose
	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items: []IntentItem{
			{ProductID: testProductB, Quantity: 1},
			{ProductID: testProductA, Quantity: 2},
		},
	})

	var reservations []string
	record := func(args mock.Arguments) {
		reservations = append(reservations, args.String(2))
	}

	mockRepo.On("OrderExists", ctx, testOrderID).Return(false, nil)
	mockRepo.On("GetProductsByIDs", ctx, []string{testProductA, testProductB}).Return(map[string]Product{
		testProductA: {ID: testProductA, Price: decimal.RequireFromString("1.00"), Stock: 5},
		testProductB: {ID: testProductB, Price: decimal.RequireFromString("2.00"), Stock: 5},
	}, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("ReserveStock", ctx, mockTx, testProductA, 2).Run(record).Return(true, nil)
	mockRepo.On("ReserveStock", ctx, mockTx, testProductB, 1).Run(record).Return(true, nil)
	mockRepo.On("CreateOrder", ctx, mockTx, mock.MatchedBy(func(order *Order) bool {
		return order.TotalAmount.Equal(decimal.RequireFromString("4.00"))
	})).Return(nil)
	mockRepo.On("CreateOrderItems", ctx, mockTx, mock.Anything).Return(nil)
	mockTx.On("Commit").Return(nil)
	mockTx.On("Rollback").Return(nil)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, []string{testProductA, testProductB}, reservations)
}

func TestProcessIntent_InfrastructureErrorIsNotBusinessFailure(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	ctx := context.Background()
	uc := NewProcessorUseCase(mockRepo, zap.NewNop())

	body := intentBody(t, OrderIntent{
		OrderID: testOrderID,
		UserID:  testUserID,
		Items:   []IntentItem{{ProductID: testProductA, Quantity: 1}},
	})

	dbDown := errors.New("connection refused")
	mockRepo.On("OrderExists", ctx, testOrderID).Return(false, dbDown)

	// Act
	err := uc.ProcessIntent(ctx, body)

	// Assert
	assert.ErrorIs(t, err, dbDown)
	assert.False(t, IsBusinessFailure(err))
}

func TestIsBusinessFailure(t *testing.T) {
	assert.True(t, IsBusinessFailure(ErrMalformedIntent))
	assert.True(t, IsBusinessFailure(ErrUnknownProduct))
	assert.True(t, IsBusinessFailure(ErrInsufficientStock))
	assert.False(t, IsBusinessFailure(errors.New("broker gone")))
	assert.False(t, IsBusinessFailure(nil))
}

func TestIsBusinessFailure_PostgresErrorCodes(t *testing.T) {
	// Data and integrity violations are verdicts on the message, they must
	// dead-letter rather than stop the consumer and wedge the queue
	tests := []struct {
		name     string
		code     string
		business bool
	}{
		{"invalid text representation", "22P02", true},
		{"numeric value out of range", "22003", true},
		{"foreign key violation", "23503", true},
		{"unique violation", "23505", true},
		{"check violation", "23514", true},
		{"connection failure", "08006", false},
		{"insufficient resources", "53200", false},
		{"admin shutdown", "57P01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("query failed: %w", &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.business, IsBusinessFailure(err))
		})
	}
}
