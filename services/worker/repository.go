package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository defines the database operations the worker performs
type Repository interface {
	// OrderExists reports whether an order was already committed (for idempotency)
	OrderExists(ctx context.Context, orderID string) (bool, error)

	// GetProductsByIDs loads the referenced products in one batch read
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error)

	// BeginTx starts the transaction enclosing reservations and inserts
	BeginTx(ctx context.Context) (Tx, error)

	// ReserveStock atomically decrements stock if enough is available and
	// reports whether the row was actually changed
	ReserveStock(ctx context.Context, tx Tx, productID string, quantity int) (bool, error)

	// CreateOrder inserts the order row
	CreateOrder(ctx context.Context, tx Tx, order *Order) error

	// CreateOrderItems inserts the line items referencing the order
	CreateOrderItems(ctx context.Context, tx Tx, items []OrderItem) error
}

// Tx interface for transactions
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository instance
func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &PostgresRepository{
		db: db,
	}
}

// PostgresTx implements the Tx interface
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// BeginTx starts a new transaction
func (r *PostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

// OrderExists reports whether an order with this ID was already committed
func (r *PostgresRepository) OrderExists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", orderID).Scan(&exists)
	return exists, err
}

// GetProductsByIDs loads the referenced products keyed by ID
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, price::text, stock
		FROM products
		WHERE id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]Product, len(ids))
	for rows.Next() {
		var product Product
		var price string
		if err := rows.Scan(&product.ID, &product.Name, &price, &product.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		product.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price of product %s: %w", product.ID, err)
		}
		products[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	return products, nil
}

// ReserveStock decrements stock only if the live row still holds enough units.
// The guard runs inside the UPDATE itself, not as a read-then-write pair, so
// concurrent orders over the same product cannot oversell it.
func (r *PostgresRepository) ReserveStock(ctx context.Context, tx Tx, productID string, quantity int) (bool, error) {
	pgTx := tx.(*PostgresTx).tx

	ct, err := pgTx.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1
			AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return false, fmt.Errorf("failed to reserve stock for product %s: %w", productID, err)
	}

	return ct.RowsAffected() == 1, nil
}

// CreateOrder inserts the order row inside the transaction
func (r *PostgresRepository) CreateOrder(ctx context.Context, tx Tx, order *Order) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.UserID, order.TotalAmount.StringFixed(2), order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// CreateOrderItems inserts one row per line item inside the transaction
func (r *PostgresRepository) CreateOrderItems(ctx context.Context, tx Tx, items []OrderItem) error {
	pgTx := tx.(*PostgresTx).tx

	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := pgTx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, id, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice.StringFixed(2))
		if err != nil {
			return fmt.Errorf("failed to create order item for product %s: %w", item.ProductID, err)
		}
	}
	return nil
}
