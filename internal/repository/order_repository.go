package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSortFields maps the sortable order fields to their columns.
var OrderSortFields = map[string]string{
	"id":           "o.id",
	"user_id":      "o.user_id",
	"address_id":   "o.address_id",
	"total_amount": "o.total_amount",
	"order_date":   "o.order_date",
	"status":       "o.status",
}

// OrderFilter narrows ListByUser. Bounds are inclusive; nil means unbounded.
type OrderFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	MinTotal  *decimal.Decimal
	MaxTotal  *decimal.Decimal
	Status    *domain.OrderStatus
	OrderBy   string
	Direction SortOrder
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	CreateItem(ctx context.Context, item *domain.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// FindByIDForUpdate locks the order row until the transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	// ListByUser returns every matching order with its items. There is no
	// page limit.
	ListByUser(ctx context.Context, userID string, filter OrderFilter) ([]*domain.Order, error)
}

type orderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, address_id, total_amount, order_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.UserID,
		order.AddressID,
		order.TotalAmount,
		order.OrderDate,
		order.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) CreateItem(ctx context.Context, item *domain.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, `
		SELECT id, user_id, address_id, total_amount, order_date, status
		FROM orders WHERE id = $1
	`, id)
}

func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, `
		SELECT id, user_id, address_id, total_amount, order_date, status
		FROM orders WHERE id = $1
		FOR UPDATE
	`, id)
}

func (r *orderRepository) findOne(ctx context.Context, query string, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.AddressID,
		&order.TotalAmount,
		&order.OrderDate,
		&order.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFound("Order", id)
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *orderRepository) items(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `
		SELECT oi.order_id, oi.product_id, p.name, oi.quantity, oi.unit_price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.product_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectOneRow(result, domain.NewNotFound("Order", id))
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, filter OrderFilter) ([]*domain.Order, error) {
	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "order_date"
	}
	sortColumn, ok := OrderSortFields[orderBy]
	if !ok {
		return nil, &domain.ValidationError{Field: "order_by", Message: fmt.Sprintf("unknown field %q", orderBy)}
	}
	direction := filter.Direction
	if direction == "" {
		direction = SortOrderDesc
	}
	if direction != SortOrderAsc && direction != SortOrderDesc {
		return nil, &domain.ValidationError{Field: "order_direction", Message: fmt.Sprintf("unknown direction %q", direction)}
	}

	conditions := []string{"o.user_id = $1"}
	args := []any{userID}
	argIndex := 2

	addCondition := func(format string, value any) {
		conditions = append(conditions, fmt.Sprintf(format, argIndex))
		args = append(args, value)
		argIndex++
	}
	if filter.StartDate != nil {
		addCondition("o.order_date >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		addCondition("o.order_date <= $%d", *filter.EndDate)
	}
	if filter.MinTotal != nil {
		addCondition("o.total_amount >= $%d", *filter.MinTotal)
	}
	if filter.MaxTotal != nil {
		addCondition("o.total_amount <= $%d", *filter.MaxTotal)
	}
	if filter.Status != nil {
		addCondition("o.status = $%d", *filter.Status)
	}

	// Items of one order stay adjacent because o.id breaks ties.
	query := fmt.Sprintf(`
		SELECT o.id, o.user_id, o.address_id, o.total_amount, o.order_date, o.status,
			oi.product_id, p.name, oi.quantity, oi.unit_price
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE %s
		ORDER BY %s %s, o.id ASC, oi.product_id ASC
	`, strings.Join(conditions, " AND "), sortColumn, direction)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	var current *domain.Order
	for rows.Next() {
		var (
			order       domain.Order
			productID   uuid.NullUUID
			productName sql.NullString
			quantity    sql.NullInt64
			unitPrice   decimal.NullDecimal
		)
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.AddressID,
			&order.TotalAmount,
			&order.OrderDate,
			&order.Status,
			&productID,
			&productName,
			&quantity,
			&unitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}

		if current == nil || current.ID != order.ID {
			order.Items = []domain.OrderItem{}
			current = &order
			orders = append(orders, current)
		}

		if productID.Valid {
			current.Items = append(current.Items, domain.OrderItem{
				OrderID:     current.ID,
				ProductID:   productID.UUID,
				ProductName: productName.String,
				Quantity:    int(quantity.Int64),
				UnitPrice:   unitPrice.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}
