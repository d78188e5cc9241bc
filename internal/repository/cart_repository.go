package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

type CartRepository interface {
	Create(ctx context.Context, cart *domain.Cart) error
	FindByUserID(ctx context.Context, userID string) (*domain.Cart, error)
	// FindByUserIDForUpdate locks the cart row. Every cart mutation takes
	// this lock before touching cart items or product stock.
	FindByUserIDForUpdate(ctx context.Context, userID string) (*domain.Cart, error)
	DeleteByUserID(ctx context.Context, userID string) error

	// FindItemForUpdate locks the cart line until the transaction ends.
	FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID) (*domain.CartItem, error)
	// AddItem inserts the line or increments an existing one and returns the
	// resulting quantity.
	AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (int, error)
	SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	ClearItems(ctx context.Context, cartID uuid.UUID) (int64, error)

	// Lines joins the cart with current product data, ordered by product id.
	Lines(ctx context.Context, cartID uuid.UUID) ([]domain.CartLine, error)
}

type cartRepository struct {
	db DBTX
}

func NewCartRepository(db DBTX) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	query := `INSERT INTO carts (id, user_id, created_at) VALUES ($1, $2, $3)`

	if _, err := r.db.ExecContext(ctx, query, cart.ID, cart.UserID, cart.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cart for user %s: %w", cart.UserID, ErrAlreadyExists)
		}
		if isForeignKeyViolation(err) {
			return domain.NewNotFound("User", cart.UserID)
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func (r *cartRepository) FindByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.findByUserID(ctx, `SELECT id, user_id, created_at FROM carts WHERE user_id = $1`, userID)
}

func (r *cartRepository) FindByUserIDForUpdate(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.findByUserID(ctx, `SELECT id, user_id, created_at FROM carts WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *cartRepository) findByUserID(ctx context.Context, query, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFound("Cart", userID)
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	return cart, nil
}

func (r *cartRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (r *cartRepository) FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID) (*domain.CartItem, error) {
	query := `
		SELECT cart_id, product_id, quantity
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
		FOR UPDATE
	`

	item := &domain.CartItem{}
	err := r.db.QueryRowContext(ctx, query, cartID, productID).Scan(&item.CartID, &item.ProductID, &item.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFound("CartItem", productID)
		}
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (int, error) {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity
	`

	var total int
	if err := r.db.QueryRowContext(ctx, query, cartID, productID, quantity).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to add cart item: %w", err)
	}
	return total, nil
}

func (r *cartRepository) SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	query := `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`

	result, err := r.db.ExecContext(ctx, query, cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return expectOneRow(result, domain.NewNotFound("CartItem", productID))
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return expectOneRow(result, domain.NewNotFound("CartItem", productID))
}

func (r *cartRepository) ClearItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return result.RowsAffected()
}

func (r *cartRepository) Lines(ctx context.Context, cartID uuid.UUID) ([]domain.CartLine, error) {
	query := `
		SELECT ci.cart_id, ci.product_id, p.name, ci.quantity, p.price, p.image_url, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.product_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		err := rows.Scan(
			&line.CartID,
			&line.ProductID,
			&line.ProductName,
			&line.Quantity,
			&line.UnitPrice,
			&line.ImageURL,
			&line.AvailableStock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}
	return lines, nil
}
