package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the single per-user basket.
type Cart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{ID: uuid.New(), UserID: userID, CreatedAt: now}
}

type CartItem struct {
	CartID    uuid.UUID `json:"cart_id" db:"cart_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
}

// CartLine is a cart item joined with the product's current name and price.
// A slice of lines is the snapshot order placement prices from.
type CartLine struct {
	CartID         uuid.UUID       `json:"cart_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"price"`
	ImageURL       string          `json:"image_url"`
	AvailableStock int             `json:"available_stock"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SnapshotTotal sums quantity * unit price over lines.
func SnapshotTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
