package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is a closed set; the zero value is not a valid status.
type OrderStatus uint8

const (
	OrderStatusPending OrderStatus = iota + 1
	OrderStatusCompleted
	OrderStatusCanceled
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusPending:   "Pending",
	OrderStatusCompleted: "Completed",
	OrderStatusCanceled:  "Canceled",
}

// orderTransitions is the complete transition table. Statuses without an
// entry are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusCompleted, OrderStatusCanceled},
}

// ParseOrderStatus matches status names case-insensitively and accepts the
// British spelling of Canceled.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return OrderStatusPending, nil
	case "completed":
		return OrderStatusCompleted, nil
	case "canceled", "cancelled":
		return OrderStatusCanceled, nil
	}
	return 0, &StatusError{Requested: s}
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo returns next when the table allows it, a StatusError otherwise.
func (s OrderStatus) TransitionTo(next OrderStatus) (OrderStatus, error) {
	if !next.Valid() {
		return s, &StatusError{Requested: next.String()}
	}
	if !s.CanTransitionTo(next) {
		return s, &StatusError{Current: s.String(), Requested: next.String()}
	}
	return next, nil
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &StatusError{Requested: s.String()}
	}
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseOrderStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s OrderStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, &StatusError{Requested: s.String()}
	}
	return s.String(), nil
}

func (s *OrderStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return fmt.Errorf("cannot scan %T into OrderStatus", src)
}

type Order struct {
	ID          uuid.UUID       `json:"order_id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	AddressID   int64           `json:"address_id" db:"address_id"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	OrderDate   time.Time       `json:"order_date" db:"order_date"`
	Status      OrderStatus     `json:"status" db:"status"`
	Items       []OrderItem     `json:"items"`
}

// NewOrder creates a Pending order. The total must already be computed from
// the snapshot the items will be priced from.
func NewOrder(userID string, addressID int64, total decimal.Decimal, now time.Time) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	}
	if total.IsNegative() {
		return nil, &ValidationError{Field: "total_amount", Message: "must not be negative"}
	}
	return &Order{
		ID:          uuid.New(),
		UserID:      userID,
		AddressID:   addressID,
		TotalAmount: total,
		OrderDate:   now,
		Status:      OrderStatusPending,
		Items:       []OrderItem{},
	}, nil
}

// ItemsTotal recomputes the total from the recorded line prices.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderItem records the unit price captured when the order was placed.
type OrderItem struct {
	OrderID     uuid.UUID       `json:"-" db:"order_id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"price" db:"unit_price"`
}

func NewOrderItem(orderID uuid.UUID, line CartLine) (*OrderItem, error) {
	if line.Quantity <= 0 {
		return nil, NewApplicationError("quantity must be greater than zero")
	}
	if line.UnitPrice.IsNegative() {
		return nil, &ValidationError{Field: "price", Message: "must not be negative"}
	}
	return &OrderItem{
		OrderID:     orderID,
		ProductID:   line.ProductID,
		ProductName: line.ProductName,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
	}, nil
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
