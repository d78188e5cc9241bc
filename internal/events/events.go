package events

import (
	"context"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys published on the order exchange.
const (
	OrderPlaced        = "order.placed"
	OrderStatusChanged = "order.status_changed"
)

// OrderEvent is the message body for every order routing key.
type OrderEvent struct {
	Type           string          `json:"type"`
	OrderID        uuid.UUID       `json:"order_id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func NewOrderPlaced(order *domain.Order, now time.Time) OrderEvent {
	return OrderEvent{
		Type:        OrderPlaced,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status.String(),
		TotalAmount: order.TotalAmount,
		OccurredAt:  now,
	}
}

func NewOrderStatusChanged(order *domain.Order, previous domain.OrderStatus, now time.Time) OrderEvent {
	return OrderEvent{
		Type:           OrderStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.Status.String(),
		PreviousStatus: previous.String(),
		TotalAmount:    order.TotalAmount,
		OccurredAt:     now,
	}
}

// Publisher delivers order events after the owning transaction commits.
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
