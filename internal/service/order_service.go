package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderQuery holds the optional filters for GetUserOrders. Empty strings and
// nil pointers mean "not set".
type OrderQuery struct {
	StartDate      *time.Time
	EndDate        *time.Time
	MinTotal       *decimal.Decimal
	MaxTotal       *decimal.Decimal
	Status         string
	OrderBy        string
	OrderDirection string
}

type OrderService interface {
	// PlaceOrder turns the user's cart into a Pending order in one
	// transaction: the order, its items, the stock reservations and the
	// cart clear either all happen or none do.
	PlaceOrder(ctx context.Context, userID string, addressID int64) (*domain.Order, error)
	GetUserOrders(ctx context.Context, userID string, query OrderQuery) ([]*domain.Order, error)
	ChangeStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (*domain.Order, error)
	CartItemsWithPrices(ctx context.Context, userID string) ([]domain.CartLine, error)
}

type orderService struct {
	tm        repository.TxManager
	ledger    StockLedger
	publisher events.Publisher
	logger    *zap.Logger
}

func NewOrderService(tm repository.TxManager, publisher events.Publisher, logger *zap.Logger) OrderService {
	return &orderService{tm: tm, publisher: publisher, logger: logger}
}

func (s *orderService) PlaceOrder(ctx context.Context, userID string, addressID int64) (*domain.Order, error) {
	var order *domain.Order

	err := s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		address, err := repos.Addresses.FindByID(ctx, addressID)
		if err != nil {
			return err
		}
		if !address.BelongsTo(userID) {
			return &domain.AddressOwnershipError{AddressID: addressID, UserID: userID}
		}

		cart, err := repos.Carts.FindByUserIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.EmptyCartError{UserID: userID}
			}
			return fmt.Errorf("failed to load cart: %w", err)
		}
		lines, err := repos.Carts.Lines(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return &domain.EmptyCartError{UserID: userID}
		}

		order, err = domain.NewOrder(userID, addressID, domain.SnapshotTotal(lines), time.Now().UTC())
		if err != nil {
			return err
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		// Lines arrive ordered by product id, so concurrent placements lock
		// product rows in the same order.
		for _, line := range lines {
			if err := s.ledger.Reserve(ctx, repos.Products, line.ProductID, line.Quantity); err != nil {
				return err
			}
			item, err := domain.NewOrderItem(order.ID, line)
			if err != nil {
				return err
			}
			if err := repos.Orders.CreateItem(ctx, item); err != nil {
				return err
			}
			order.Items = append(order.Items, *item)
		}

		if _, err := repos.Carts.ClearItems(ctx, cart.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)
	s.publish(ctx, events.NewOrderPlaced(order, time.Now().UTC()))

	return order, nil
}

func (s *orderService) GetUserOrders(ctx context.Context, userID string, query OrderQuery) ([]*domain.Order, error) {
	filter := repository.OrderFilter{
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
		MinTotal:  query.MinTotal,
		MaxTotal:  query.MaxTotal,
		OrderBy:   query.OrderBy,
		Direction: repository.SortOrderDesc,
	}

	if query.Status != "" {
		status, err := domain.ParseOrderStatus(query.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if query.OrderBy != "" {
		if _, ok := repository.OrderSortFields[query.OrderBy]; !ok {
			return nil, &domain.ValidationError{Field: "order_by", Message: fmt.Sprintf("unknown field %q", query.OrderBy)}
		}
	}
	if query.OrderDirection != "" {
		direction, ok := repository.ParseSortOrder(query.OrderDirection)
		if !ok {
			return nil, &domain.ValidationError{Field: "order_direction", Message: "must be asc or desc"}
		}
		filter.Direction = direction
	}

	return s.tm.Repos().Orders.ListByUser(ctx, userID, filter)
}

func (s *orderService) ChangeStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(newStatus)
	if err != nil {
		return nil, err
	}

	var (
		order    *domain.Order
		previous domain.OrderStatus
	)
	err = s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		order, err = repos.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		previous = order.Status
		if order.Status, err = order.Status.TransitionTo(next); err != nil {
			return err
		}
		if err := repos.Orders.UpdateStatus(ctx, orderID, order.Status); err != nil {
			return err
		}

		if order.Status == domain.OrderStatusCanceled {
			for _, item := range order.Items {
				if err := s.ledger.Release(ctx, repos.Products, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("from", previous.String()),
		zap.String("to", order.Status.String()),
	)
	s.publish(ctx, events.NewOrderStatusChanged(order, previous, time.Now().UTC()))

	return order, nil
}

func (s *orderService) CartItemsWithPrices(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return cartSnapshot(ctx, s.tm.Repos(), userID)
}

// publish runs after commit; a broker failure never undoes a committed order.
func (s *orderService) publish(ctx context.Context, event events.OrderEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.Error(err),
			zap.String("event", event.Type),
			zap.String("order_id", event.OrderID.String()),
		)
	}
}
