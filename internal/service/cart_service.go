package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItemResult describes a cart line after an add.
type CartItemResult struct {
	CartID    uuid.UUID       `json:"cart_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CartService manages the per-user cart. Every mutation moves stock through
// the ledger inside the same transaction as the cart write.
type CartService interface {
	Add(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*CartItemResult, error)
	Remove(ctx context.Context, userID string, productID uuid.UUID) error
	UpdateQuantity(ctx context.Context, userID string, productID uuid.UUID, quantity int) error
	// Snapshot returns the priced cart lines, ordered by product id.
	Snapshot(ctx context.Context, userID string) ([]domain.CartLine, error)
	List(ctx context.Context, userID string) ([]domain.CartLine, error)
}

type cartService struct {
	tm     repository.TxManager
	ledger StockLedger
}

func NewCartService(tm repository.TxManager) CartService {
	return &cartService{tm: tm}
}

func (s *cartService) Add(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*CartItemResult, error) {
	if quantity <= 0 {
		return nil, domain.NewApplicationError("quantity must be greater than zero")
	}

	var result *CartItemResult
	err := s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		cart, err := lockCart(ctx, repos.Carts, userID)
		if err != nil {
			return err
		}
		product, err := repos.Products.FindByID(ctx, productID)
		if err != nil {
			return err
		}

		if err := s.ledger.Reserve(ctx, repos.Products, productID, quantity); err != nil {
			return err
		}

		total, err := repos.Carts.AddItem(ctx, cart.ID, productID, quantity)
		if err != nil {
			return err
		}

		result = &CartItemResult{
			CartID:    cart.ID,
			ProductID: productID,
			Quantity:  total,
			Price:     product.Price,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *cartService) Remove(ctx context.Context, userID string, productID uuid.UUID) error {
	return s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		cart, err := lockCart(ctx, repos.Carts, userID)
		if err != nil {
			return err
		}
		item, err := findCartItem(ctx, repos.Carts, cart.ID, productID)
		if err != nil {
			return err
		}

		if err := s.ledger.Release(ctx, repos.Products, productID, item.Quantity); err != nil {
			return err
		}
		return repos.Carts.DeleteItem(ctx, cart.ID, productID)
	})
}

func (s *cartService) UpdateQuantity(ctx context.Context, userID string, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return domain.NewApplicationError("quantity must be greater than zero")
	}

	return s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		cart, err := lockCart(ctx, repos.Carts, userID)
		if err != nil {
			return err
		}
		item, err := findCartItem(ctx, repos.Carts, cart.ID, productID)
		if err != nil {
			return err
		}

		switch delta := quantity - item.Quantity; {
		case delta > 0:
			if err := s.ledger.Reserve(ctx, repos.Products, productID, delta); err != nil {
				var stockErr *domain.StockError
				if errors.As(err, &stockErr) {
					// Report the quantity the caller asked for, not the delta.
					stockErr.Requested = quantity
				}
				return err
			}
		case delta < 0:
			if err := s.ledger.Release(ctx, repos.Products, productID, -delta); err != nil {
				return err
			}
		default:
			return nil
		}

		return repos.Carts.SetItemQuantity(ctx, cart.ID, productID, quantity)
	})
}

func (s *cartService) Snapshot(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return cartSnapshot(ctx, s.tm.Repos(), userID)
}

func (s *cartService) List(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return s.Snapshot(ctx, userID)
}

// cartSnapshot reads the priced lines through whatever repositories it is
// given, so order placement can read inside its own transaction.
func cartSnapshot(ctx context.Context, repos repository.Repositories, userID string) ([]domain.CartLine, error) {
	cart, err := findCart(ctx, repos.Carts, userID)
	if err != nil {
		return nil, err
	}
	return repos.Carts.Lines(ctx, cart.ID)
}

func findCart(ctx context.Context, carts repository.CartRepository, userID string) (*domain.Cart, error) {
	cart, err := carts.FindByUserID(ctx, userID)
	if err != nil {
		return nil, cartLookupError(err)
	}
	return cart, nil
}

// lockCart is findCart for mutations: the cart row lock serialises all
// writers of one user's cart ahead of any item or product lock.
func lockCart(ctx context.Context, carts repository.CartRepository, userID string) (*domain.Cart, error) {
	cart, err := carts.FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, cartLookupError(err)
	}
	return cart, nil
}

func cartLookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewApplicationError("cart not found for user")
	}
	return fmt.Errorf("failed to load cart: %w", err)
}

func findCartItem(ctx context.Context, carts repository.CartRepository, cartID, productID uuid.UUID) (*domain.CartItem, error) {
	item, err := carts.FindItemForUpdate(ctx, cartID, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewApplicationError("cart item not found for product")
		}
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	return item, nil
}
