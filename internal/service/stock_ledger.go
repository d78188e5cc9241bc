package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// StockLedger is the only writer of product stock outside admin edits. It
// must be handed a ProductRepository bound to the caller's transaction so
// the row lock lives as long as the unit of work.
type StockLedger struct{}

// Reserve locks the product row and takes quantity out of stock.
func (StockLedger) Reserve(ctx context.Context, products repository.ProductRepository, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return domain.NewApplicationError("quantity must be greater than zero")
	}

	product, err := products.FindByIDForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < quantity {
		return &domain.StockError{ProductName: product.Name, Requested: quantity, Available: product.Stock}
	}

	if _, err := products.AdjustStock(ctx, productID, -quantity); err != nil {
		if errors.Is(err, repository.ErrStockConflict) {
			return &domain.StockError{ProductName: product.Name, Requested: quantity, Available: product.Stock}
		}
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	return nil
}

// Release returns quantity to stock. There is no upper bound.
func (StockLedger) Release(ctx context.Context, products repository.ProductRepository, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return domain.NewApplicationError("quantity must be greater than zero")
	}

	if _, err := products.FindByIDForUpdate(ctx, productID); err != nil {
		return err
	}
	if _, err := products.AdjustStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	return nil
}
