package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductQuery struct {
	Search     string
	CategoryID *uuid.UUID
	MaxPrice   *decimal.Decimal
	ActiveOnly bool
	OrderBy    string
	Direction  string
	Page       int
	PageSize   int
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products []*domain.Product `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type ProductService interface {
	Create(ctx context.Context, params domain.ProductParams) (*domain.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, upd domain.ProductUpdate) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, query ProductQuery) (*ProductPage, error)
}

type productService struct {
	tm repository.TxManager
}

func NewProductService(tm repository.TxManager) ProductService {
	return &productService{tm: tm}
}

func (s *productService) Create(ctx context.Context, params domain.ProductParams) (*domain.Product, error) {
	product, err := domain.NewProduct(params, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.tm.Repos().Products.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.NewApplicationError("product %q already exists", product.Name)
		}
		return nil, err
	}
	return product, nil
}

func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.tm.Repos().Products.FindByID(ctx, id)
}

// Update locks the row so an edit cannot interleave with a stock reservation.
func (s *productService) Update(ctx context.Context, id uuid.UUID, upd domain.ProductUpdate) (*domain.Product, error) {
	var product *domain.Product
	err := s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		product, err = repos.Products.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := product.Apply(upd); err != nil {
			return err
		}
		if err := repos.Products.Update(ctx, product); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return domain.NewApplicationError("product %q already exists", product.Name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tm.Repos().Products.Delete(ctx, id)
	if errors.Is(err, repository.ErrReferenced) {
		return domain.NewApplicationError("product %s has been ordered and cannot be deleted", id)
	}
	return err
}

func (s *productService) List(ctx context.Context, query ProductQuery) (*ProductPage, error) {
	filter := repository.ProductFilter{
		Search:     query.Search,
		CategoryID: query.CategoryID,
		MaxPrice:   query.MaxPrice,
		ActiveOnly: query.ActiveOnly,
		SortBy:     query.OrderBy,
		SortOrder:  repository.SortOrderDesc,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}

	if query.OrderBy != "" {
		if _, ok := repository.ProductSortFields[query.OrderBy]; !ok {
			return nil, &domain.ValidationError{Field: "order_by", Message: fmt.Sprintf("unknown field %q", query.OrderBy)}
		}
	}
	if query.Direction != "" {
		direction, ok := repository.ParseSortOrder(query.Direction)
		if !ok {
			return nil, &domain.ValidationError{Field: "direction", Message: "must be asc or desc"}
		}
		filter.SortOrder = direction
	}
	if query.MaxPrice != nil && query.MaxPrice.IsNegative() {
		return nil, &domain.ValidationError{Field: "max_price", Message: "must not be negative"}
	}

	products, total, err := s.tm.Repos().Products.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	return &ProductPage{Products: products, Total: total, Page: page, PageSize: pageSize}, nil
}

// normalizePage mirrors the defaults the product repository applies.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
