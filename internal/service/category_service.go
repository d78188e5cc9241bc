package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type CategoryService interface {
	Create(ctx context.Context, name, description string) (*domain.Category, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	List(ctx context.Context) ([]*domain.Category, error)
	Update(ctx context.Context, id uuid.UUID, upd domain.CategoryUpdate) (*domain.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AssignToProduct(ctx context.Context, categoryID, productID uuid.UUID) error
}

type categoryService struct {
	tm    repository.TxManager
	cache cache.CategoryCache
}

// NewCategoryService serves reads through c; every write invalidates it.
func NewCategoryService(tm repository.TxManager, c cache.CategoryCache) CategoryService {
	return &categoryService{tm: tm, cache: c}
}

func (s *categoryService) Create(ctx context.Context, name, description string) (*domain.Category, error) {
	category, err := domain.NewCategory(name, description, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.tm.Repos().Categories.Create(ctx, category); err != nil {
		return nil, categoryConflict(err, category.Name)
	}
	s.cache.Invalidate(ctx)
	return category, nil
}

func (s *categoryService) Get(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.cache.Get(ctx, id, s.tm.Repos().Categories.FindByID)
}

func (s *categoryService) List(ctx context.Context) ([]*domain.Category, error) {
	return s.cache.List(ctx, s.tm.Repos().Categories.List)
}

func (s *categoryService) Update(ctx context.Context, id uuid.UUID, upd domain.CategoryUpdate) (*domain.Category, error) {
	categories := s.tm.Repos().Categories

	category, err := categories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := category.Apply(upd); err != nil {
		return nil, err
	}
	if err := categories.Update(ctx, category); err != nil {
		return nil, categoryConflict(err, category.Name)
	}
	s.cache.Invalidate(ctx, id)
	return category, nil
}

func (s *categoryService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tm.Repos().Categories.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

func (s *categoryService) AssignToProduct(ctx context.Context, categoryID, productID uuid.UUID) error {
	return s.tm.Repos().Categories.AssignProduct(ctx, categoryID, productID)
}

func categoryConflict(err error, name string) error {
	if errors.Is(err, repository.ErrAlreadyExists) {
		return domain.NewApplicationError("category %q already exists", name)
	}
	return err
}
