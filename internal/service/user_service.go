package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// UserService defines the interface for user business logic
type UserService interface {
	// CreateWithCart stores the user and their empty cart together.
	CreateWithCart(ctx context.Context, params domain.NewUserParams) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context, activeOnly bool, limit int) ([]*domain.User, error)
	Update(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error)
	// Delete anonymises the user and drops their cart, returning its reserved
	// stock. Orders and addresses stay attached to the id.
	Delete(ctx context.Context, userID string) error
}

type userService struct {
	tm     repository.TxManager
	ledger StockLedger
}

// NewUserService creates a new instance of UserService
func NewUserService(tm repository.TxManager) UserService {
	return &userService{tm: tm}
}

func (s *userService) CreateWithCart(ctx context.Context, params domain.NewUserParams) (*domain.User, error) {
	user, err := domain.NewUser(params, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		return createUserWithCart(ctx, repos, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.tm.Repos().Users.FindByID(ctx, userID)
}

func (s *userService) List(ctx context.Context, activeOnly bool, limit int) ([]*domain.User, error) {
	if limit < 0 {
		return nil, &domain.ValidationError{Field: "limit", Message: "must not be negative"}
	}
	return s.tm.Repos().Users.List(ctx, activeOnly, limit)
}

func (s *userService) Update(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error) {
	var user *domain.User
	err := s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		user, err = repos.Users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := user.Apply(upd); err != nil {
			return err
		}
		if err := repos.Users.Update(ctx, user); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return domain.NewApplicationError("email %s is already in use", user.Email)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Delete(ctx context.Context, userID string) error {
	return s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		user, err := repos.Users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.Role == domain.RoleAdmin {
			return domain.NewApplicationError("admin users cannot be deleted")
		}

		user.Anonymize(time.Now().UTC())
		if err := repos.Users.Update(ctx, user); err != nil {
			return fmt.Errorf("failed to anonymize user: %w", err)
		}
		if err := repos.RefreshTokens.RevokeAllForUser(ctx, userID); err != nil {
			return err
		}
		if err := s.releaseCart(ctx, repos, userID); err != nil {
			return err
		}
		return repos.Carts.DeleteByUserID(ctx, userID)
	})
}

// releaseCart hands the stock held by the user's cart lines back to the
// ledger before the cart goes away.
func (s *userService) releaseCart(ctx context.Context, repos repository.Repositories, userID string) error {
	cart, err := repos.Carts.FindByUserIDForUpdate(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	lines, err := repos.Carts.Lines(ctx, cart.ID)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := s.ledger.Release(ctx, repos.Products, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func createUserWithCart(ctx context.Context, repos repository.Repositories, user *domain.User) error {
	if err := repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return domain.NewApplicationError("user %s or email %s already exists", user.ID, user.Email)
		}
		return err
	}
	return repos.Carts.Create(ctx, domain.NewCart(user.ID, user.CreatedAt))
}
