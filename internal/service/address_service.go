package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// ErrForbidden is returned when the caller may not act on another user's
// resource.
var ErrForbidden = errors.New("forbidden")

type AddressService interface {
	Create(ctx context.Context, caller domain.Identity, userID string, params domain.AddressParams) (*domain.Address, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Address, error)
	Update(ctx context.Context, caller domain.Identity, addressID int64, upd domain.AddressUpdate) (*domain.Address, error)
	Delete(ctx context.Context, caller domain.Identity, addressID int64) error
}

type addressService struct {
	tm repository.TxManager
}

func NewAddressService(tm repository.TxManager) AddressService {
	return &addressService{tm: tm}
}

func (s *addressService) Create(ctx context.Context, caller domain.Identity, userID string, params domain.AddressParams) (*domain.Address, error) {
	if !caller.CanAccess(userID) {
		return nil, ErrForbidden
	}

	address, err := domain.NewAddress(userID, params, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.tm.Repos().Addresses.Create(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

func (s *addressService) ListForUser(ctx context.Context, userID string) ([]*domain.Address, error) {
	return s.tm.Repos().Addresses.ListByUser(ctx, userID)
}

func (s *addressService) Update(ctx context.Context, caller domain.Identity, addressID int64, upd domain.AddressUpdate) (*domain.Address, error) {
	var address *domain.Address
	err := s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		address, err = repos.Addresses.FindByID(ctx, addressID)
		if err != nil {
			return err
		}
		if !caller.CanAccess(address.UserID) {
			return ErrForbidden
		}
		if err := address.Apply(upd); err != nil {
			return err
		}
		return repos.Addresses.Update(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *addressService) Delete(ctx context.Context, caller domain.Identity, addressID int64) error {
	return s.tm.WithinTx(ctx, func(repos repository.Repositories) error {
		address, err := repos.Addresses.FindByID(ctx, addressID)
		if err != nil {
			return err
		}
		if !caller.CanAccess(address.UserID) {
			return ErrForbidden
		}
		if err := repos.Addresses.Delete(ctx, addressID); err != nil {
			if errors.Is(err, repository.ErrReferenced) {
				return domain.NewApplicationError("address %d is used by existing orders and cannot be deleted", addressID)
			}
			return fmt.Errorf("failed to delete address: %w", err)
		}
		return nil
	})
}
