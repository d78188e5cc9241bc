package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"
)

type AddressRepository interface {
	Create(ctx context.Context, address *domain.Address) error
	FindByID(ctx context.Context, id int64) (*domain.Address, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Address, error)
	Update(ctx context.Context, address *domain.Address) error
	Delete(ctx context.Context, id int64) error
}

type addressRepository struct {
	db DBTX
}

func NewAddressRepository(db DBTX) AddressRepository {
	return &addressRepository{db: db}
}

const addressColumns = `id, user_id, label, unit, house_number, road, city, state, postcode, country,
	latitude, longitude, created_at, updated_at`

// Create inserts the address and fills in its generated id.
func (r *addressRepository) Create(ctx context.Context, a *domain.Address) error {
	query := `
		INSERT INTO addresses (user_id, label, unit, house_number, road, city, state, postcode, country,
			latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		a.UserID,
		a.Label,
		a.Unit,
		a.HouseNumber,
		a.Road,
		a.City,
		a.State,
		a.Postcode,
		a.Country,
		a.Latitude,
		a.Longitude,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewNotFound("User", a.UserID)
		}
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}

func (r *addressRepository) FindByID(ctx context.Context, id int64) (*domain.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1`

	a, err := scanAddress(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFound("Address", id)
		}
		return nil, fmt.Errorf("failed to find address: %w", err)
	}
	return a, nil
}

func (r *addressRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []*domain.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}
	return addresses, nil
}

func (r *addressRepository) Update(ctx context.Context, a *domain.Address) error {
	query := `
		UPDATE addresses
		SET label = $2, unit = $3, house_number = $4, road = $5, city = $6, state = $7,
			postcode = $8, country = $9, latitude = $10, longitude = $11
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		a.ID,
		a.Label,
		a.Unit,
		a.HouseNumber,
		a.Road,
		a.City,
		a.State,
		a.Postcode,
		a.Country,
		a.Latitude,
		a.Longitude,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFound("Address", a.ID)
		}
		return fmt.Errorf("failed to update address: %w", err)
	}
	return nil
}

func (r *addressRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("address %d is used by orders: %w", id, ErrReferenced)
		}
		return fmt.Errorf("failed to delete address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFound("Address", id)
	}
	return nil
}

func scanAddress(row rowScanner) (*domain.Address, error) {
	var (
		a        domain.Address
		lat, lng sql.NullFloat64
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Label,
		&a.Unit,
		&a.HouseNumber,
		&a.Road,
		&a.City,
		&a.State,
		&a.Postcode,
		&a.Country,
		&lat,
		&lng,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lng.Valid {
		a.Longitude = &lng.Float64
	}
	return &a, nil
}
