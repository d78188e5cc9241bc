package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repositories groups every repository bound to the same DBTX.
type Repositories struct {
	Users         UserRepository
	Addresses     AddressRepository
	Products      ProductRepository
	Categories    CategoryRepository
	Carts         CartRepository
	Orders        OrderRepository
	RefreshTokens RefreshTokenRepository
}

func NewRepositories(q DBTX) Repositories {
	return Repositories{
		Users:         NewUserRepository(q),
		Addresses:     NewAddressRepository(q),
		Products:      NewProductRepository(q),
		Categories:    NewCategoryRepository(q),
		Carts:         NewCartRepository(q),
		Orders:        NewOrderRepository(q),
		RefreshTokens: NewRefreshTokenRepository(q),
	}
}

// TxManager is the unit of work. WithinTx commits when fn returns nil and
// rolls back on an error or panic; nothing fn wrote is visible otherwise.
type TxManager interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

type sqlTxManager struct {
	db    *sql.DB
	repos Repositories
}

func NewTxManager(db *sql.DB) TxManager {
	return &sqlTxManager{db: db, repos: NewRepositories(db)}
}

// Repos returns repositories bound to the pool, for single-statement work.
func (m *sqlTxManager) Repos() Repositories {
	return m.repos
}

func (m *sqlTxManager) WithinTx(ctx context.Context, fn func(repos Repositories) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(NewRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
