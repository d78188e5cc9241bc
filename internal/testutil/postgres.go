// Package testutil starts disposable infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	dbName = "storefront_test"
	dbUser = "storefront"
	dbPwd  = "password"
)

// Postgres is a migrated database running in a throwaway container.
type Postgres struct {
	DB        *sql.DB
	Service   database.Service
	container *postgres.PostgresContainer
}

// MigrationsDir resolves the repository's migrations directory regardless of
// which package the test runs from.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// StartPostgres boots postgres:15, connects through the pgx driver and applies
// every migration.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(
		ctx,
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	pg := &Postgres{container: container}

	host, err := container.Host(ctx)
	if err != nil {
		pg.Terminate(ctx)
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		pg.Terminate(ctx)
		return nil, err
	}

	svc, err := database.New(config.DatabaseConfig{
		Host:         host,
		Port:         port.Port(),
		User:         dbUser,
		Password:     dbPwd,
		Database:     dbName,
		Schema:       "public",
		SSLMode:      "disable",
		MaxOpenConns: 20,
	})
	if err != nil {
		pg.Terminate(ctx)
		return nil, err
	}
	pg.Service = svc
	pg.DB = svc.DB()

	if err := database.RunMigrations(pg.DB, MigrationsDir(), zap.NewNop()); err != nil {
		pg.Terminate(ctx)
		return nil, err
	}

	return pg, nil
}

// Truncate empties every application table between tests.
func (p *Postgres) Truncate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		TRUNCATE order_items, orders, cart_items, carts, product_categories,
			categories, products, addresses, refresh_tokens, users CASCADE
	`)
	return err
}

// Terminate closes the pool and removes the container.
func (p *Postgres) Terminate(ctx context.Context) {
	if p.DB != nil {
		_ = p.DB.Close()
	}
	if p.container != nil {
		_ = p.container.Terminate(ctx)
	}
}
