package repository

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartRepository_OnePerUser(t *testing.T) {
	requireDB(t)
	seedUser(t, "frank")
	seedCart(t, "frank")

	err := NewCartRepository(testDB).Create(context.Background(), domain.NewCart("frank", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCartRepository_CreateForUnknownUser(t *testing.T) {
	requireDB(t)

	err := NewCartRepository(testDB).Create(context.Background(), domain.NewCart("ghost", time.Now()))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCartRepository_ItemLifecycle(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewCartRepository(testDB)

	seedUser(t, "gina")
	cart := seedCart(t, "gina")
	mug := seedProduct(t, "Mug", "4.50", 10)
	pen := seedProduct(t, "Pen", "1.25", 10)

	qty, err := repo.AddItem(ctx, cart.ID, mug.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	qty, err = repo.AddItem(ctx, cart.ID, mug.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, qty, "repeated add increments the existing line")

	_, err = repo.AddItem(ctx, cart.ID, pen.ID, 1)
	require.NoError(t, err)

	require.NoError(t, repo.SetItemQuantity(ctx, cart.ID, pen.ID, 4))

	lines, err := repo.Lines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].ProductID.String() < lines[1].ProductID.String(), "lines are ordered by product id")
	assert.Equal(t, "29.50", domain.SnapshotTotal(lines).StringFixed(2))

	require.NoError(t, repo.DeleteItem(ctx, cart.ID, mug.ID))
	assert.ErrorIs(t, repo.DeleteItem(ctx, cart.ID, mug.ID), domain.ErrNotFound)
	assert.ErrorIs(t, repo.SetItemQuantity(ctx, cart.ID, mug.ID, 1), domain.ErrNotFound)

	cleared, err := repo.ClearItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	lines, err = repo.Lines(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCartRepository_QuantityMustBePositive(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	seedUser(t, "hank")
	cart := seedCart(t, "hank")
	product := seedProduct(t, "Cup", "2.00", 1)

	_, err := NewCartRepository(testDB).AddItem(ctx, cart.ID, product.ID, 0)
	assert.Error(t, err)
}

func TestCartRepository_FindItemForUpdate(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	seedUser(t, "ivy")
	cart := seedCart(t, "ivy")
	product := seedProduct(t, "Bowl", "3.00", 5)
	_, err := NewCartRepository(testDB).AddItem(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	tx, err := testDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	repo := NewCartRepository(tx)
	item, err := repo.FindItemForUpdate(ctx, cart.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)

	_, err = repo.FindItemForUpdate(ctx, cart.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
