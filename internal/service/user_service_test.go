package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_CreateWithCart(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.tm)
	ctx := context.Background()

	user, err := svc.CreateWithCart(ctx, domain.NewUserParams{
		ID: "auth0|bob", Email: "Bob@Example.com", FirstName: "Bob", LastName: "Smith",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.True(t, user.IsActive)

	cart, err := f.tm.Repos().Carts.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, cart.UserID)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.CreateWithCart(ctx, domain.NewUserParams{ID: "other", Email: "bob@example.com"})
		assert.ErrorIs(t, err, domain.ErrApplication)
		_, err = svc.Get(ctx, "other")
		assert.ErrorIs(t, err, domain.ErrNotFound, "failed create leaves no user behind")
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := svc.CreateWithCart(ctx, domain.NewUserParams{ID: "x", Email: "not-an-email"})
		var v *domain.ValidationError
		require.ErrorAs(t, err, &v)
		assert.Equal(t, "email", v.Field)
	})
}

func TestUserService_GetAndList(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.tm)
	ctx := context.Background()
	f.addUser("bob", domain.RoleUser)
	f.addUser("carol", domain.RoleAdmin)

	user, err := svc.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "User with ID missing not found.", err.Error())

	users, err := svc.List(ctx, false, 0)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	users, err = svc.List(ctx, false, 2)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = svc.List(ctx, false, -1)
	assert.ErrorIs(t, err, domain.ErrApplication)
}

func TestUserService_Update(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.tm)
	ctx := context.Background()
	f.addUser("bob", domain.RoleUser)

	first, phone := "Alicia", "0113 496 0000"
	user, err := svc.Update(ctx, f.user.ID, domain.UserUpdate{FirstName: &first, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.FirstName)
	assert.Equal(t, "User", user.LastName)
	assert.Equal(t, phone, user.Phone)

	taken := "bob@example.com"
	_, err = svc.Update(ctx, f.user.ID, domain.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, domain.ErrApplication)

	stored, err := svc.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)

	_, err = svc.Update(ctx, "missing", domain.UserUpdate{FirstName: &first})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserService_DeleteAnonymizes(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.tm)
	ctx := context.Background()

	require.NoError(t, f.tm.Repos().RefreshTokens.Create(ctx, &domain.RefreshToken{
		ID: uuid.New(), UserID: f.user.ID, TokenHash: "x", ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, svc.Delete(ctx, f.user.ID))

	user, err := svc.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.NotNil(t, user.DeletedAt)
	assert.Equal(t, "deleted_user_alice@example.com", user.Email)
	assert.Equal(t, "Deleted", user.FirstName)

	_, err = f.tm.Repos().Carts.FindByUserID(ctx, f.user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	addresses, err := f.tm.Repos().Addresses.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, addresses, 1, "addresses stay for order history")

	active, err := svc.List(ctx, true, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUserService_DeleteReturnsCartStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.addProduct("Widget", "3.00", 10)
	gadget := f.addProduct("Gadget", "7.50", 5)

	carts := f.cartService()
	_, err := carts.Add(ctx, f.user.ID, widget.ID, 4)
	require.NoError(t, err)
	_, err = carts.Add(ctx, f.user.ID, gadget.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 6, f.tm.stock(widget.ID))
	require.Equal(t, 3, f.tm.stock(gadget.ID))

	require.NoError(t, NewUserService(f.tm).Delete(ctx, f.user.ID))

	assert.Equal(t, 10, f.tm.stock(widget.ID))
	assert.Equal(t, 5, f.tm.stock(gadget.ID))
	_, ok := f.tm.cartQuantity(f.cart.ID, widget.ID)
	assert.False(t, ok)
}

func TestUserService_DeleteRejectsAdmins(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.tm)
	f.addUser("root", domain.RoleAdmin)

	err := svc.Delete(context.Background(), "root")
	assert.ErrorIs(t, err, domain.ErrApplication)

	user, err := svc.Get(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, user.IsActive)

	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), domain.ErrNotFound)
}
