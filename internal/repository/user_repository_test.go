package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Property: a stored user reads back with identical profile fields.
func TestProperty_UserRoundTrip(t *testing.T) {
	requireDB(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("creating and finding a user preserves its fields", prop.ForAll(
		func(id string, email string, firstName string, lastName string) bool {
			_, _ = testDB.Exec("DELETE FROM users WHERE id = $1 OR email = $2", id, email)

			user, err := domain.NewUser(domain.NewUserParams{
				ID: id, Email: email, FirstName: firstName, LastName: lastName,
			}, time.Now().UTC().Truncate(time.Microsecond))
			if err != nil {
				t.Logf("FAIL: invalid generated user: %v", err)
				return false
			}
			if err := repo.Create(ctx, user); err != nil {
				t.Logf("FAIL: create: %v", err)
				return false
			}

			found, err := repo.FindByID(ctx, id)
			if err != nil {
				t.Logf("FAIL: find: %v", err)
				return false
			}

			return found.Email == user.Email &&
				found.FirstName == firstName &&
				found.LastName == lastName &&
				found.Role == domain.RoleUser &&
				found.IsActive &&
				found.DeletedAt == nil
		},
		gen.RegexMatch(`[a-z0-9]{8,24}`),
		gen.RegexMatch(`[a-z]{5,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	seedUser(t, "alice")
	dup, err := domain.NewUser(domain.NewUserParams{ID: "other", Email: "alice@example.com"}, time.Now())
	require.NoError(t, err)

	err = repo.Create(ctx, dup)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestUserRepository_NotFound(t *testing.T) {
	requireDB(t)

	_, err := NewUserRepository(testDB).FindByID(context.Background(), "missing")
	var notFound *domain.InstanceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "User with ID missing not found.", err.Error())
}

func TestUserRepository_UpdateAndList(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	bob := seedUser(t, "bob")
	seedUser(t, "carol")

	bob.Anonymize(time.Now())
	require.NoError(t, repo.Update(ctx, bob))

	all, err := repo.List(ctx, false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.List(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "carol", active[0].ID)

	limited, err := repo.List(ctx, false, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	found, err := repo.FindByID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "deleted_user_bob@example.com", found.Email)
	assert.NotNil(t, found.DeletedAt)
}

func TestUserDeleteCascadesToAddressesAndCart(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	seedUser(t, "dave")
	address := seedAddress(t, "dave")
	cart := seedCart(t, "dave")
	product := seedProduct(t, "Widget", "10.00", 5)
	_, err := NewCartRepository(testDB).AddItem(ctx, cart.ID, product.ID, 1)
	require.NoError(t, err)

	_, err = testDB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, "dave")
	require.NoError(t, err)

	_, err = NewAddressRepository(testDB).FindByID(ctx, address.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = NewCartRepository(testDB).FindByUserID(ctx, "dave")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var items int
	require.NoError(t, testDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_items`).Scan(&items))
	assert.Zero(t, items)
}
