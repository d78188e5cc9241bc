package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	t         *testing.T
	tm        *fakeTxManager
	publisher *recordingPublisher
	user      *domain.User
	cart      *domain.Cart
	address   *domain.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, tm: newFakeTxManager(), publisher: &recordingPublisher{}}
	f.user, f.cart = f.addUser("alice", domain.RoleUser)

	address, err := domain.NewAddress(f.user.ID, domain.AddressParams{
		HouseNumber: "12", Road: "High St", City: "Leeds",
		State: "West Yorkshire", Postcode: "LS1 1AA", Country: "UK",
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.tm.Repos().Addresses.Create(context.Background(), address))
	f.address = address
	return f
}

func (f *fixture) addUser(id string, role domain.Role) (*domain.User, *domain.Cart) {
	f.t.Helper()
	user, err := domain.NewUser(domain.NewUserParams{
		ID: id, Email: id + "@example.com", FirstName: "Test", LastName: "User", Role: string(role),
	}, time.Now())
	require.NoError(f.t, err)
	f.tm.putUser(user)

	cart := domain.NewCart(id, time.Now())
	f.tm.putCart(cart)
	return user, cart
}

func (f *fixture) addProduct(name, price string, stock int) *domain.Product {
	f.t.Helper()
	product, err := domain.NewProduct(domain.ProductParams{
		Name: name, Price: decimal.RequireFromString(price), Stock: stock,
	}, time.Now())
	require.NoError(f.t, err)
	f.tm.putProduct(product)
	return product
}

// putInCart writes a cart line without touching stock.
func (f *fixture) putInCart(cart *domain.Cart, product *domain.Product, quantity int) {
	f.t.Helper()
	_, err := f.tm.Repos().Carts.AddItem(context.Background(), cart.ID, product.ID, quantity)
	require.NoError(f.t, err)
}

func (f *fixture) orderService() OrderService {
	return NewOrderService(f.tm, f.publisher, zap.NewNop())
}

func (f *fixture) cartService() CartService {
	return NewCartService(f.tm)
}
