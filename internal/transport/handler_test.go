package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	alice = &domain.Identity{UserID: "alice", Role: domain.RoleUser}
	admin = &domain.Identity{UserID: "root", Role: domain.RoleAdmin}
)

// fakeAuth stands in for AuthMiddleware: a nil identity is rejected with
// 401, anything else is stored on the context.
func fakeAuth(identity *domain.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity == nil {
				middleware.RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), *identity)))
		})
	}
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler)
}

func newRouter(h routeRegistrar, identity *domain.Identity) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r, fakeAuth(identity))
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorDetail {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

// Stub services embed the interface so a test only provides the methods it
// exercises; anything else panics.

type stubOrders struct {
	service.OrderService
	placeOrder   func(ctx context.Context, userID string, addressID int64) (*domain.Order, error)
	userOrders   func(ctx context.Context, userID string, q service.OrderQuery) ([]*domain.Order, error)
	changeStatus func(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error)
	cartItems    func(ctx context.Context, userID string) ([]domain.CartLine, error)
}

func (s *stubOrders) PlaceOrder(ctx context.Context, userID string, addressID int64) (*domain.Order, error) {
	return s.placeOrder(ctx, userID, addressID)
}

func (s *stubOrders) GetUserOrders(ctx context.Context, userID string, q service.OrderQuery) ([]*domain.Order, error) {
	return s.userOrders(ctx, userID, q)
}

func (s *stubOrders) ChangeStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error) {
	return s.changeStatus(ctx, orderID, status)
}

func (s *stubOrders) CartItemsWithPrices(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return s.cartItems(ctx, userID)
}

type stubCarts struct {
	service.CartService
	add    func(ctx context.Context, userID string, productID uuid.UUID, qty int) (*service.CartItemResult, error)
	remove func(ctx context.Context, userID string, productID uuid.UUID) error
	update func(ctx context.Context, userID string, productID uuid.UUID, qty int) error
	list   func(ctx context.Context, userID string) ([]domain.CartLine, error)
}

func (s *stubCarts) Add(ctx context.Context, userID string, productID uuid.UUID, qty int) (*service.CartItemResult, error) {
	return s.add(ctx, userID, productID, qty)
}

func (s *stubCarts) Remove(ctx context.Context, userID string, productID uuid.UUID) error {
	return s.remove(ctx, userID, productID)
}

func (s *stubCarts) UpdateQuantity(ctx context.Context, userID string, productID uuid.UUID, qty int) error {
	return s.update(ctx, userID, productID, qty)
}

func (s *stubCarts) List(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return s.list(ctx, userID)
}

type stubProducts struct {
	service.ProductService
	create func(ctx context.Context, p domain.ProductParams) (*domain.Product, error)
	update func(ctx context.Context, id uuid.UUID, upd domain.ProductUpdate) (*domain.Product, error)
	get    func(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	list   func(ctx context.Context, q service.ProductQuery) (*service.ProductPage, error)
}

func (s *stubProducts) Create(ctx context.Context, p domain.ProductParams) (*domain.Product, error) {
	return s.create(ctx, p)
}

func (s *stubProducts) Update(ctx context.Context, id uuid.UUID, upd domain.ProductUpdate) (*domain.Product, error) {
	return s.update(ctx, id, upd)
}

func (s *stubProducts) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.get(ctx, id)
}

func (s *stubProducts) List(ctx context.Context, q service.ProductQuery) (*service.ProductPage, error) {
	return s.list(ctx, q)
}

type stubUsers struct {
	service.UserService
	create func(ctx context.Context, p domain.NewUserParams) (*domain.User, error)
	get    func(ctx context.Context, userID string) (*domain.User, error)
	delete func(ctx context.Context, userID string) error
}

func (s *stubUsers) CreateWithCart(ctx context.Context, p domain.NewUserParams) (*domain.User, error) {
	return s.create(ctx, p)
}

func (s *stubUsers) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.get(ctx, userID)
}

func (s *stubUsers) Delete(ctx context.Context, userID string) error {
	return s.delete(ctx, userID)
}

type stubAddresses struct {
	service.AddressService
	create func(ctx context.Context, caller domain.Identity, userID string, p domain.AddressParams) (*domain.Address, error)
	delete func(ctx context.Context, caller domain.Identity, addressID int64) error
}

func (s *stubAddresses) Create(ctx context.Context, caller domain.Identity, userID string, p domain.AddressParams) (*domain.Address, error) {
	return s.create(ctx, caller, userID, p)
}

func (s *stubAddresses) Delete(ctx context.Context, caller domain.Identity, addressID int64) error {
	return s.delete(ctx, caller, addressID)
}

type stubCategories struct {
	service.CategoryService
	assign func(ctx context.Context, categoryID, productID uuid.UUID) error
	list   func(ctx context.Context) ([]*domain.Category, error)
}

func (s *stubCategories) AssignToProduct(ctx context.Context, categoryID, productID uuid.UUID) error {
	return s.assign(ctx, categoryID, productID)
}

func (s *stubCategories) List(ctx context.Context) ([]*domain.Category, error) {
	return s.list(ctx)
}
