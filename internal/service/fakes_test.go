package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// memState is the whole fake database. Values are stored by copy so callers
// can never mutate state without going through a repository.
type memState struct {
	users             map[string]domain.User
	addresses         map[int64]domain.Address
	nextAddressID     int64
	products          map[uuid.UUID]domain.Product
	categories        map[uuid.UUID]domain.Category
	productCategories map[[2]uuid.UUID]bool
	carts             map[uuid.UUID]domain.Cart
	cartItems         map[uuid.UUID]map[uuid.UUID]int
	orders            map[uuid.UUID]domain.Order
	refreshTokens     map[uuid.UUID]domain.RefreshToken
}

func newMemState() *memState {
	return &memState{
		users:             map[string]domain.User{},
		addresses:         map[int64]domain.Address{},
		products:          map[uuid.UUID]domain.Product{},
		categories:        map[uuid.UUID]domain.Category{},
		productCategories: map[[2]uuid.UUID]bool{},
		carts:             map[uuid.UUID]domain.Cart{},
		cartItems:         map[uuid.UUID]map[uuid.UUID]int{},
		orders:            map[uuid.UUID]domain.Order{},
		refreshTokens:     map[uuid.UUID]domain.RefreshToken{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextAddressID = s.nextAddressID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.productCategories {
		c.productCategories[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, items := range s.cartItems {
		copied := make(map[uuid.UUID]int, len(items))
		for p, q := range items {
			copied[p] = q
		}
		c.cartItems[k] = copied
	}
	for k, v := range s.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.refreshTokens {
		c.refreshTokens[k] = v
	}
	return c
}

// fakeTxManager serialises transactions and restores the previous state when
// fn fails or panics.
type fakeTxManager struct {
	mu    sync.Mutex
	state *memState

	// failCreateItemAfter makes the n-th CreateItem call fail when > 0.
	failCreateItemAfter int
	createItemCalls     int
}

func newFakeTxManager() *fakeTxManager {
	return &fakeTxManager{state: newMemState()}
}

func (m *fakeTxManager) Repos() repository.Repositories {
	return m.repos(false)
}

func (m *fakeTxManager) WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.state.clone()
	committed := false
	defer func() {
		if !committed {
			m.state = saved
		}
	}()

	if err := fn(m.repos(true)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *fakeTxManager) repos(inTx bool) repository.Repositories {
	f := &fakeRepo{m: m, inTx: inTx}
	return repository.Repositories{
		Users:         (*fakeUsers)(f),
		Addresses:     (*fakeAddresses)(f),
		Products:      (*fakeProducts)(f),
		Categories:    (*fakeCategories)(f),
		Carts:         (*fakeCarts)(f),
		Orders:        (*fakeOrders)(f),
		RefreshTokens: (*fakeRefreshTokens)(f),
	}
}

// view runs fn against the state, taking the lock unless a transaction
// already holds it.
func (m *fakeTxManager) view(inTx bool, fn func(s *memState) error) error {
	if !inTx {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return fn(m.state)
}

type fakeRepo struct {
	m    *fakeTxManager
	inTx bool
}

func (f *fakeRepo) do(fn func(s *memState) error) error {
	return f.m.view(f.inTx, fn)
}

// Test helpers that bypass the repositories.

func (m *fakeTxManager) putUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = *u
}

func (m *fakeTxManager) putProduct(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = *p
}

func (m *fakeTxManager) putCart(c *domain.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.carts[c.ID] = *c
}

func (m *fakeTxManager) stock(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.products[id].Stock
}

func (m *fakeTxManager) setStock(id uuid.UUID, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.products[id]
	p.Stock = stock
	m.state.products[id] = p
}

func (m *fakeTxManager) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *fakeTxManager) cartQuantity(cartID, productID uuid.UUID) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.state.cartItems[cartID][productID]
	return q, ok
}

// Users

type fakeUsers fakeRepo

func (r *fakeUsers) Create(ctx context.Context, user *domain.User) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.users[user.ID]; ok {
			return fmt.Errorf("user %s: %w", user.ID, repository.ErrAlreadyExists)
		}
		for _, u := range s.users {
			if u.Email == user.Email {
				return fmt.Errorf("user %s: %w", user.Email, repository.ErrAlreadyExists)
			}
		}
		s.users[user.ID] = *user
		return nil
	})
}

func (r *fakeUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := (*fakeRepo)(r).do(func(s *memState) error {
		u, ok := s.users[id]
		if !ok {
			return domain.NewNotFound("User", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *fakeUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var out *domain.User
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, u := range s.users {
			if u.Email == strings.ToLower(email) {
				out = &u
				return nil
			}
		}
		return domain.NewNotFound("User", email)
	})
	return out, err
}

func (r *fakeUsers) List(ctx context.Context, activeOnly bool, limit int) ([]*domain.User, error) {
	out := []*domain.User{}
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, u := range s.users {
			if activeOnly && !u.IsActive {
				continue
			}
			u := u
			out = append(out, &u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *fakeUsers) Update(ctx context.Context, user *domain.User) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.users[user.ID]; !ok {
			return domain.NewNotFound("User", user.ID)
		}
		for id, u := range s.users {
			if id != user.ID && u.Email == user.Email {
				return fmt.Errorf("user %s: %w", user.Email, repository.ErrAlreadyExists)
			}
		}
		s.users[user.ID] = *user
		return nil
	})
}

// Addresses

type fakeAddresses fakeRepo

func (r *fakeAddresses) Create(ctx context.Context, a *domain.Address) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.users[a.UserID]; !ok {
			return domain.NewNotFound("User", a.UserID)
		}
		s.nextAddressID++
		a.ID = s.nextAddressID
		s.addresses[a.ID] = *a
		return nil
	})
}

func (r *fakeAddresses) FindByID(ctx context.Context, id int64) (*domain.Address, error) {
	var out *domain.Address
	err := (*fakeRepo)(r).do(func(s *memState) error {
		a, ok := s.addresses[id]
		if !ok {
			return domain.NewNotFound("Address", id)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *fakeAddresses) ListByUser(ctx context.Context, userID string) ([]*domain.Address, error) {
	out := []*domain.Address{}
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, a := range s.addresses {
			if a.UserID == userID {
				a := a
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *fakeAddresses) Update(ctx context.Context, a *domain.Address) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.addresses[a.ID]; !ok {
			return domain.NewNotFound("Address", a.ID)
		}
		s.addresses[a.ID] = *a
		return nil
	})
}

func (r *fakeAddresses) Delete(ctx context.Context, id int64) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.addresses[id]; !ok {
			return domain.NewNotFound("Address", id)
		}
		for _, o := range s.orders {
			if o.AddressID == id {
				return fmt.Errorf("address %d: %w", id, repository.ErrReferenced)
			}
		}
		delete(s.addresses, id)
		return nil
	})
}

// Products

type fakeProducts fakeRepo

func (r *fakeProducts) Create(ctx context.Context, p *domain.Product) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		s.products[p.ID] = *p
		return nil
	})
}

func (r *fakeProducts) Update(ctx context.Context, p *domain.Product) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.products[p.ID]; !ok {
			return domain.NewNotFound("Product", p.ID)
		}
		s.products[p.ID] = *p
		return nil
	})
}

func (r *fakeProducts) Delete(ctx context.Context, id uuid.UUID) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.products[id]; !ok {
			return domain.NewNotFound("Product", id)
		}
		for _, o := range s.orders {
			for _, item := range o.Items {
				if item.ProductID == id {
					return fmt.Errorf("product %s: %w", id, repository.ErrReferenced)
				}
			}
		}
		for _, items := range s.cartItems {
			delete(items, id)
		}
		delete(s.products, id)
		return nil
	})
}

func (r *fakeProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var out *domain.Product
	err := (*fakeRepo)(r).do(func(s *memState) error {
		p, ok := s.products[id]
		if !ok {
			return domain.NewNotFound("Product", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *fakeProducts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeProducts) List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	out := []*domain.Product{}
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, p := range s.products {
			if filter.ActiveOnly && !p.IsActive {
				continue
			}
			if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
				continue
			}
			p := p
			out = append(out, &p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), err
}

func (r *fakeProducts) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var stock int
	err := (*fakeRepo)(r).do(func(s *memState) error {
		p, ok := s.products[id]
		if !ok || p.Stock+delta < 0 {
			return repository.ErrStockConflict
		}
		p.Stock += delta
		s.products[id] = p
		stock = p.Stock
		return nil
	})
	return stock, err
}

// Categories

type fakeCategories fakeRepo

func (r *fakeCategories) Create(ctx context.Context, c *domain.Category) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		for _, existing := range s.categories {
			if existing.Name == c.Name {
				return fmt.Errorf("category %q: %w", c.Name, repository.ErrAlreadyExists)
			}
		}
		s.categories[c.ID] = *c
		return nil
	})
}

func (r *fakeCategories) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	var out *domain.Category
	err := (*fakeRepo)(r).do(func(s *memState) error {
		c, ok := s.categories[id]
		if !ok {
			return domain.NewNotFound("Category", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *fakeCategories) List(ctx context.Context) ([]*domain.Category, error) {
	out := []*domain.Category{}
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, c := range s.categories {
			c := c
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *fakeCategories) Update(ctx context.Context, c *domain.Category) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.categories[c.ID]; !ok {
			return domain.NewNotFound("Category", c.ID)
		}
		s.categories[c.ID] = *c
		return nil
	})
}

func (r *fakeCategories) Delete(ctx context.Context, id uuid.UUID) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.categories[id]; !ok {
			return domain.NewNotFound("Category", id)
		}
		delete(s.categories, id)
		return nil
	})
}

func (r *fakeCategories) AssignProduct(ctx context.Context, categoryID, productID uuid.UUID) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		_, okC := s.categories[categoryID]
		_, okP := s.products[productID]
		if !okC || !okP {
			return domain.NewApplicationError("product %s or category %s does not exist", productID, categoryID)
		}
		s.productCategories[[2]uuid.UUID{productID, categoryID}] = true
		return nil
	})
}

// Carts

type fakeCarts fakeRepo

func (r *fakeCarts) Create(ctx context.Context, cart *domain.Cart) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.users[cart.UserID]; !ok {
			return domain.NewNotFound("User", cart.UserID)
		}
		for _, c := range s.carts {
			if c.UserID == cart.UserID {
				return fmt.Errorf("cart for user %s: %w", cart.UserID, repository.ErrAlreadyExists)
			}
		}
		s.carts[cart.ID] = *cart
		return nil
	})
}

func (r *fakeCarts) FindByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	var out *domain.Cart
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, c := range s.carts {
			if c.UserID == userID {
				c := c
				out = &c
				return nil
			}
		}
		return domain.NewNotFound("Cart", userID)
	})
	return out, err
}

func (r *fakeCarts) FindByUserIDForUpdate(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.FindByUserID(ctx, userID)
}

func (r *fakeCarts) DeleteByUserID(ctx context.Context, userID string) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		for id, c := range s.carts {
			if c.UserID == userID {
				delete(s.carts, id)
				delete(s.cartItems, id)
			}
		}
		return nil
	})
}

func (r *fakeCarts) FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID) (*domain.CartItem, error) {
	var out *domain.CartItem
	err := (*fakeRepo)(r).do(func(s *memState) error {
		q, ok := s.cartItems[cartID][productID]
		if !ok {
			return domain.NewNotFound("CartItem", productID)
		}
		out = &domain.CartItem{CartID: cartID, ProductID: productID, Quantity: q}
		return nil
	})
	return out, err
}

func (r *fakeCarts) AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (int, error) {
	var total int
	err := (*fakeRepo)(r).do(func(s *memState) error {
		if s.cartItems[cartID] == nil {
			s.cartItems[cartID] = map[uuid.UUID]int{}
		}
		s.cartItems[cartID][productID] += quantity
		total = s.cartItems[cartID][productID]
		return nil
	})
	return total, err
}

func (r *fakeCarts) SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.cartItems[cartID][productID]; !ok {
			return domain.NewNotFound("CartItem", productID)
		}
		s.cartItems[cartID][productID] = quantity
		return nil
	})
}

func (r *fakeCarts) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		if _, ok := s.cartItems[cartID][productID]; !ok {
			return domain.NewNotFound("CartItem", productID)
		}
		delete(s.cartItems[cartID], productID)
		return nil
	})
}

func (r *fakeCarts) ClearItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	var n int64
	err := (*fakeRepo)(r).do(func(s *memState) error {
		n = int64(len(s.cartItems[cartID]))
		delete(s.cartItems, cartID)
		return nil
	})
	return n, err
}

func (r *fakeCarts) Lines(ctx context.Context, cartID uuid.UUID) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for productID, q := range s.cartItems[cartID] {
			p := s.products[productID]
			lines = append(lines, domain.CartLine{
				CartID:         cartID,
				ProductID:      productID,
				ProductName:    p.Name,
				Quantity:       q,
				UnitPrice:      p.Price,
				ImageURL:       p.ImageURL,
				AvailableStock: p.Stock,
			})
		}
		return nil
	})
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID.String() < lines[j].ProductID.String() })
	return lines, err
}

// Orders

type fakeOrders fakeRepo

func (r *fakeOrders) Create(ctx context.Context, order *domain.Order) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		stored := *order
		stored.Items = []domain.OrderItem{}
		s.orders[order.ID] = stored
		return nil
	})
}

func (r *fakeOrders) CreateItem(ctx context.Context, item *domain.OrderItem) error {
	m := r.m
	m.createItemCalls++
	if m.failCreateItemAfter > 0 && m.createItemCalls >= m.failCreateItemAfter {
		return fmt.Errorf("failed to create order item: %w", errInjected)
	}
	return (*fakeRepo)(r).do(func(s *memState) error {
		o, ok := s.orders[item.OrderID]
		if !ok {
			return domain.NewNotFound("Order", item.OrderID)
		}
		o.Items = append(o.Items, *item)
		s.orders[item.OrderID] = o
		return nil
	})
}

func (r *fakeOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var out *domain.Order
	err := (*fakeRepo)(r).do(func(s *memState) error {
		o, ok := s.orders[id]
		if !ok {
			return domain.NewNotFound("Order", id)
		}
		o.Items = append([]domain.OrderItem{}, o.Items...)
		out = &o
		return nil
	})
	return out, err
}

func (r *fakeOrders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeOrders) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		o, ok := s.orders[id]
		if !ok {
			return domain.NewNotFound("Order", id)
		}
		o.Status = status
		s.orders[id] = o
		return nil
	})
}

func (r *fakeOrders) ListByUser(ctx context.Context, userID string, filter repository.OrderFilter) ([]*domain.Order, error) {
	out := []*domain.Order{}
	err := (*fakeRepo)(r).do(func(s *memState) error {
		for _, o := range s.orders {
			if o.UserID != userID {
				continue
			}
			if filter.Status != nil && o.Status != *filter.Status {
				continue
			}
			if filter.MinTotal != nil && o.TotalAmount.LessThan(*filter.MinTotal) {
				continue
			}
			if filter.MaxTotal != nil && o.TotalAmount.GreaterThan(*filter.MaxTotal) {
				continue
			}
			o := o
			o.Items = append([]domain.OrderItem{}, o.Items...)
			out = append(out, &o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if filter.Direction == repository.SortOrderAsc {
			return out[i].OrderDate.Before(out[j].OrderDate)
		}
		return out[i].OrderDate.After(out[j].OrderDate)
	})
	return out, err
}

// Refresh tokens

type fakeRefreshTokens fakeRepo

func (r *fakeRefreshTokens) Create(ctx context.Context, token *domain.RefreshToken) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		s.refreshTokens[token.ID] = *token
		return nil
	})
}

func (r *fakeRefreshTokens) FindByID(ctx context.Context, id uuid.UUID) (*domain.RefreshToken, error) {
	var out *domain.RefreshToken
	err := (*fakeRepo)(r).do(func(s *memState) error {
		t, ok := s.refreshTokens[id]
		if !ok {
			return repository.ErrRefreshTokenNotFound
		}
		if t.Revoked {
			return repository.ErrRefreshTokenRevoked
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *fakeRefreshTokens) Revoke(ctx context.Context, id uuid.UUID) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		t, ok := s.refreshTokens[id]
		if !ok {
			return repository.ErrRefreshTokenNotFound
		}
		t.Revoked = true
		s.refreshTokens[id] = t
		return nil
	})
}

func (r *fakeRefreshTokens) RevokeAllForUser(ctx context.Context, userID string) error {
	return (*fakeRepo)(r).do(func(s *memState) error {
		for id, t := range s.refreshTokens {
			if t.UserID == userID {
				t.Revoked = true
				s.refreshTokens[id] = t
			}
		}
		return nil
	})
}

var errInjected = errors.New("injected failure")

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
