package tap

import (
	"context"
	"errors"
	"sync"
)

// ErrCartNotFound is returned by CartProvider implementations when no cart
// exists for the given identifier.
var ErrCartNotFound = errors.New("cart not found")

// CartProvider is implemented by business logic that owns carts. The
// orchestrator only reads carts and clears them after confirmed settlement;
// ClearCart must not fail once CreateOrder has succeeded for the same
// settlement, or an order would exist alongside a still-populated cart.
type CartProvider interface {
	GetCart(ctx context.Context, cartID string) (*Cart, error)
	ClearCart(ctx context.Context, cartID string) error
}

// OrderStore persists orders created on confirmed settlement.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
}

// MemoryStore is the in-process CartProvider and OrderStore used by tests
// and the example merchant.
type MemoryStore struct {
	mu     sync.RWMutex
	carts  map[string]*Cart
	orders map[string]*Order
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:  make(map[string]*Cart),
		orders: make(map[string]*Order),
	}
}

// PutCart stores or replaces a cart.
func (s *MemoryStore) PutCart(cart *Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cart
	copied.Items = append([]CartItem(nil), cart.Items...)
	s.carts[cart.ID] = &copied
}

// GetCart returns a copy of the cart so callers cannot mutate store state.
func (s *MemoryStore) GetCart(_ context.Context, cartID string) (*Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	copied := *cart
	copied.Items = append([]CartItem(nil), cart.Items...)
	return &copied, nil
}

// ClearCart removes all items but keeps the cart itself.
func (s *MemoryStore) ClearCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[cartID]
	if !ok {
		return ErrCartNotFound
	}
	cart.Items = nil
	return nil
}

// CreateOrder stores the order keyed by id.
func (s *MemoryStore) CreateOrder(_ context.Context, order *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

// Orders returns a snapshot of all stored orders.
func (s *MemoryStore) Orders() []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]*Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, order)
	}
	return orders
}
