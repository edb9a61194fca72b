package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/storefront/internal/shop"
)

// OrderStore provides an in-memory shop.OrderStore.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]shop.Order
}

// NewOrderStore constructs an OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]shop.Order)}
}

// CreateOrder stores a new order.
func (s *OrderStore) CreateOrder(_ context.Context, order shop.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s: %w", order.ID, shop.ErrConflict)
	}
	order.Lines = append([]shop.CartLine(nil), order.Lines...)
	s.orders[order.ID] = order
	return nil
}

// GetOrder fetches an order by ID.
func (s *OrderStore) GetOrder(_ context.Context, id string) (shop.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return shop.Order{}, shop.ErrNotFound
	}
	return order, nil
}

// ListOrders returns every order, newest first.
func (s *OrderStore) ListOrders(_ context.Context) ([]shop.Order, error) {
	return s.filter(func(shop.Order) bool { return true }), nil
}

// ListOrdersBySession returns a session's orders, newest first.
func (s *OrderStore) ListOrdersBySession(_ context.Context, sessionID string) ([]shop.Order, error) {
	return s.filter(func(o shop.Order) bool { return o.SessionID == sessionID }), nil
}

// UpdateOrderStatus sets the status and update time of an order.
func (s *OrderStore) UpdateOrderStatus(_ context.Context, id string, status shop.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return shop.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = at
	s.orders[id] = order
	return nil
}

func (s *OrderStore) filter(keep func(shop.Order) bool) []shop.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shop.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].PlacedAt.After(out[j].PlacedAt)
	})
	return out
}
