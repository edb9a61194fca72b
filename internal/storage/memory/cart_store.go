package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/storefront/internal/shop"
)

// CartStore keeps carts keyed by session ID.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]shop.Cart
}

// NewCartStore constructs an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]shop.Cart)}
}

// GetCart returns a copy of the session's cart.
func (s *CartStore) GetCart(_ context.Context, sessionID string) (shop.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[sessionID]
	if !ok {
		return shop.Cart{}, shop.ErrNotFound
	}
	cart.Lines = append([]shop.CartLine(nil), cart.Lines...)
	return cart, nil
}

// SaveCart replaces the session's cart.
func (s *CartStore) SaveCart(_ context.Context, cart shop.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Lines = append([]shop.CartLine(nil), cart.Lines...)
	s.carts[cart.SessionID] = cart
	return nil
}

// DeleteCart removes the session's cart. Missing carts are not an error.
func (s *CartStore) DeleteCart(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}
