package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/storefront/internal/shop"
)

// CatalogStore is an in-memory shop.ProductStore.
type CatalogStore struct {
	mu     sync.RWMutex
	bySlug map[string]string
	byID   map[string]shop.Product
}

// NewCatalogStore constructs a CatalogStore seeded with products.
func NewCatalogStore(seed ...shop.Product) *CatalogStore {
	s := &CatalogStore{
		bySlug: make(map[string]string),
		byID:   make(map[string]shop.Product),
	}
	for _, p := range seed {
		s.bySlug[p.Slug] = p.ID
		s.byID[p.ID] = p
	}
	return s
}

// ListProducts returns products ordered by name.
func (s *CatalogStore) ListProducts(_ context.Context) ([]shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shop.Product, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Slug < out[j].Slug
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetProduct fetches a product by slug.
func (s *CatalogStore) GetProduct(_ context.Context, slug string) (shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return shop.Product{}, shop.ErrNotFound
	}
	return s.byID[id], nil
}

// GetProductByID fetches a product by ID.
func (s *CatalogStore) GetProductByID(_ context.Context, id string) (shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return shop.Product{}, shop.ErrNotFound
	}
	return p, nil
}

// CreateProduct inserts a product with a unique ID and slug.
func (s *CatalogStore) CreateProduct(_ context.Context, p shop.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[p.ID]; exists {
		return fmt.Errorf("product %s: %w", p.ID, shop.ErrConflict)
	}
	if _, exists := s.bySlug[p.Slug]; exists {
		return fmt.Errorf("slug %s: %w", p.Slug, shop.ErrConflict)
	}
	s.byID[p.ID] = p
	s.bySlug[p.Slug] = p.ID
	return nil
}

// SetProductImage records the image URI of a product.
func (s *CatalogStore) SetProductImage(_ context.Context, id, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return shop.ErrNotFound
	}
	p.ImageURI = uri
	s.byID[id] = p
	return nil
}

// ReserveStock decrements stock for all lines or none of them.
func (s *CatalogStore) ReserveStock(_ context.Context, lines []shop.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]int, len(lines))
	for _, l := range lines {
		want[l.ProductID] += l.Quantity
	}
	for id, qty := range want {
		p, ok := s.byID[id]
		if !ok {
			return fmt.Errorf("product %s: %w", id, shop.ErrNotFound)
		}
		if p.Stock < qty {
			return fmt.Errorf("product %s: %w", p.Slug, shop.ErrOutOfStock)
		}
	}
	for id, qty := range want {
		p := s.byID[id]
		p.Stock -= qty
		s.byID[id] = p
	}
	return nil
}
