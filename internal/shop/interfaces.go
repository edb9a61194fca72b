package shop

import (
	"context"
	"io"
	"time"
)

// ProductStore persists the catalog.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, slug string) (Product, error)
	GetProductByID(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, p Product) error
	SetProductImage(ctx context.Context, id, uri string) error
	// ReserveStock decrements stock for every line atomically, failing with
	// ErrOutOfStock when any product lacks quantity.
	ReserveStock(ctx context.Context, lines []CartLine) error
}

// CartStore keeps session carts.
type CartStore interface {
	GetCart(ctx context.Context, sessionID string) (Cart, error)
	SaveCart(ctx context.Context, cart Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersBySession(ctx context.Context, sessionID string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus, at time.Time) error
}

// BlobStore writes product media and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes order events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
