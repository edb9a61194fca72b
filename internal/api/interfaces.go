package api

import (
	"context"
	"io"

	"github.com/JakeFAU/storefront/internal/shop"
)

// Shop is the storefront behavior the handlers depend on.
type Shop interface {
	Catalog(ctx context.Context) ([]shop.Product, error)
	Product(ctx context.Context, slug string) (shop.Product, error)
	Cart(ctx context.Context, sessionID string) (shop.Cart, error)
	AddToCart(ctx context.Context, sessionID, productID string, quantity int) (shop.Cart, error)
	RemoveFromCart(ctx context.Context, sessionID, productID string) (shop.Cart, error)
	Checkout(ctx context.Context, sessionID string, req shop.CheckoutRequest) (shop.Order, error)
	Orders(ctx context.Context, sessionID string) ([]shop.Order, error)
	AllOrders(ctx context.Context) ([]shop.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status shop.OrderStatus) (shop.Order, error)
	CreateProduct(ctx context.Context, in shop.NewProduct) (shop.Product, error)
	UploadProductImage(ctx context.Context, slug, contentType string, data io.Reader) (shop.Product, error)
}

// SessionIDs mints browser session identifiers.
type SessionIDs interface {
	NewSessionID() (string, error)
}
