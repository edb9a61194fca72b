// Package shop defines the storefront domain types shared across subsystems.
package shop

import (
	"errors"
	"time"
)

// Domain errors returned by stores and the service.
var (
	ErrNotFound        = errors.New("not found")
	ErrOutOfStock      = errors.New("insufficient stock")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidCheckout = errors.New("invalid checkout details")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidStatus   = errors.New("invalid order status transition")
	ErrConflict        = errors.New("already exists")
)

// Product is a catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	ImageURI    string    `json:"image_uri,omitempty"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
}

// CartLine is one product in a cart.
type CartLine struct {
	ProductID      string `json:"product_id"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// SubtotalCents returns quantity times unit price.
func (l CartLine) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

// Cart is the basket attached to a browser session.
type Cart struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TotalCents sums every line.
func (c Cart) TotalCents() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.SubtotalCents()
	}
	return total
}

// ItemCount sums line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

// Order status values persisted in the order store.
const (
	OrderStatusPlaced   OrderStatus = "placed"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusShipped  OrderStatus = "shipped"
	OrderStatusCanceled OrderStatus = "canceled"
)

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPlaced:
		return next == OrderStatusPaid || next == OrderStatusCanceled
	case OrderStatusPaid:
		return next == OrderStatusShipped || next == OrderStatusCanceled
	default:
		return false
	}
}

// ShippingAddress is where an order ships.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is a placed checkout.
type Order struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Email      string          `json:"email"`
	Address    ShippingAddress `json:"address"`
	Lines      []CartLine      `json:"lines"`
	TotalCents int64           `json:"total_cents"`
	Currency   string          `json:"currency"`
	Status     OrderStatus     `json:"status"`
	PlacedAt   time.Time       `json:"placed_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CheckoutRequest is the submitted checkout form.
type CheckoutRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Name       string `json:"name" validate:"required,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,alphanum,min=3,max=10"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// NewProduct is the admin payload for creating a product.
type NewProduct struct {
	Slug        string `json:"slug" validate:"required,max=80"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=20000"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,iso4217"`
	Stock       int    `json:"stock" validate:"gte=0"`
}

// OrderEvent is published when an order changes state.
type OrderEvent struct {
	Type       string      `json:"type"`
	OrderID    string      `json:"order_id"`
	Status     OrderStatus `json:"status"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
	At         time.Time   `json:"at"`
}

// EventType returns the event name, used as a message attribute.
func (e OrderEvent) EventType() string {
	return e.Type
}
