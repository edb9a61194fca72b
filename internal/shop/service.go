package shop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/metrics"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 99

// ServiceConfig carries service-level knobs.
type ServiceConfig struct {
	Currency    string
	Topic       string
	MediaPrefix string
}

// Deps bundles the collaborators a Service needs.
type Deps struct {
	Products  ProductStore
	Carts     CartStore
	Orders    OrderStore
	Blobs     BlobStore
	Publisher Publisher
	IDs       IDGenerator
	Clock     Clock
}

// ValidationError lists invalid fields by their JSON name.
type ValidationError struct {
	Kind   error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(names, ", "))
}

// Unwrap returns the sentinel describing what failed validation.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Service implements the storefront use cases on top of the stores.
type Service struct {
	deps      Deps
	cfg       ServiceConfig
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

// NewService constructs a Service.
func NewService(deps Deps, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.MediaPrefix == "" {
		cfg.MediaPrefix = "media"
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		deps:      deps,
		cfg:       cfg,
		validate:  v,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.Named("shop"),
	}
}

// Catalog lists every product.
func (s *Service) Catalog(ctx context.Context) ([]Product, error) {
	products, err := s.deps.Products.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Product fetches one product by slug.
func (s *Service) Product(ctx context.Context, slug string) (Product, error) {
	p, err := s.deps.Products.GetProduct(ctx, slug)
	if err != nil {
		return Product{}, fmt.Errorf("get product %q: %w", slug, err)
	}
	return p, nil
}

// Cart returns the session's cart, empty when none exists yet.
func (s *Service) Cart(ctx context.Context, sessionID string) (Cart, error) {
	cart, err := s.deps.Carts.GetCart(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Cart{SessionID: sessionID}, nil
	case err != nil:
		return Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddToCart adds quantity of productID to the session cart.
func (s *Service) AddToCart(ctx context.Context, sessionID, productID string, quantity int) (Cart, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return Cart{}, fmt.Errorf("quantity must be between 1 and %d: %w", MaxLineQuantity, ErrInvalidInput)
	}
	product, err := s.deps.Products.GetProductByID(ctx, productID)
	if err != nil {
		return Cart{}, fmt.Errorf("get product: %w", err)
	}
	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}

	idx := -1
	for i, l := range cart.Lines {
		if l.ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		cart.Lines = append(cart.Lines, CartLine{
			ProductID:      product.ID,
			Slug:           product.Slug,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
		})
		idx = len(cart.Lines) - 1
	}
	next := cart.Lines[idx].Quantity + quantity
	if next > MaxLineQuantity {
		next = MaxLineQuantity
	}
	if next > product.Stock {
		return Cart{}, fmt.Errorf("add %s: %w", product.Slug, ErrOutOfStock)
	}
	cart.Lines[idx].Quantity = next
	cart.UpdatedAt = s.deps.Clock.Now()

	if err := s.deps.Carts.SaveCart(ctx, cart); err != nil {
		return Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// RemoveFromCart drops productID from the session cart.
func (s *Service) RemoveFromCart(ctx context.Context, sessionID, productID string) (Cart, error) {
	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	kept := cart.Lines[:0]
	for _, l := range cart.Lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	cart.Lines = kept
	cart.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Carts.SaveCart(ctx, cart); err != nil {
		return Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// Checkout turns the session cart into an order.
func (s *Service) Checkout(ctx context.Context, sessionID string, req CheckoutRequest) (Order, error) {
	req = normalizeCheckout(req)
	if err := s.validateStruct(req, ErrInvalidCheckout); err != nil {
		return Order{}, err
	}
	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return Order{}, err
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrEmptyCart
	}
	if err := s.deps.Products.ReserveStock(ctx, cart.Lines); err != nil {
		return Order{}, fmt.Errorf("reserve stock: %w", err)
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		return Order{}, fmt.Errorf("generate order id: %w", err)
	}
	now := s.deps.Clock.Now()
	order := Order{
		ID:        id,
		SessionID: sessionID,
		Email:     req.Email,
		Address: ShippingAddress{
			Name:       req.Name,
			Line1:      req.Line1,
			City:       req.City,
			PostalCode: req.PostalCode,
			Country:    req.Country,
		},
		Lines:      append([]CartLine(nil), cart.Lines...),
		TotalCents: cart.TotalCents(),
		Currency:   s.cfg.Currency,
		Status:     OrderStatusPlaced,
		PlacedAt:   now,
		UpdatedAt:  now,
	}
	if err := s.deps.Orders.CreateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	if err := s.deps.Carts.DeleteCart(ctx, sessionID); err != nil {
		s.logger.Warn("clear cart after checkout failed", zap.String("session", sessionID), zap.Error(err))
	}
	metrics.ObserveOrder(string(order.Status))
	s.publish(ctx, "order.placed", order)
	return order, nil
}

// Orders lists the orders placed from a session, newest first.
func (s *Service) Orders(ctx context.Context, sessionID string) ([]Order, error) {
	orders, err := s.deps.Orders.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session orders: %w", err)
	}
	return orders, nil
}

// AllOrders lists every order, newest first.
func (s *Service) AllOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.deps.Orders.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order along its lifecycle.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (Order, error) {
	order, err := s.deps.Orders.GetOrder(ctx, id)
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if !order.Status.CanTransition(status) {
		return Order{}, fmt.Errorf("%s -> %s: %w", order.Status, status, ErrInvalidStatus)
	}
	now := s.deps.Clock.Now()
	if err := s.deps.Orders.UpdateOrderStatus(ctx, id, status, now); err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	order.Status = status
	order.UpdatedAt = now
	metrics.ObserveOrder(string(status))
	s.publish(ctx, "order."+string(status), order)
	return order, nil
}

// CreateProduct validates and stores a new product. The description is
// sanitized HTML.
func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validateStruct(in, ErrInvalidProduct); err != nil {
		return Product{}, err
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return Product{}, fmt.Errorf("generate product id: %w", err)
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}
	p := Product{
		ID:          id,
		Slug:        in.Slug,
		Name:        in.Name,
		Description: s.sanitizer.Sanitize(in.Description),
		PriceCents:  in.PriceCents,
		Currency:    currency,
		Stock:       in.Stock,
		CreatedAt:   s.deps.Clock.Now(),
	}
	if err := s.deps.Products.CreateProduct(ctx, p); err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// UploadProductImage stores an image for the product and records its URI.
func (s *Service) UploadProductImage(ctx context.Context, slug, contentType string, data io.Reader) (Product, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return Product{}, fmt.Errorf("unsupported content type %q: %w", contentType, ErrInvalidInput)
	}
	p, err := s.deps.Products.GetProduct(ctx, slug)
	if err != nil {
		return Product{}, fmt.Errorf("get product %q: %w", slug, err)
	}
	name, err := s.deps.IDs.NewID()
	if err != nil {
		return Product{}, fmt.Errorf("generate media id: %w", err)
	}
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		ext = exts[0]
	}
	objectPath := path.Join(s.cfg.MediaPrefix, "products", p.ID, name+ext)
	uri, err := s.deps.Blobs.PutObject(ctx, objectPath, mediaType, data)
	if err != nil {
		return Product{}, fmt.Errorf("store image: %w", err)
	}
	if err := s.deps.Products.SetProductImage(ctx, p.ID, uri); err != nil {
		return Product{}, fmt.Errorf("record image: %w", err)
	}
	p.ImageURI = uri
	return p, nil
}

func (s *Service) publish(ctx context.Context, eventType string, order Order) {
	if s.deps.Publisher == nil {
		return
	}
	evt := OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		Status:     order.Status,
		TotalCents: order.TotalCents,
		Currency:   order.Currency,
		At:         order.UpdatedAt,
	}
	id, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, evt)
	if err != nil {
		s.logger.Warn("publish order event failed", zap.String("order", order.ID), zap.String("type", eventType), zap.Error(err))
		return
	}
	s.logger.Debug("order event published", zap.String("order", order.ID), zap.String("message_id", id))
}

func (s *Service) validateStruct(v any, kind error) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Kind: kind, Fields: fields}
}

func normalizeCheckout(req CheckoutRequest) CheckoutRequest {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Line1 = strings.TrimSpace(req.Line1)
	req.City = strings.TrimSpace(req.City)
	req.PostalCode = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(req.PostalCode), " ", ""))
	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	return req
}
