package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/shop"
)

const maxFormBytes = 64 << 10

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shop.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shop.ErrEmptyCart), errors.Is(err, shop.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shop.ErrOutOfStock), errors.Is(err, shop.ErrConflict), errors.Is(err, shop.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, shop.ErrInvalidCheckout), errors.Is(err, shop.ErrInvalidProduct):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg,
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
		s.renderError(w, r, status, "Something went wrong. Please try again.")
		return
	}
	s.renderError(w, r, status, userMessage(err))
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, shop.ErrNotFound):
		return "We couldn't find that."
	case errors.Is(err, shop.ErrOutOfStock):
		return "Sorry, there isn't enough stock for that."
	case errors.Is(err, shop.ErrEmptyCart):
		return "Your cart is empty."
	default:
		return "That request couldn't be completed."
	}
}

func (s *Server) catalogPage(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Shop.Catalog(r.Context())
	if err != nil {
		s.fail(w, r, err, "list catalog")
		return
	}
	s.render(w, r, http.StatusOK, "catalog", pageData{Title: "Catalog", Products: products})
}

func (s *Server) productPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Shop.Product(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err, "get product")
		return
	}
	s.render(w, r, http.StatusOK, "product", pageData{Title: p.Name, Product: p, Currency: p.Currency})
}

func (s *Server) cartPage(w http.ResponseWriter, r *http.Request) {
	cart, err := s.deps.Shop.Cart(r.Context(), sessionID(r.Context()))
	if err != nil {
		s.fail(w, r, err, "get cart")
		return
	}
	s.render(w, r, http.StatusOK, "cart", pageData{Title: "Cart", Cart: cart, CartCount: cart.ItemCount()})
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	qty := 1
	if raw := strings.TrimSpace(r.PostForm.Get("quantity")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.renderError(w, r, http.StatusBadRequest, "Quantity must be a number.")
			return
		}
		qty = n
	}
	productID := strings.TrimSpace(r.PostForm.Get("product_id"))
	if productID == "" {
		s.renderError(w, r, http.StatusBadRequest, "Choose a product first.")
		return
	}
	if _, err := s.deps.Shop.AddToCart(r.Context(), sessionID(r.Context()), productID, qty); err != nil {
		s.fail(w, r, err, "add to cart")
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Shop.RemoveFromCart(r.Context(), sessionID(r.Context()), chi.URLParam(r, "product_id")); err != nil {
		s.fail(w, r, err, "remove from cart")
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Server) checkoutPage(w http.ResponseWriter, r *http.Request) {
	cart, err := s.deps.Shop.Cart(r.Context(), sessionID(r.Context()))
	if err != nil {
		s.fail(w, r, err, "get cart")
		return
	}
	s.render(w, r, http.StatusOK, "checkout", pageData{Title: "Checkout", Cart: cart, CartCount: cart.ItemCount()})
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	sid := sessionID(r.Context())
	req := shop.CheckoutRequest{
		Email:      r.PostForm.Get("email"),
		Name:       r.PostForm.Get("name"),
		Line1:      r.PostForm.Get("line1"),
		City:       r.PostForm.Get("city"),
		PostalCode: r.PostForm.Get("postal_code"),
		Country:    r.PostForm.Get("country"),
	}
	order, err := s.deps.Shop.Checkout(r.Context(), sid, req)
	var verr *shop.ValidationError
	switch {
	case errors.As(err, &verr):
		cart, cerr := s.deps.Shop.Cart(r.Context(), sid)
		if cerr != nil {
			s.fail(w, r, cerr, "get cart")
			return
		}
		s.render(w, r, http.StatusUnprocessableEntity, "checkout", pageData{
			Title:     "Checkout",
			Message:   "Please correct the highlighted fields.",
			Cart:      cart,
			CartCount: cart.ItemCount(),
			Form:      req,
			Errors:    verr.Fields,
		})
		return
	case err != nil:
		s.fail(w, r, err, "checkout")
		return
	}
	s.logger.Info("order placed",
		zap.String("request_id", requestID(r.Context())),
		zap.String("order_id", order.ID),
		zap.Int64("total_cents", order.TotalCents),
	)
	http.Redirect(w, r, "/account?placed="+url.QueryEscape(order.ID), http.StatusSeeOther)
}

func (s *Server) accountPage(w http.ResponseWriter, r *http.Request) {
	orders, err := s.deps.Shop.Orders(r.Context(), sessionID(r.Context()))
	if err != nil {
		s.fail(w, r, err, "list orders")
		return
	}
	placed := r.URL.Query().Get("placed")
	found := false
	for _, o := range orders {
		if o.ID == placed {
			found = true
			break
		}
	}
	if !found {
		placed = ""
	}
	s.render(w, r, http.StatusOK, "account", pageData{Title: "Your orders", Orders: orders, Placed: placed})
}
