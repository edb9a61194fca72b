package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/shop"
)

const (
	maxJSONBytes  = 1 << 20
	maxImageBytes = 10 << 20
)

type statusUpdateRequest struct {
	Status shop.OrderStatus `json:"status"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (s *Server) adminPage(w http.ResponseWriter, r *http.Request) {
	orders, err := s.deps.Shop.AllOrders(r.Context())
	if err != nil {
		s.fail(w, r, err, "list orders")
		return
	}
	products, err := s.deps.Shop.Catalog(r.Context())
	if err != nil {
		s.fail(w, r, err, "list catalog")
		return
	}
	s.render(w, r, http.StatusOK, "admin", pageData{Title: "Admin", Orders: orders, Products: products})
}

func (s *Server) adminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Shop.Catalog(r.Context())
	if err != nil {
		s.failJSON(w, r, err, "list catalog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in shop.NewProduct
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := s.deps.Shop.CreateProduct(r.Context(), in)
	if err != nil {
		s.failJSON(w, r, err, "create product")
		return
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("slug", p.Slug))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) adminUploadImage(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImageBytes)
	p, err := s.deps.Shop.UploadProductImage(r.Context(), chi.URLParam(r, "slug"), r.Header.Get("Content-Type"), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.failJSON(w, r, err, "upload image")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.deps.Shop.AllOrders(r.Context())
	if err != nil {
		s.failJSON(w, r, err, "list orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	order, err := s.deps.Shop.UpdateOrderStatus(r.Context(), chi.URLParam(r, "order_id"), req.Status)
	if err != nil {
		s.failJSON(w, r, err, "update order status")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) failJSON(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var verr *shop.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: verr.Kind.Error(), Fields: verr.Fields})
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("request_id", requestID(r.Context())), zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}
