// Package api exposes the basket and checkout operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkoutflow/internal/auth"
	"github.com/joao-fontenele/checkoutflow/internal/basket"
	"github.com/joao-fontenele/checkoutflow/internal/domain"
	"github.com/joao-fontenele/checkoutflow/internal/store"
	"github.com/joao-fontenele/checkoutflow/internal/telemetry"
)

const defaultListLimit = 50

type Store interface {
	EnsureUser(ctx context.Context, id string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	FindProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error)
	StatusHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error)
}

type Basket interface {
	AddToBasket(ctx context.Context, user *domain.User, product domain.Product) (basket.Result, error)
}

type Checkout interface {
	OrderAndPay(ctx context.Context, token string, user *domain.User) error
}

type Authenticator interface {
	Subject(header string) (string, error)
}

type Handler struct {
	store    Store
	basket   Basket
	checkout Checkout
	auth     Authenticator
	logger   *slog.Logger
}

func NewHandler(store Store, basket Basket, checkout Checkout, authenticator Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		basket:   basket,
		checkout: checkout,
		auth:     authenticator,
		logger:   logger,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /product/{id}", telemetry.WithHTTPRoute(h.HandleAddToBasket))
	mux.HandleFunc("POST /orderAndPay", telemetry.WithHTTPRoute(h.HandleOrderAndPay))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(h.HandleListOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(h.HandleGetOrder))
	mux.HandleFunc("GET /orders/{id}/history", telemetry.WithHTTPRoute(h.HandleOrderHistory))
}

func (h *Handler) HandleAddToBasket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	productID := r.PathValue("id")
	if _, err := uuid.Parse(productID); err != nil {
		h.writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	user, err := h.store.EnsureUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load user", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	product, err := h.store.FindProductByID(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to load product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	result, err := h.basket.AddToBasket(r.Context(), user, *product)
	if err != nil {
		h.logger.Error("failed to add product to basket", "error", err, "user_id", userID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleOrderAndPay(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	user, err := h.store.FindUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load user", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		h.writeError(w, http.StatusNotFound, "No such user found")
		return
	}

	err = h.checkout.OrderAndPay(r.Context(), r.Header.Get(auth.Header), user)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, messageResponse{Message: "Order placed successfully"})
	case errors.Is(err, domain.ErrEmptyBasket):
		h.writeError(w, http.StatusBadRequest, "Basket is empty")
	case errors.Is(err, domain.ErrOrderInProgress):
		h.writeError(w, http.StatusConflict, "Order already in progress")
	case errors.Is(err, domain.ErrPaymentFailed):
		h.writeError(w, http.StatusInternalServerError, "Payment failed")
	default:
		h.logger.Error("order and pay failed", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	filter := store.OrderFilter{UserID: userID, Limit: defaultListLimit}

	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			status := domain.OrderStatus(strings.TrimSpace(s))
			if !status.Valid() {
				h.writeError(w, http.StatusBadRequest, "invalid status: "+s)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || limit == 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	orders, err := h.store.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleOrderHistory(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	history, err := h.store.StatusHistory(r.Context(), order.ID)
	if err != nil {
		h.logger.Error("failed to load status history", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

// ownedOrder loads the order named in the path. Orders of other users are
// reported as not found.
func (h *Handler) ownedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return nil, false
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusNotFound, "Order not found")
		return nil, false
	}

	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if order == nil || order.UserID != userID {
		h.writeError(w, http.StatusNotFound, "Order not found")
		return nil, false
	}

	return order, true
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.auth.Subject(r.Header.Get(auth.Header))
	if err != nil {
		h.logger.Debug("unauthorized request", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, messageResponse{Message: message})
}
