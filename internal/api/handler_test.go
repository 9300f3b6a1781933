package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/checkoutflow/internal/auth"
	"github.com/joao-fontenele/checkoutflow/internal/basket"
	"github.com/joao-fontenele/checkoutflow/internal/domain"
	"github.com/joao-fontenele/checkoutflow/internal/money"
	"github.com/joao-fontenele/checkoutflow/internal/store"
)

const burgerID = "8a88aee8-dbab-46a3-b334-c82b0d751540"

type fakeStore struct {
	users      map[string]*domain.User
	products   map[string]*domain.Product
	orders     map[string]*domain.Order
	lastFilter store.OrderFilter
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*domain.User),
		products: map[string]*domain.Product{
			burgerID: {ID: burgerID, Name: "Burger", VATRate: decimal.RequireFromString("0.09"), PriceUnit: money.MustParse("10.00")},
		},
		orders: make(map[string]*domain.Order),
	}
}

func (s *fakeStore) EnsureUser(_ context.Context, id string) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := s.users[id]; !ok {
		s.users[id] = domain.NewUser(id, time.Now())
	}
	return s.users[id], nil
}

func (s *fakeStore) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

func (s *fakeStore) FindProductByID(_ context.Context, id string) (*domain.Product, error) {
	return s.products[id], nil
}

func (s *fakeStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return s.orders[id], nil
}

func (s *fakeStore) ListOrders(_ context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.lastFilter = filter
	out := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == filter.UserID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) StatusHistory(_ context.Context, orderID string) ([]domain.StatusChange, error) {
	return []domain.StatusChange{
		{OrderID: orderID, To: domain.OrderStatusPending},
		{OrderID: orderID, From: domain.OrderStatusPending, To: domain.OrderStatusOrdered},
	}, nil
}

type fakeBasket struct {
	added []string
}

func (b *fakeBasket) AddToBasket(_ context.Context, user *domain.User, product domain.Product) (basket.Result, error) {
	b.added = append(b.added, user.ID+":"+product.ID)
	return basket.Result{
		Row:   basket.Row{ID: 0, Name: product.Name, Count: 1, Price: product.PriceUnit},
		Total: product.TotalPrice(),
	}, nil
}

type fakeCheckout struct {
	err      error
	gotToken string
}

func (c *fakeCheckout) OrderAndPay(_ context.Context, token string, _ *domain.User) error {
	c.gotToken = token
	return c.err
}

func tokenFor(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func newTestServer(s *fakeStore, b *fakeBasket, c *fakeCheckout) http.Handler {
	handler := NewHandler(s, b, c, auth.NewResolver(""), slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(auth.Header, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body.Message
}

func TestHandler_HandleAddToBasket(t *testing.T) {
	t.Run("adds product and creates user lazily", func(t *testing.T) {
		s := newFakeStore()
		b := &fakeBasket{}
		srv := newTestServer(s, b, &fakeCheckout{})

		rec := do(t, srv, http.MethodPost, "/product/"+burgerID, tokenFor(t, "user-1"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var result basket.Result
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if result.Row.Name != "Burger" || result.Total.String() != "10.90" {
			t.Fatalf("unexpected result: %+v", result)
		}
		if _, ok := s.users["user-1"]; !ok {
			t.Fatal("expected user to be created")
		}
		if len(b.added) != 1 || b.added[0] != "user-1:"+burgerID {
			t.Fatalf("unexpected basket calls: %v", b.added)
		}
	})

	t.Run("unauthorized without token", func(t *testing.T) {
		rec := do(t, newTestServer(newFakeStore(), &fakeBasket{}, &fakeCheckout{}), http.MethodPost, "/product/"+burgerID, "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
		if msg := decodeMessage(t, rec); msg != "Unauthorized" {
			t.Fatalf("unexpected message %q", msg)
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		srv := newTestServer(newFakeStore(), &fakeBasket{}, &fakeCheckout{})

		for _, id := range []string{"b1f1b5a2-0a43-4b8e-9a43-1a2b3c4d5e6f", "not-a-uuid"} {
			rec := do(t, srv, http.MethodPost, "/product/"+id, tokenFor(t, "user-1"))
			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected status 404 for %s, got %d", id, rec.Code)
			}
			if msg := decodeMessage(t, rec); msg != "Product not found" {
				t.Fatalf("unexpected message %q", msg)
			}
		}
	})

	t.Run("store failure", func(t *testing.T) {
		s := newFakeStore()
		s.err = errors.New("connection refused")

		rec := do(t, newTestServer(s, &fakeBasket{}, &fakeCheckout{}), http.MethodPost, "/product/"+burgerID, tokenFor(t, "user-1"))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleOrderAndPay(t *testing.T) {
	tests := []struct {
		name        string
		knownUser   bool
		checkoutErr error
		wantStatus  int
		wantMessage string
	}{
		{name: "success", knownUser: true, wantStatus: http.StatusOK, wantMessage: "Order placed successfully"},
		{name: "unknown user", wantStatus: http.StatusNotFound, wantMessage: "No such user found"},
		{name: "empty basket", knownUser: true, checkoutErr: domain.ErrEmptyBasket, wantStatus: http.StatusBadRequest, wantMessage: "Basket is empty"},
		{name: "in progress", knownUser: true, checkoutErr: domain.ErrOrderInProgress, wantStatus: http.StatusConflict, wantMessage: "Order already in progress"},
		{name: "payment failed", knownUser: true, checkoutErr: domain.ErrPaymentFailed, wantStatus: http.StatusInternalServerError, wantMessage: "Payment failed"},
		{
			name:        "backend unreachable",
			knownUser:   true,
			checkoutErr: fmt.Errorf("create order o-1: %w", errors.New("connection refused")),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "create order o-1: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStore()
			if tt.knownUser {
				s.users["user-1"] = domain.NewUser("user-1", time.Now())
			}
			checkout := &fakeCheckout{err: tt.checkoutErr}
			token := tokenFor(t, "user-1")

			rec := do(t, newTestServer(s, &fakeBasket{}, checkout), http.MethodPost, "/orderAndPay", token)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if msg := decodeMessage(t, rec); msg != tt.wantMessage {
				t.Fatalf("expected message %q, got %q", tt.wantMessage, msg)
			}
			if tt.knownUser && checkout.gotToken != token {
				t.Fatal("expected raw token forwarded to the workflow")
			}
		})
	}

	t.Run("unauthorized", func(t *testing.T) {
		rec := do(t, newTestServer(newFakeStore(), &fakeBasket{}, &fakeCheckout{}), http.MethodPost, "/orderAndPay", "garbage")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
	})
}

func TestHandler_Orders(t *testing.T) {
	s := newFakeStore()
	mine := &domain.Order{ID: "0b0f7c1e-5a3e-4a8f-9d7c-0e1f2a3b4c5d", UserID: "user-1", Status: domain.OrderStatusPaid, Amount: money.MustParse("21.80")}
	theirs := &domain.Order{ID: "1c1f7c1e-5a3e-4a8f-9d7c-0e1f2a3b4c5d", UserID: "user-2", Status: domain.OrderStatusPaid}
	s.orders[mine.ID] = mine
	s.orders[theirs.ID] = theirs
	srv := newTestServer(s, &fakeBasket{}, &fakeCheckout{})
	token := tokenFor(t, "user-1")

	t.Run("lists caller orders with status filter", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/orders?status=Paid,Failed&limit=5", token)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var orders []domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&orders); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(orders) != 1 || orders[0].ID != mine.ID {
			t.Fatalf("unexpected orders: %+v", orders)
		}
		if s.lastFilter.UserID != "user-1" || len(s.lastFilter.Statuses) != 2 || s.lastFilter.Limit != 5 {
			t.Fatalf("unexpected filter: %+v", s.lastFilter)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/orders?status=Shipped", token)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("gets own order", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/orders/"+mine.ID, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var order domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if order.Amount.String() != "21.80" {
			t.Fatalf("expected amount 21.80, got %s", order.Amount)
		}
	})

	t.Run("hides other users orders", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/orders/"+theirs.ID, token)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("history", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/orders/"+mine.ID+"/history", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var history []domain.StatusChange
		if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(history) != 2 || history[1].To != domain.OrderStatusOrdered {
			t.Fatalf("unexpected history: %+v", history)
		}
	})
}
