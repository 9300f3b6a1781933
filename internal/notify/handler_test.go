package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joao-fontenele/checkoutflow/internal/domain"
	"github.com/joao-fontenele/checkoutflow/internal/money"
)

func payload(t *testing.T, to domain.OrderStatus) []byte {
	t.Helper()
	data, err := json.Marshal(domain.StatusChange{
		OrderID:         "o-1",
		ExternalOrderID: "ext-1",
		UserID:          "user-1",
		From:            domain.OrderStatusOrdered,
		To:              to,
		Amount:          money.MustParse("21.80"),
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return data
}

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.OrderStatus
		wantEmail   bool
		wantSubject string
	}{
		{name: "paid sends confirmation", status: domain.OrderStatusPaid, wantEmail: true, wantSubject: "Order Confirmation: ext-1"},
		{name: "failed sends payment failure", status: domain.OrderStatusFailed, wantEmail: true, wantSubject: "Payment Failed: ext-1"},
		{name: "ordered is ignored", status: domain.OrderStatusOrdered},
		{name: "pending is ignored", status: domain.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []emailRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/send" {
					t.Errorf("expected /send, got %s", r.URL.Path)
				}
				var req emailRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				got = append(got, req)
				_, _ = w.Write([]byte(`{"status":"sent"}`))
			}))
			defer server.Close()

			handler := NewHandler(server.URL, server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))

			if err := handler.Handle(context.Background(), payload(t, tt.status)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !tt.wantEmail {
				if len(got) != 0 {
					t.Fatalf("expected no email, got %+v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 email, got %d", len(got))
			}
			if got[0].To != "user-1@example.com" || got[0].Subject != tt.wantSubject {
				t.Fatalf("unexpected email: %+v", got[0])
			}
			if !strings.Contains(got[0].Body, "21.80") {
				t.Fatalf("expected amount in body, got %q", got[0].Body)
			}
		})
	}
}

func TestHandler_Handle_Errors(t *testing.T) {
	t.Run("invalid payload", func(t *testing.T) {
		handler := NewHandler("http://unused", http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err := handler.Handle(context.Background(), []byte("{")); err == nil {
			t.Fatal("expected error for invalid payload")
		}
	})

	t.Run("email service failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		handler := NewHandler(server.URL, server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err := handler.Handle(context.Background(), payload(t, domain.OrderStatusPaid)); err == nil {
			t.Fatal("expected error when email service fails")
		}
	})
}
