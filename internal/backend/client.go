// Package backend is the HTTP client for the remote order and payment
// service. Calls are single attempts; retrying is up to the caller.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joao-fontenele/checkoutflow/internal/money"
)

const authHeader = "X-Auth-User"

const PaymentStatusCompleted = "completed"

var ErrMissingID = errors.New("backend response has no id")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.Code)
}

type Payment struct {
	ID        string      `json:"id"`
	Amount    money.Money `json:"amount"`
	UserID    string      `json:"user_id"`
	CreatedAt time.Time   `json:"created_at"`
	Status    string      `json:"status"`
	Type      string      `json:"type"`
	OrderID   string      `json:"order_id"`
}

func (p Payment) Completed() bool {
	return p.Status == PaymentStatusCompleted
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient accepts a host ("backend.example.com") or a full base URL. A bare
// host is reached over https.
func NewClient(server string, client *http.Client) *Client {
	base := strings.TrimRight(server, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &Client{baseURL: base, httpClient: client}
}

type createOrderRequest struct {
	Total money.Money `json:"total"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// CreateOrder registers an order for amount and returns the backend order id.
func (c *Client) CreateOrder(ctx context.Context, token string, amount money.Money) (string, error) {
	var resp createOrderResponse
	if err := c.post(ctx, "create order", "/orders/", token, createOrderRequest{Total: amount}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create order: %w", ErrMissingID)
	}
	return resp.ID, nil
}

type paymentRequest struct {
	OrderID string      `json:"order_id"`
	Amount  money.Money `json:"amount"`
}

// TriggerPayment charges amount against the backend order.
func (c *Client) TriggerPayment(ctx context.Context, token, orderID string, amount money.Money) (Payment, error) {
	var payment Payment
	if err := c.post(ctx, "trigger payment", "/payments/", token, paymentRequest{OrderID: orderID, Amount: amount}, &payment); err != nil {
		return Payment{}, err
	}
	if payment.ID == "" {
		return Payment{}, fmt.Errorf("trigger payment: %w", ErrMissingID)
	}
	return payment, nil
}

func (c *Client) post(ctx context.Context, op, path, token string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
