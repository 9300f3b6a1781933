// Package notify turns terminal order status events into customer emails.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/checkoutflow/internal/domain"
)

type Handler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle consumes one order.status_changed payload. Only Paid and Failed
// produce an email; every other status is acknowledged and skipped.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var change domain.StatusChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return fmt.Errorf("unmarshal status change: %w", err)
	}

	var msg emailRequest
	switch change.To {
	case domain.OrderStatusPaid:
		msg = confirmationEmail(change)
	case domain.OrderStatusFailed:
		msg = paymentFailedEmail(change)
	default:
		h.logger.Debug("status change ignored", "order_id", change.OrderID, "status", change.To)
		return nil
	}

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send email", "error", err, "order_id", change.OrderID, "status", change.To)
		return fmt.Errorf("send %s email for order %s: %w", change.To, change.OrderID, err)
	}

	h.logger.Info("customer notified", "order_id", change.OrderID, "user_id", change.UserID, "status", change.To)
	return nil
}

func confirmationEmail(change domain.StatusChange) emailRequest {
	return emailRequest{
		To:      change.UserID + "@example.com",
		Subject: "Order Confirmation: " + change.ExternalOrderID,
		Body:    fmt.Sprintf("Your order %s has been paid. Amount charged: %s.", change.ExternalOrderID, change.Amount),
	}
}

func paymentFailedEmail(change domain.StatusChange) emailRequest {
	return emailRequest{
		To:      change.UserID + "@example.com",
		Subject: "Payment Failed: " + change.ExternalOrderID,
		Body:    fmt.Sprintf("The payment of %s for order %s did not complete. Your basket has been cleared; please place the order again.", change.Amount, change.ExternalOrderID),
	}
}

func (h *Handler) sendEmail(ctx context.Context, msg emailRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
