// Package orders runs the order placement and payment workflow: the basket is
// snapshotted into a local order, relayed to the backend, then paid, with the
// local status persisted after every phase.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/checkoutflow/internal/backend"
	"github.com/joao-fontenele/checkoutflow/internal/domain"
	"github.com/joao-fontenele/checkoutflow/internal/money"
	"github.com/joao-fontenele/checkoutflow/internal/retry"
)

var tracer = otel.Tracer("orders")

const (
	callCreateOrder    = "createOrder"
	callTriggerPayment = "triggerPayment"
)

type Store interface {
	SaveOrder(ctx context.Context, order *domain.Order) error
	UpdateOrderExternalID(ctx context.Context, id, externalID string) error
	UpdateOrderStatus(ctx context.Context, change domain.StatusChange) error
}

type Basket interface {
	ClearBasket(ctx context.Context, user *domain.User) (*domain.User, error)
}

type Backend interface {
	CreateOrder(ctx context.Context, token string, amount money.Money) (string, error)
	TriggerPayment(ctx context.Context, token, orderID string, amount money.Money) (backend.Payment, error)
}

type Publisher interface {
	PublishStatusChange(ctx context.Context, change domain.StatusChange) error
}

type Workflow struct {
	store     Store
	basket    Basket
	backend   Backend
	publisher Publisher
	policy    retry.Policy
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	retries  metric.Int64Counter
	outcomes metric.Int64Counter
}

// NewWorkflow wires the workflow. publisher may be nil, in which case status
// changes are only persisted.
func NewWorkflow(store Store, basket Basket, client Backend, publisher Publisher, policy retry.Policy, logger *slog.Logger) *Workflow {
	meter := otel.Meter("orders")

	retries, err := meter.Int64Counter("checkout.external_call.retries",
		metric.WithDescription("Failed external call attempts that were retried"),
	)
	if err != nil {
		logger.Error("failed to create retries counter", "error", err)
	}

	outcomes, err := meter.Int64Counter("checkout.orders",
		metric.WithDescription("Order workflow runs by outcome"),
	)
	if err != nil {
		logger.Error("failed to create orders counter", "error", err)
	}

	return &Workflow{
		store:     store,
		basket:    basket,
		backend:   client,
		publisher: publisher,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		inFlight:  make(map[string]struct{}),
		retries:   retries,
		outcomes:  outcomes,
	}
}

// OrderAndPay places an order for the user's basket and pays it.
//
// The order is persisted as Pending and the basket cleared before any
// external call. Retry exhaustion on either backend call returns the last
// call error and leaves the order in its last persisted status. A payment
// that comes back with any status other than completed marks the order
// Failed and returns domain.ErrPaymentFailed.
//
// Cancellation of ctx is ignored once the workflow starts: an order created
// remotely must still get its external id and status recorded locally.
func (w *Workflow) OrderAndPay(ctx context.Context, token string, user *domain.User) (err error) {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "orders.OrderAndPay",
		trace.WithAttributes(attribute.String("user.id", user.ID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(user.BasketItems) == 0 {
		return domain.ErrEmptyBasket
	}

	if !w.lock(user.ID) {
		return domain.ErrOrderInProgress
	}
	defer w.unlock(user.ID)

	order := domain.NewOrder(user, w.now())
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := w.store.SaveOrder(ctx, order); err != nil {
		w.countOutcome(ctx, "persistence_error")
		return fmt.Errorf("save order: %w", err)
	}
	w.publish(ctx, domain.StatusChange{
		OrderID:         order.ID,
		ExternalOrderID: order.OrderID,
		UserID:          order.UserID,
		To:              domain.OrderStatusPending,
		Amount:          order.Amount,
		Timestamp:       order.CreatedAt,
	})

	w.logger.Info("order created", "order_id", order.ID, "user_id", user.ID, "amount", order.Amount.String())

	if _, err := w.basket.ClearBasket(ctx, user); err != nil {
		w.countOutcome(ctx, "persistence_error")
		return err
	}

	externalID, err := w.createOrder(ctx, token, order)
	if err != nil {
		w.countOutcome(ctx, "create_order_error")
		return fmt.Errorf("create order %s: %w", order.ID, err)
	}

	if err := w.store.UpdateOrderExternalID(ctx, order.ID, externalID); err != nil {
		w.countOutcome(ctx, "persistence_error")
		return fmt.Errorf("update external order id: %w", err)
	}
	order.OrderID = externalID

	if err := w.transition(ctx, order, domain.OrderStatusOrdered); err != nil {
		w.countOutcome(ctx, "persistence_error")
		return err
	}

	payment, err := w.triggerPayment(ctx, token, order)
	if err != nil {
		w.countOutcome(ctx, "payment_error")
		return fmt.Errorf("trigger payment for order %s: %w", order.ID, err)
	}

	if !payment.Completed() {
		if err := w.transition(ctx, order, domain.OrderStatusFailed); err != nil {
			w.countOutcome(ctx, "persistence_error")
			return err
		}
		w.logger.Warn("payment not completed",
			"order_id", order.ID,
			"user_id", user.ID,
			"payment_id", payment.ID,
			"payment_status", payment.Status,
		)
		w.countOutcome(ctx, "payment_failed")
		return domain.ErrPaymentFailed
	}

	if err := w.transition(ctx, order, domain.OrderStatusPaid); err != nil {
		w.countOutcome(ctx, "persistence_error")
		return err
	}

	w.logger.Info("order paid", "order_id", order.ID, "user_id", user.ID, "payment_id", payment.ID)
	w.countOutcome(ctx, "paid")
	return nil
}

func (w *Workflow) createOrder(ctx context.Context, token string, order *domain.Order) (string, error) {
	ctx, span := tracer.Start(ctx, "orders.createOrder")
	defer span.End()

	id, err := retry.Do(ctx, w.policy, func(ctx context.Context) (string, error) {
		return w.backend.CreateOrder(ctx, token, order.Amount)
	}, w.observeRetry(ctx, order.UserID, callCreateOrder))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("external call gave up", "user_id", order.UserID, "order_id", order.ID, "call", callCreateOrder, "error", err)
		return "", err
	}

	span.SetAttributes(attribute.String("order.external_id", id))
	return id, nil
}

func (w *Workflow) triggerPayment(ctx context.Context, token string, order *domain.Order) (backend.Payment, error) {
	ctx, span := tracer.Start(ctx, "orders.triggerPayment")
	defer span.End()

	payment, err := retry.Do(ctx, w.policy, func(ctx context.Context) (backend.Payment, error) {
		return w.backend.TriggerPayment(ctx, token, order.OrderID, order.Amount)
	}, w.observeRetry(ctx, order.UserID, callTriggerPayment))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("external call gave up", "user_id", order.UserID, "order_id", order.ID, "call", callTriggerPayment, "error", err)
		return backend.Payment{}, err
	}

	span.SetAttributes(attribute.String("payment.status", payment.Status))
	return payment, nil
}

func (w *Workflow) observeRetry(ctx context.Context, userID, call string) retry.Observer {
	return func(err error, attempt int) {
		w.logger.Warn("external call failed, retrying",
			"user_id", userID,
			"call", call,
			"attempt", attempt,
			"error", err,
		)
		if w.retries != nil {
			w.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("call", call)))
		}
	}
}

// transition persists the status change before the in-memory order moves on.
func (w *Workflow) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus) error {
	next := *order
	change, err := next.Transition(to, w.now())
	if err != nil {
		return err
	}

	if err := w.store.UpdateOrderStatus(ctx, change); err != nil {
		return fmt.Errorf("update order status to %s: %w", to, err)
	}
	order.Status = next.Status

	w.logger.Info("order status changed", "order_id", order.ID, "from", change.From, "to", change.To)
	w.publish(ctx, change)
	return nil
}

func (w *Workflow) publish(ctx context.Context, change domain.StatusChange) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishStatusChange(ctx, change); err != nil {
		w.logger.Error("failed to publish status change", "error", err, "order_id", change.OrderID, "status", change.To)
	}
}

func (w *Workflow) countOutcome(ctx context.Context, outcome string) {
	if w.outcomes != nil {
		w.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (w *Workflow) lock(userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, busy := w.inFlight[userID]; busy {
		return false
	}
	w.inFlight[userID] = struct{}{}
	return true
}

func (w *Workflow) unlock(userID string) {
	w.mu.Lock()
	delete(w.inFlight, userID)
	w.mu.Unlock()
}
