// Package basket maintains a user's basket lines: one line per distinct
// product with a count.
package basket

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/joao-fontenele/checkoutflow/internal/domain"
	"github.com/joao-fontenele/checkoutflow/internal/money"
)

// Store persists basket state. SaveUser writes the user and every basket line
// in one transaction and assigns ids to new lines.
type Store interface {
	SaveUser(ctx context.Context, user *domain.User) error
	DeleteBasketItems(ctx context.Context, userID string) error
}

type Ledger struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewLedger(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// AddItem increments the line for product or appends a new line with count 1,
// then persists the user with all basket lines. The user is left unchanged
// when persisting fails.
func (l *Ledger) AddItem(ctx context.Context, user *domain.User, product domain.Product) (*domain.BasketItem, error) {
	now := l.now()
	prevItems, prevLastSeen := slices.Clone(user.BasketItems), user.LastSeen

	idx := user.FindBasketItem(product.ID)
	if idx >= 0 {
		user.BasketItems[idx].Count++
		user.BasketItems[idx].Product = product
	} else {
		user.BasketItems = append(user.BasketItems, domain.NewBasketItem(user.ID, product, now))
		idx = len(user.BasketItems) - 1
	}
	user.LastSeen = now

	if err := l.store.SaveUser(ctx, user); err != nil {
		user.BasketItems, user.LastSeen = prevItems, prevLastSeen
		return nil, fmt.Errorf("save basket: %w", err)
	}

	return &user.BasketItems[idx], nil
}

// ClearBasket deletes every basket line of the user.
func (l *Ledger) ClearBasket(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := l.store.DeleteBasketItems(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("clear basket: %w", err)
	}

	user.BasketItems = []domain.BasketItem{}
	return user, nil
}

type Row struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	Count int         `json:"count"`
	Price money.Money `json:"price"`
}

// Result describes the line touched by AddToBasket and the new basket value.
type Result struct {
	Row   Row         `json:"row"`
	Total money.Money `json:"total"`
}

// AddToBasket adds one unit of product and reports the touched line by its
// position in the basket, with the unit price before VAT.
func (l *Ledger) AddToBasket(ctx context.Context, user *domain.User, product domain.Product) (Result, error) {
	if _, err := l.AddItem(ctx, user, product); err != nil {
		return Result{}, err
	}

	idx := user.FindBasketItem(product.ID)
	item := user.BasketItems[idx]

	l.logger.Info("product added to basket",
		"user_id", user.ID,
		"product_id", product.ID,
		"count", item.Count,
	)

	return Result{
		Row: Row{
			ID:    idx,
			Name:  item.Product.Name,
			Count: item.Count,
			Price: item.Product.PriceUnit,
		},
		Total: user.BasketValue(),
	}, nil
}
