package domain

import (
	"time"

	"github.com/joao-fontenele/checkoutflow/internal/money"
)

// BasketItem is one basket line per distinct product. Product is filled in by
// the store through a join on ProductID.
type BasketItem struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	Product   Product   `json:"product"`
}

func NewBasketItem(userID string, product Product, now time.Time) BasketItem {
	return BasketItem{
		UserID:    userID,
		ProductID: product.ID,
		Count:     1,
		CreatedAt: now,
		Product:   product,
	}
}

type User struct {
	ID          string       `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	LastSeen    time.Time    `json:"last_seen"`
	BasketItems []BasketItem `json:"basket_items"`
}

func NewUser(id string, now time.Time) *User {
	return &User{
		ID:          id,
		CreatedAt:   now,
		LastSeen:    now,
		BasketItems: []BasketItem{},
	}
}

// BasketValue sums count * total price over every basket line.
func (u *User) BasketValue() money.Money {
	total := money.Zero
	for _, item := range u.BasketItems {
		total = total.Add(item.Product.TotalPrice().Times(item.Count))
	}
	return total
}

// FindBasketItem returns the index of the line holding productID, or -1.
func (u *User) FindBasketItem(productID string) int {
	for i, item := range u.BasketItems {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
