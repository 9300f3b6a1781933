package domain

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/checkoutflow/internal/money"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	VATRate   decimal.Decimal `json:"vat_rate"`
	PriceUnit money.Money     `json:"price_unit"`
}

// TotalPrice is the unit price including VAT.
func (p Product) TotalPrice() money.Money {
	return p.PriceUnit.Add(p.PriceUnit.MulRate(p.VATRate))
}
