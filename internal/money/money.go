// Package money provides an exact currency amount with a fixed scale of two
// fractional digits.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Money value is held at.
const Scale = 2

// Money is an exact decimal amount rounded to Scale. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

var Zero = Money{}

func New(d decimal.Decimal) Money {
	return Money{d: d.Round(Scale)}
}

func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return New(d), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

func (m Money) Times(n int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(n)))}
}

// MulRate multiplies by a unitless fraction such as a VAT rate and rounds the
// product back to Scale.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return New(m.d.Mul(rate))
}

func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON writes the amount as a bare JSON number, e.g. 21.80.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(Scale)), nil
}

// UnmarshalJSON accepts both a JSON number and a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = New(d)
	return nil
}

func (m *Money) Scan(value any) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	*m = New(d)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.d.StringFixed(Scale), nil
}
