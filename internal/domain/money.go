package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in a single currency. An empty Currency means the
// currency is not known yet.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

// NewMoney parses a decimal amount. Invalid input yields an error.
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: strings.ToUpper(strings.TrimSpace(currency))}, nil
}

// MustMoney is NewMoney that panics on malformed input. For literals and tests.
func MustMoney(amount, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Mul returns the amount multiplied by qty in the same currency.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// String formats as "10.00 USD", or "10.00" when the currency is unset.
func (m Money) String() string {
	return m.Format("")
}

// Format renders the amount with two decimals, using fallbackCurrency when
// the currency is unset.
func (m Money) Format(fallbackCurrency string) string {
	cur := m.Currency
	if cur == "" {
		cur = fallbackCurrency
	}
	amount := m.Amount.StringFixed(2)
	if cur == "" {
		return amount
	}
	return amount + " " + cur
}
