// Package money holds currency-tagged amounts in minor units.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter ISO code")
)

// zeroDecimal lists currencies without a minor unit.
var zeroDecimal = map[string]struct{}{
	"JPY": {},
	"KRW": {},
	"VND": {},
}

// Money is an amount in the currency's minor unit (cents for USD).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

func Zero(currency string) Money {
	return New(0, currency)
}

func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func ValidateCurrency(currency string) error {
	c := NormalizeCurrency(currency)
	if len(c) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	if _, ok := zeroDecimal[NormalizeCurrency(currency)]; ok {
		return 0
	}
	return 2
}

// FromDecimal converts a major-unit decimal, rounding half away from zero.
func FromDecimal(amount decimal.Decimal, currency string) Money {
	exp := Exponent(currency)
	minor := amount.Round(exp).Shift(exp)
	return New(minor.IntPart(), currency)
}

// Parse reads a major-unit string such as "12.50".
func Parse(raw string, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if d.Exponent() < -Exponent(currency) {
		return Money{}, fmt.Errorf("amount %q has more than %d decimal places", raw, Exponent(currency))
	}
	return FromDecimal(d, currency), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -Exponent(m.Currency))
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(Exponent(m.Currency)), m.Currency)
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) Mul(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// Min returns the smaller of m and other; currencies must match.
func (m Money) Min(other Money) Money {
	if other.Amount < m.Amount {
		return Money{Amount: other.Amount, Currency: m.Currency}
	}
	return m
}

func (m Money) sameCurrency(other Money) error {
	// a zero value with no currency adopts the other side
	if m.Currency == "" || other.Currency == "" || m.Currency == other.Currency {
		return nil
	}
	return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
}

// MarshalJSON emits the minor amount plus a display string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Formatted string `json:"formatted"`
	}{m.Amount, m.Currency, m.Decimal().StringFixed(Exponent(m.Currency))})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = NormalizeCurrency(raw.Currency)
	return nil
}
