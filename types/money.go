// Package types provides common value types used across Tally.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest unit of its currency (cents, paise, yen).
// Stored amounts are always integers; fractional intermediate results
// (quantity × rate, percentage tax) go through decimal and are rounded
// half away from zero back to the minor unit.
//
// Examples:
//   - New(11000, "usd") = $110.00
//   - New(4950, "inr") = ₹49.50
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// New creates a Money value from minor units.
func New(minor int64, currency string) Money {
	return Money{Amount: minor, Currency: strings.ToLower(currency)}
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return New(cents, "usd") }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return New(cents, "eur") }

// INR creates a Money value in Indian Rupees (paise).
func INR(paise int64) Money { return New(paise, "inr") }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return New(0, currency) }

// FromMajor converts a major-unit decimal ("49.995") to Money, rounding to the
// currency's minor unit.
func FromMajor(major decimal.Decimal, currency string) Money {
	exp := decimal.New(1, int32(currencyDecimals(currency)))
	return FromMinorDecimal(major.Mul(exp), currency)
}

// ParseMajor parses a major-unit string such as "110.00".
func ParseMajor(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromMajor(d, currency), nil
}

// FromMinorDecimal rounds a fractional minor-unit amount half away from zero.
func FromMinorDecimal(minor decimal.Decimal, currency string) Money {
	return New(minor.Round(0).IntPart(), currency)
}

// Decimal returns the amount in minor units as a decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount)
}

// Major returns the amount in major units as a decimal.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Amount, -int32(currencyDecimals(m.Currency)))
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Mul multiplies the amount by a decimal factor and rounds to the minor unit.
func (m Money) Mul(factor decimal.Decimal) Money {
	return FromMinorDecimal(m.Decimal().Mul(factor), m.Currency)
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount > other.Amount
}

// Max returns the larger of two Money values. Panics if currencies don't match.
func (m Money) Max(other Money) Money {
	m.assertSameCurrency(other)
	if m.Amount > other.Amount {
		return m
	}
	return other
}

// Formatting methods

// FormatMajor returns the major unit string without currency symbol:
// "49.00" for USD(4900), "100" for a zero-decimal currency.
func (m Money) FormatMajor() string {
	return m.Major().StringFixed(int32(currencyDecimals(m.Currency)))
}

// String returns a human-readable string with currency symbol.
func (m Money) String() string {
	if m.Amount < 0 {
		return "-" + currencySymbol(m.Currency) + m.Negate().FormatMajor()
	}
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = New(raw.Amount, raw.Currency)
	return nil
}

// Sum adds values in the given currency. An empty list sums to zero.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"inr": "₹",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// CurrencyDecimals reports how many minor-unit digits a currency uses.
func CurrencyDecimals(currency string) int { return currencyDecimals(currency) }

func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp", "pyg", "idr":
		return 0
	default:
		return 2
	}
}
