// Package types provides the amount types shared across custody packages.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of both the native asset (wei per ether) and
// the reference currency amounts produced by price conversion.
const Decimals = 18

// Currency codes.
const (
	CurrencyETH = "eth"
	CurrencyUSD = "usd"
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Amount is a quantity in the smallest unit of its currency. Both
// currencies carry 18 decimals: wei for ETH and 1e-18 dollars for USD.
// Arithmetic is integer-only.
type Amount struct {
	Value    *big.Int `json:"amount"`
	Currency string   `json:"currency"`
}

// ETH wraps a wei value. A nil value is treated as zero.
func ETH(wei *big.Int) Amount { return Amount{Value: orZero(wei), Currency: CurrencyETH} }

// USD wraps an 18-decimal dollar value.
func USD(v *big.Int) Amount { return Amount{Value: orZero(v), Currency: CurrencyUSD} }

// Zero returns a zero Amount in the specified currency.
func Zero(currency string) Amount {
	return Amount{Value: new(big.Int), Currency: strings.ToLower(currency)}
}

// Ether returns n ether in wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// Dollars returns n dollars scaled to 18 decimals.
func Dollars(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// ParseEther parses a decimal ether string ("1.5") into wei. Negative
// values and precision finer than one wei are rejected.
func ParseEther(s string) (*big.Int, error) {
	return parseMajor("ether", s)
}

// ParseDollars parses a decimal dollar string ("50", "49.99") into an
// 18-decimal USD value.
func ParseDollars(s string) (*big.Int, error) {
	return parseMajor("dollars", s)
}

func parseMajor(unitName, s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("types: parse %s %q: %w", unitName, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("types: parse %s %q: negative amount", unitName, s)
	}
	v := d.Shift(Decimals)
	if !v.IsInteger() {
		return nil, fmt.Errorf("types: parse %s %q: more than %d decimals", unitName, s, Decimals)
	}
	return v.BigInt(), nil
}

// Add returns a + other. Panics if currencies don't match.
func (a Amount) Add(other Amount) Amount {
	a.assertSameCurrency(other)
	return Amount{Value: new(big.Int).Add(a.Value, other.Value), Currency: a.Currency}
}

// Cmp compares the two amounts. Panics if currencies don't match.
func (a Amount) Cmp(other Amount) int {
	a.assertSameCurrency(other)
	return a.Value.Cmp(other.Value)
}

// LessThan reports whether a < other. Panics if currencies don't match.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.Value == nil || a.Value.Sign() == 0 }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.Value != nil && a.Value.Sign() > 0 }

// Equal reports whether both amounts have the same value and currency.
func (a Amount) Equal(other Amount) bool {
	return a.Currency == other.Currency && orZero(a.Value).Cmp(orZero(other.Value)) == 0
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(orZero(a.Value), -Decimals)
}

// FormatMajor renders the major unit string without symbol. USD is fixed
// to cents, ETH keeps every significant decimal.
func (a Amount) FormatMajor() string {
	if a.Currency == CurrencyUSD {
		return a.Decimal().StringFixed(2)
	}
	return a.Decimal().String()
}

// String returns "$2000.00" or "1.5 ETH".
func (a Amount) String() string {
	switch a.Currency {
	case CurrencyUSD:
		return "$" + a.FormatMajor()
	case CurrencyETH:
		return a.FormatMajor() + " ETH"
	default:
		return a.FormatMajor() + " " + strings.ToUpper(a.Currency)
	}
}

// MarshalJSON renders the value as a decimal string so that 256-bit
// amounts survive JSON number handling in clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   orZero(a.Value).String(),
		Currency: a.Currency,
		Display:  a.String(),
	})
}

func (a Amount) assertSameCurrency(other Amount) {
	if a.Currency != other.Currency {
		panic(fmt.Sprintf("amount: currency mismatch: %s != %s", a.Currency, other.Currency))
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
