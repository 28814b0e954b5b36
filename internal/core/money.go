// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from user input
// and formatting decimals for display.
package core

import (
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an account carries no currency code.
const DefaultCurrency = money.USD

// SplitTolerance is the absolute difference allowed between a transaction and
// the sum of its split allocations.
var SplitTolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user supplied decimal string into a positive amount
// rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs are rejected: direction is
// carried by the transaction type, never by the typed amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (rounds up)
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders d in the currency's display format, e.g. "$1,950.00".
// Unknown currency codes fall back to DefaultCurrency.
func FormatAmount(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		cur = money.GetCurrency(DefaultCurrency)
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// RoundPercent returns round(part/whole*100). A zero whole yields 0.
func RoundPercent(part, whole decimal.Decimal) int {
	if whole.IsZero() {
		return 0
	}
	return int(part.Div(whole).Mul(hundred).Round(0).IntPart())
}

// WithinTolerance reports whether |a-b| <= SplitTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(SplitTolerance)
}
