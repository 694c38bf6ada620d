// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from form input
// and formatting them for display in pesos.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const currencySymbol = "₱"

// ParseAmount converts a user-entered amount to a decimal.
//
// It accepts an optional currency symbol and comma thousands separators,
// with a dot as the decimal separator. Negative values are rejected; zero
// is accepted so callers can decide whether it is meaningful (a processing
// fee may be zero, a payment may not).
//
// Examples:
//   ParseAmount("120000")      -> 120000
//   ParseAmount("₱120,000.50") -> 120000.50
//   ParseAmount("-1")          -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, currencySymbol)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case !unicode.IsDigit(r):
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if dots > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatPesos renders an amount as "₱1,234.56" (half-up to centavos).
func FormatPesos(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := currencySymbol + b.String() + frac
	if neg {
		return "-" + out
	}
	return out
}
