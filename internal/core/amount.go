// Package core holds the consumption record model and its value types.
//
// This file contains parsing for consumption amounts as entered in the form.
package core

import (
	"strings"

	"github.com/shopspring/decimal"

	ierr "snowtrack/internal/errors"
)

// ParseConsumption converts a decimal string into an amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. The value
// must be non-negative; zero is allowed since a month can have no consumption.
func ParseConsumption(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, invalidAmount(s)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalidAmount(s)
	}
	if d.IsNegative() {
		return decimal.Zero, invalidAmount(s)
	}
	return d, nil
}

func invalidAmount(s string) error {
	return ierr.NewErrorf("invalid consumption amount %q", s).
		WithHint("Consumption must be a non-negative number").
		Mark(ierr.ErrValidation)
}
