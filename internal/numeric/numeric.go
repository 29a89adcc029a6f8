// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package numeric normalizes the amounts found in fiscal and debt
// disclosures. Amounts are expressed in 万元 (ten thousand yuan); values
// written in 亿元 or 元 are converted.
package numeric

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

var (
	tenThousand = decimal.NewFromInt(10000)

	// amountPattern matches a signed decimal with optional thousands separators.
	amountPattern = regexp.MustCompile(`^[-+]?(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`)
)

// placeholders are cell contents that mean "no value".
var placeholders = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"—":    true,
	"——":   true,
	"/":    true,
	"无":    true,
	"未找到":  true,
	"N/A":  true,
	"n/a":  true,
	"null": true,
}

// Fold converts full-width digits and punctuation to their ASCII forms
// and removes all whitespace.
func Fold(s string) string {
	s = width.Narrow.String(s)
	return strings.Join(strings.Fields(s), "")
}

// IsPlaceholder reports whether s denotes a missing value.
func IsPlaceholder(s string) bool {
	return placeholders[Fold(s)]
}

// Parse reads an amount and returns it in 万元. The second result is false
// when s is blank, a placeholder, or not a number.
//
// Accepted forms: "1,234.5", "１２３４．５", "1234.5万元", "1.2亿元",
// "3500000元", "(12.5)" for a negative amount.
func Parse(s string) (decimal.Decimal, bool) {
	v := Fold(s)
	if placeholders[v] {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	}

	scale := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(v, "万元"):
		v = strings.TrimSuffix(v, "万元")
	case strings.HasSuffix(v, "亿元"):
		v = strings.TrimSuffix(v, "亿元")
		scale = tenThousand
	case strings.HasSuffix(v, "万"):
		v = strings.TrimSuffix(v, "万")
	case strings.HasSuffix(v, "亿"):
		v = strings.TrimSuffix(v, "亿")
		scale = tenThousand
	case strings.HasSuffix(v, "元"):
		v = strings.TrimSuffix(v, "元")
		scale = decimal.NewFromInt(1).Div(tenThousand)
	}

	if !amountPattern.MatchString(v) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	d = d.Mul(scale)
	if negative {
		d = d.Neg()
	}
	return d, true
}

// Normalize returns the canonical text form of an amount in 万元, or ""
// when s holds no amount.
func Normalize(s string) string {
	d, ok := Parse(s)
	if !ok {
		return ""
	}
	return d.String()
}

// InRange reports whether an amount is non-negative and at most max.
func InRange(d decimal.Decimal, max float64) bool {
	if d.IsNegative() {
		return false
	}
	if max <= 0 {
		return true
	}
	return d.LessThanOrEqual(decimal.NewFromFloat(max))
}
