// Package numparse converts the heterogeneous textual fields found in
// exchange CSV exports into exact decimal values. Export columns mix
// plain numbers with currency suffixes ("1,234.56 USDT"), the literal
// placeholders "--" and "Market", and scientific-notation noise such as
// "0E-10". Parsing never fails: anything unusable becomes zero.
package numparse

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ZeroThreshold is the default magnitude below which parsed values snap
// to exact zero. It suppresses floating noise from upstream exports
// while staying below the smallest tradable unit (1e-8).
var ZeroThreshold = decimal.New(1, -10)

// nonNumeric matches everything that is not a digit, decimal point, or
// minus sign. Thousands separators are removed before this is applied.
var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// Decimal parses text into a decimal using the default zero threshold.
func Decimal(text string) decimal.Decimal {
	return DecimalThreshold(text, ZeroThreshold)
}

// DecimalThreshold parses text into a decimal, snapping any result with
// magnitude below threshold to exact zero. It never returns an error;
// "--", "Market", empty, and unparseable input all map to zero.
func DecimalThreshold(text string, threshold decimal.Decimal) decimal.Decimal {
	s := strings.TrimSpace(text)
	if s == "" || s == "--" || s == "Market" {
		return decimal.Zero
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	// "," is a thousands separator in these exports, never a decimal mark.
	s = strings.ReplaceAll(s, ",", "")
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" || s == "." {
		return decimal.Zero
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if neg {
		v = v.Neg()
	}
	if v.Abs().LessThan(threshold) {
		return decimal.Zero
	}
	return v
}

// Bool converts the export's "Y"/"N" flags. Anything else is false.
func Bool(text string) bool {
	return strings.TrimSpace(text) == "Y"
}

// orderTimeLayout is the execution-time format used by the exports,
// e.g. "08/15/2025 14:03:27".
const orderTimeLayout = "01/02/2006 15:04:05"

// OrderTime parses an execution timestamp. A second return value of
// false means the field was malformed and the row must be rejected at
// ingestion — malformed times never reach the matching engine.
func OrderTime(text string) (time.Time, bool) {
	t, err := time.ParseInLocation(orderTimeLayout, strings.TrimSpace(text), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
