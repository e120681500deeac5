package numparse

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecimal_Placeholders(t *testing.T) {
	for _, in := range []string{"--", "Market", "", "   "} {
		if got := Decimal(in); !got.IsZero() {
			t.Errorf("Decimal(%q) = %s, want 0", in, got)
		}
	}
}

func TestDecimal_ZeroSnap(t *testing.T) {
	if got := Decimal("0E-10"); !got.IsZero() {
		t.Errorf("Decimal(0E-10) = %s, want exact 0", got)
	}
	if got := Decimal("0.00000000001"); !got.IsZero() {
		t.Errorf("sub-threshold value should snap to 0, got %s", got)
	}
	// At the smallest tradable unit the value must survive.
	if got := Decimal("0.00000001"); !got.Equal(decimal.New(1, -8)) {
		t.Errorf("1e-8 should not snap, got %s", got)
	}
}

func TestDecimal_CurrencySuffixAndSeparators(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1,234.56 USDT", "1234.56"},
		{"-123.45", "-123.45"},
		{"123abc", "123"},
		{"0.065 USDT", "0.065"},
		{"5", "5"},
	}
	for _, tc := range cases {
		want, _ := decimal.NewFromString(tc.want)
		if got := Decimal(tc.in); !got.Equal(want) {
			t.Errorf("Decimal(%q) = %s, want %s", tc.in, got, want)
		}
	}
}

func TestDecimal_Garbage(t *testing.T) {
	for _, in := range []string{"abc", "-", ".", "..."} {
		if got := Decimal(in); !got.IsZero() {
			t.Errorf("Decimal(%q) = %s, want 0", in, got)
		}
	}
}

func TestBool(t *testing.T) {
	if !Bool("Y") {
		t.Error("Bool(Y) should be true")
	}
	if Bool("N") || Bool("") || Bool("yes") {
		t.Error("only Y maps to true")
	}
}

func TestOrderTime(t *testing.T) {
	ts, ok := OrderTime("08/15/2025 14:03:27")
	if !ok {
		t.Fatal("expected valid order time")
	}
	if ts.Year() != 2025 || ts.Month() != 8 || ts.Day() != 15 {
		t.Errorf("unexpected date: %s", ts)
	}
	if _, ok := OrderTime("2025-08-15"); ok {
		t.Error("malformed timestamp should be rejected")
	}
}
