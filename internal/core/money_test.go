package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"120,000", "120000", true},
		{"₱120,000.50", "120000.5", true},
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"-1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"₱", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestFormatPesos(t *testing.T) {
	cases := map[string]string{
		"0":         "₱0.00",
		"5":         "₱5.00",
		"999.999":   "₱1,000.00",
		"1234.5":    "₱1,234.50",
		"120000":    "₱120,000.00",
		"1234567.8": "₱1,234,567.80",
		"-1000":     "-₱1,000.00",
	}
	for in, want := range cases {
		if got := FormatPesos(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatPesos(%s) = %q, want %q", in, got, want)
		}
	}
}
