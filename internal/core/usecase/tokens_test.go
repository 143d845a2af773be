package usecase

import (
	"reflect"
	"testing"
)

func TestTokenizeFoldsMagnitudes(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"$394.3B", []string{"394.3b"}},
		{"394.3 billion", []string{"394.3b"}},
		{"$1.2 trillion in revenue", []string{"1.2t", "in", "revenue"}},
		{"FY2024 Q4", []string{"fy2024", "q4"}},
		{"45.2%", []string{"45.2"}},
	}
	for _, tc := range cases {
		if got := tokenize(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseAmountScales(t *testing.T) {
	cases := []struct {
		token string
		want  float64
	}{
		{"394.3b", 394.3e9},
		{"500b", 500e9},
		{"1.2t", 1.2e12},
		{"75m", 75e6},
		{"2024", 2024},
	}
	for _, tc := range cases {
		got, ok := parseAmount(tc.token)
		if !ok {
			t.Fatalf("parseAmount(%q) failed", tc.token)
		}
		if got != tc.want {
			t.Fatalf("parseAmount(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
	if _, ok := parseAmount("fy2024"); ok {
		t.Fatalf("tokens starting with letters are not amounts")
	}
}

func TestScaledAmountsSkipsPlainIntegers(t *testing.T) {
	amounts := scaledAmounts(tokenize("In FY2024 revenue was $394.3 billion across 2 segments"))
	if len(amounts) != 1 || amounts[0] != 394.3e9 {
		t.Fatalf("expected only the scaled figure, got %v", amounts)
	}
}

func TestRelativeDiff(t *testing.T) {
	if d := relativeDiff(100, 100); d != 0 {
		t.Fatalf("equal values must have zero diff, got %v", d)
	}
	if d := relativeDiff(0, 0); d != 0 {
		t.Fatalf("zero values must have zero diff, got %v", d)
	}
	if d := relativeDiff(394.3e9, 500e9); d < 0.2 || d > 0.22 {
		t.Fatalf("unexpected diff %v", d)
	}
}
