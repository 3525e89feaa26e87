package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecide_TruthTable(t *testing.T) {
	cases := []struct {
		name      string
		balance   int64
		amount    int64
		threshold int64
		want      StatusType
		reasons   []Reason
	}{
		{"balance equals amount", 100, 50, 100, StatusProceed, nil},
		{"balance below amount", 100, 101, 50, StatusSkip, []Reason{ReasonInsufficientFund}},
		{"balance below amount, low threshold", 40, 50, 10, StatusSkip, []Reason{ReasonInsufficientFund}},
		{"balance equals threshold", 50, 50, 10, StatusProceed, nil},
		{"below both", 80, 90, 100, StatusSkip, []Reason{ReasonBelowThreshold, ReasonInsufficientFund}},
		{"below threshold only", 80, 50, 100, StatusSkip, []Reason{ReasonBelowThreshold}},
		{"comfortable", 500, 50, 100, StatusProceed, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(decimal.NewFromInt(tc.balance), decimal.NewFromInt(tc.amount), decimal.NewFromInt(tc.threshold))
			if d.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, d.Status)
			}
			if d.Proceed() != (tc.want == StatusProceed) {
				t.Fatalf("Proceed() inconsistent with status %s", d.Status)
			}
			if len(d.Reasons) != len(tc.reasons) {
				t.Fatalf("expected reasons %v, got %v", tc.reasons, d.Reasons)
			}
			for i := range tc.reasons {
				if d.Reasons[i] != tc.reasons[i] {
					t.Errorf("reason %d: expected %s, got %s", i, tc.reasons[i], d.Reasons[i])
				}
			}
		})
	}
}

func TestDecide_FractionalBoundary(t *testing.T) {
	amount := decimal.RequireFromString("25.10")
	threshold := decimal.RequireFromString("25.10")

	if d := Decide(decimal.RequireFromString("25.1"), amount, threshold); !d.Proceed() {
		t.Fatalf("expected exact decimal boundary to proceed, got %v", d.Reasons)
	}
	if d := Decide(decimal.RequireFromString("25.09999999"), amount, threshold); d.Proceed() {
		t.Fatalf("expected balance just below boundary to skip")
	}
}
