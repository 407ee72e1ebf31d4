package symbolic

import (
	"encoding/json"
	"testing"
)

func TestSymbolizeBindsPenceExactly(t *testing.T) {
	r := Symbolize("My total debt is £1,234.56 right now", "")
	if len(r.Variables) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(r.Variables))
	}
	v := r.Variables[0]
	if v.Token != "VAR_1" {
		t.Fatalf("expected VAR_1, got %s", v.Token)
	}
	if v.Value != 123456 {
		t.Fatalf("expected 123456 pence, got %d", v.Value)
	}
	if v.Unit != UnitCurrency || v.UnitUnknown {
		t.Fatalf("expected marked currency, got unit=%s unknown=%v", v.Unit, v.UnitUnknown)
	}
	if r.QuestionText != "My total debt is VAR_1 right now" {
		t.Fatalf("token not substituted: %q", r.QuestionText)
	}
}

func TestSymbolizeSkipsBareYears(t *testing.T) {
	r := Symbolize("In 2024 the debt limit rose to £50,000", "")
	if len(r.Variables) != 1 {
		t.Fatalf("expected year to be skipped, got %d variables", len(r.Variables))
	}
	if r.Variables[0].Value != 5000000 {
		t.Fatalf("expected 5000000 pence, got %d", r.Variables[0].Value)
	}
	if r.QuestionText != "In 2024 the debt limit rose to VAR_1" {
		t.Fatalf("unexpected substitution: %q", r.QuestionText)
	}
}

func TestSymbolizeFlagsUnknownUnit(t *testing.T) {
	r := Symbolize("the threshold is 45000 under current rules", "")
	if len(r.Variables) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(r.Variables))
	}
	if !r.Variables[0].UnitUnknown {
		t.Fatalf("expected unit_unknown flag")
	}
	if !r.HasAmbiguity() {
		t.Fatalf("unknown unit should count as ambiguity")
	}
}

func TestSymbolizePeriodMarker(t *testing.T) {
	r := Symbolize("disposable income of £75 per week is allowed", "")
	if len(r.Variables) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(r.Variables))
	}
	if r.Variables[0].Period != PeriodWeek {
		t.Fatalf("expected weekly period, got %q", r.Variables[0].Period)
	}
}

func TestSymbolizeDistinctTokensForEqualValues(t *testing.T) {
	r := Symbolize("£500 here and £500 there", "")
	if len(r.Variables) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(r.Variables))
	}
	if r.Variables[0].Token == r.Variables[1].Token {
		t.Fatalf("equal values must still bind distinct tokens")
	}
	if r.Variables[0].Value != r.Variables[1].Value {
		t.Fatalf("values should be equal")
	}
}

func TestSymbolizeDeterministic(t *testing.T) {
	question := "My debt of £51,000 exceeds the £50,000 limit from 2024"
	context := "Total debts must not exceed £50,000 to qualify."
	first, err := json.Marshal(Symbolize(question, context))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(Symbolize(question, context))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("run %d differed:\n%s\nvs\n%s", i, again, first)
		}
	}
}

func TestComparisonEvaluatedExactly(t *testing.T) {
	r := Symbolize("My debt of £51,000 exceeds the £50,000 limit", "")
	if len(r.Comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(r.Comparisons))
	}
	c := r.Comparisons[0]
	if c.Op != OpGT {
		t.Fatalf("expected >, got %s", c.Op)
	}
	if !c.Holds {
		t.Fatalf("51000 > 50000 must hold")
	}
	if c.Ambiguous {
		t.Fatalf("marked currency operands should not be ambiguous")
	}
	if c.Left.Value != 5100000 || c.Right.Value != 5000000 {
		t.Fatalf("operands misbound: %d vs %d", c.Left.Value, c.Right.Value)
	}
}

func TestComparisonBoundaryEquality(t *testing.T) {
	r := Symbolize("", "A debt of £50,000.00 does not exceed the £50,000 limit.")
	if len(r.Comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(r.Comparisons))
	}
	c := r.Comparisons[0]
	if c.Op != OpLE || !c.Holds {
		t.Fatalf("equal amounts must satisfy <=, got op=%s holds=%v", c.Op, c.Holds)
	}
}

func TestComparisonAmbiguousOnCompetingUnmarkedParses(t *testing.T) {
	r := Symbolize("with 45000 or 51000 owed that is more than 50000 allowed", "")
	if len(r.Comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(r.Comparisons))
	}
	c := r.Comparisons[0]
	if !c.Ambiguous {
		t.Fatalf("competing unmarked left operands must flag ambiguous")
	}
	if c.Left.Value != 5100000 {
		t.Fatalf("should bind the parse nearest the phrase, got %d", c.Left.Value)
	}
}

func TestComparisonPrefersMarkedParse(t *testing.T) {
	r := Symbolize("owing £51,000 since 1850 is more than the £50,000 limit", "")
	if len(r.Comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(r.Comparisons))
	}
	c := r.Comparisons[0]
	if c.Left.Value != 5100000 {
		t.Fatalf("marked parse must win operand selection, got %d", c.Left.Value)
	}
	if c.Ambiguous {
		t.Fatalf("marked operand selection is not ambiguous")
	}
}

func TestComparisonUnitMismatchFlagged(t *testing.T) {
	r := Symbolize("50% is more than £20", "")
	if len(r.Comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(r.Comparisons))
	}
	if !r.Comparisons[0].Ambiguous {
		t.Fatalf("percent vs currency comparison must be flagged")
	}
}

func TestContainsComparisonClaim(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Debts must be no more than £50,000", true},
		{"is my debt more than the limit?", false},
		{"the limit is £50,000", false},
		{"income under £75 per week qualifies", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := ContainsComparisonClaim(tc.text); got != tc.want {
			t.Fatalf("ContainsComparisonClaim(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCompareMatchesExactArithmetic(t *testing.T) {
	values := []int64{-5000000, -1, 0, 1, 99, 100, 4999999, 5000000, 5000001, 1 << 40}
	for _, a := range values {
		for _, b := range values {
			if got := Compare(a, b, OpLE); got != (a <= b) {
				t.Fatalf("Compare(%d, %d, <=) = %v", a, b, got)
			}
			if got := Compare(a, b, OpLT); got != (a < b) {
				t.Fatalf("Compare(%d, %d, <) = %v", a, b, got)
			}
			if got := Compare(a, b, OpGE); got != (a >= b) {
				t.Fatalf("Compare(%d, %d, >=) = %v", a, b, got)
			}
			if got := Compare(a, b, OpGT); got != (a > b) {
				t.Fatalf("Compare(%d, %d, >) = %v", a, b, got)
			}
			if got := Compare(a, b, OpEQ); got != (a == b) {
				t.Fatalf("Compare(%d, %d, ==) = %v", a, b, got)
			}
		}
	}
}

func TestBindClient(t *testing.T) {
	r := Symbolize("is my debt under the limit of £50,000?", "")
	v := r.BindClient("total_debt", 4500000, UnitCurrency)
	if v.Source != SourceClient {
		t.Fatalf("expected client source, got %s", v.Source)
	}
	if v.Token != "VAR_2" {
		t.Fatalf("client token must continue the sequence, got %s", v.Token)
	}
}

func TestFormatPence(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{100000, "£1,000.00"},
		{123456, "£1,234.56"},
		{-5050, "-£50.50"},
		{99, "£0.99"},
		{500000000, "£5,000,000.00"},
	}
	for _, tc := range cases {
		if got := FormatPence(tc.in); got != tc.want {
			t.Fatalf("FormatPence(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToMinorRounds(t *testing.T) {
	if got := ToMinor(70.5); got != 7050 {
		t.Fatalf("ToMinor(70.5) = %d", got)
	}
	if got := ToMinor(50000); got != 5000000 {
		t.Fatalf("ToMinor(50000) = %d", got)
	}
	if got := ToMinor(0.015); got != 2 {
		t.Fatalf("ToMinor(0.015) = %d", got)
	}
}
