// Package symbolic extracts numeric claims from text into generic tokens and
// evaluates comparisons with exact integer arithmetic, so that no language
// model ever judges magnitudes. Values are held in minor units (pence for
// currency, hundredths otherwise) to avoid binary floating point drift.
package symbolic

import "fmt"

// Source identifies where a variable's value came from.
type Source string

const (
	SourceQuestion Source = "question"
	SourceContext  Source = "context"
	SourceClient   Source = "client"
)

// Unit classifies the kind of quantity a variable holds.
type Unit string

const (
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
	UnitCount    Unit = "count"
	UnitUnknown  Unit = "unknown"
)

// Period is an optional rate marker attached to a quantity ("£75 per week").
type Period string

const (
	PeriodNone  Period = ""
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Variable binds a generic token to an exact value extracted from text.
// Tokens are sequential and content-independent; a variable is never mutated
// once created and is discarded with its Result at the end of the query.
type Variable struct {
	Token       string `json:"token"`
	Value       int64  `json:"value"`
	Unit        Unit   `json:"unit"`
	Period      Period `json:"period,omitempty"`
	Surface     string `json:"surface"`
	Source      Source `json:"source"`
	UnitUnknown bool   `json:"unit_unknown,omitempty"`
	Ambiguous   bool   `json:"ambiguous,omitempty"`
}

// Comparison is an explicit numeric claim found in text, evaluated exactly.
type Comparison struct {
	Left      *Variable `json:"left"`
	Right     *Variable `json:"right"`
	Op        Op        `json:"op"`
	Phrase    string    `json:"phrase"`
	Holds     bool      `json:"holds"`
	Ambiguous bool      `json:"ambiguous,omitempty"`
}

// String renders the claim in token form, e.g. "VAR_1 <= VAR_2: holds".
func (c Comparison) String() string {
	verdict := "holds"
	if !c.Holds {
		verdict = "does not hold"
	}
	if c.Ambiguous {
		verdict += " (ambiguous)"
	}
	return fmt.Sprintf("%s %s %s: %s", c.Left.Token, c.Op, c.Right.Token, verdict)
}

// Result is one symbolization of a question/context pair.
type Result struct {
	QuestionText string        `json:"question_text"`
	ContextText  string        `json:"context_text"`
	Variables    []*Variable   `json:"variables"`
	Comparisons  []*Comparison `json:"comparisons"`

	n int // token counter
}

// bound tracks a variable together with its span in the original text.
type bound struct {
	v          *Variable
	start, end int
	marked     bool
}

// Symbolize replaces each numeric claim in the question and context with a
// generic token and evaluates explicit comparison claims between bound
// values. Bare four-digit numbers in the 1900-2100 range are treated as
// years and never bound. The same input always yields the same tokens.
func Symbolize(question, context string) *Result {
	r := &Result{}
	qVars, qText := r.bindText(question, SourceQuestion)
	cVars, cText := r.bindText(context, SourceContext)
	r.QuestionText = qText
	r.ContextText = cText
	r.Comparisons = append(r.Comparisons, findComparisons(question, qVars)...)
	r.Comparisons = append(r.Comparisons, findComparisons(context, cVars)...)
	return r
}

// bindText scans one text, creating a variable per numeric occurrence and
// substituting tokens into the returned copy.
func (r *Result) bindText(text string, source Source) ([]bound, string) {
	if text == "" {
		return nil, ""
	}
	matches := scanAmounts(text)
	var (
		vars []bound
		out  []byte
		prev int
	)
	for _, m := range matches {
		if m.isYear {
			continue
		}
		r.n++
		v := &Variable{
			Token:       fmt.Sprintf("VAR_%d", r.n),
			Value:       m.value,
			Unit:        m.unit,
			Period:      m.period,
			Surface:     text[m.start:m.end],
			Source:      source,
			UnitUnknown: m.unit == UnitUnknown,
		}
		r.Variables = append(r.Variables, v)
		vars = append(vars, bound{v: v, start: m.start, end: m.end, marked: m.marked})
		out = append(out, text[prev:m.start]...)
		out = append(out, v.Token...)
		prev = m.end
	}
	out = append(out, text[prev:]...)
	return vars, string(out)
}

// BindClient adds a client-supplied field as a variable, letting claims in
// text be checked against values the caller provided directly.
func (r *Result) BindClient(field string, value int64, unit Unit) *Variable {
	r.n++
	v := &Variable{
		Token:   fmt.Sprintf("VAR_%d", r.n),
		Value:   value,
		Unit:    unit,
		Surface: field,
		Source:  SourceClient,
	}
	r.Variables = append(r.Variables, v)
	return v
}

// HasAmbiguity reports whether any variable or comparison was flagged.
func (r *Result) HasAmbiguity() bool {
	for _, v := range r.Variables {
		if v.Ambiguous || v.UnitUnknown {
			return true
		}
	}
	for _, c := range r.Comparisons {
		if c.Ambiguous {
			return true
		}
	}
	return false
}

// ResolvedComparison reports whether at least one comparison evaluated
// without an ambiguity flag.
func (r *Result) ResolvedComparison() bool {
	for _, c := range r.Comparisons {
		if !c.Ambiguous {
			return true
		}
	}
	return false
}
