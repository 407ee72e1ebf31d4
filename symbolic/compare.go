package symbolic

import (
	"sort"
	"strings"
)

// Op is a comparison operator applied with exact integer arithmetic.
type Op string

const (
	OpLE Op = "<="
	OpLT Op = "<"
	OpGE Op = ">="
	OpGT Op = ">"
	OpEQ Op = "=="
)

// ParseOp recognizes an operator in its wire form.
func ParseOp(s string) (Op, bool) {
	switch Op(strings.TrimSpace(s)) {
	case OpLE:
		return OpLE, true
	case OpLT:
		return OpLT, true
	case OpGE:
		return OpGE, true
	case OpGT:
		return OpGT, true
	case OpEQ, Op("="):
		return OpEQ, true
	}
	return "", false
}

// Compare evaluates left op right on exact minor-unit values. It is the only
// place magnitude judgments happen; no inference output is ever consulted.
func Compare(left, right int64, op Op) bool {
	switch op {
	case OpLE:
		return left <= right
	case OpLT:
		return left < right
	case OpGE:
		return left >= right
	case OpGT:
		return left > right
	case OpEQ:
		return left == right
	}
	return false
}

type phraseOp struct {
	phrase string
	op     Op
}

// phraseTable maps comparison wording to operators. Longer phrases come
// first so "no more than" never registers as "more than".
var phraseTable = []phraseOp{
	{"less than or equal to", OpLE},
	{"greater than or equal to", OpGE},
	{"must not exceed", OpLE},
	{"may not exceed", OpLE},
	{"cannot exceed", OpLE},
	{"does not exceed", OpLE},
	{"not more than", OpLE},
	{"no more than", OpLE},
	{"no greater than", OpLE},
	{"not less than", OpGE},
	{"no less than", OpGE},
	{"greater than", OpGT},
	{"fewer than", OpLT},
	{"less than", OpLT},
	{"more than", OpGT},
	{"at least", OpGE},
	{"at most", OpLE},
	{"or less", OpLE},
	{"or more", OpGE},
	{"equal to", OpEQ},
	{"exceeds", OpGT},
	{"exceed", OpGT},
	{"exactly", OpEQ},
	{"within", OpLE},
	{"under", OpLT},
	{"below", OpLT},
	{"above", OpGT},
	{"over", OpGT},
	{"up to", OpLE},
}

// ContainsComparisonClaim reports whether text states a numeric comparison:
// a recognized comparison phrase alongside at least one bound amount.
func ContainsComparisonClaim(text string) bool {
	if text == "" {
		return false
	}
	hasAmount := false
	for _, m := range scanAmounts(text) {
		if !m.isYear {
			hasAmount = true
			break
		}
	}
	if !hasAmount {
		return false
	}
	lower := asciiLower(text)
	for _, p := range phraseTable {
		if indexWord(lower, p.phrase, 0) >= 0 {
			return true
		}
	}
	return false
}

// findComparisons locates comparison phrases and resolves each to the
// variables adjacent to it within the same sentence. Marked parses win
// operand selection; choosing among competing unmarked parses flags the
// comparison ambiguous instead of guessing.
func findComparisons(text string, vars []bound) []*Comparison {
	if text == "" || len(vars) == 0 {
		return nil
	}
	// length-preserving lowering keeps variable offsets aligned
	lower := asciiLower(text)
	claimed := make([]bool, len(lower))

	type compAt struct {
		at int
		c  *Comparison
	}
	var found []compAt

	for _, p := range phraseTable {
		for from := 0; ; {
			at := indexWord(lower, p.phrase, from)
			if at < 0 {
				break
			}
			end := at + len(p.phrase)
			from = end
			if overlaps(claimed, at, end) {
				continue
			}
			mark(claimed, at, end)
			if c := buildComparison(lower, vars, p, at, end); c != nil {
				found = append(found, compAt{at: at, c: c})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].at < found[j].at })
	out := make([]*Comparison, 0, len(found))
	for _, f := range found {
		out = append(out, f.c)
	}
	return out
}

// buildComparison picks the left and right operands for a phrase occurrence.
// Both operands must resolve within the sentence or no claim is emitted.
func buildComparison(lower string, vars []bound, p phraseOp, phraseStart, phraseEnd int) *Comparison {
	sentStart, sentEnd := sentenceBounds(lower, phraseStart, phraseEnd)

	left, leftAmbig := pickOperand(vars, sentStart, phraseStart, true)
	right, rightAmbig := pickOperand(vars, phraseEnd, sentEnd, false)
	if left == nil || right == nil {
		return nil
	}
	if leftAmbig {
		left.v.Ambiguous = true
	}
	if rightAmbig {
		right.v.Ambiguous = true
	}

	ambiguous := leftAmbig || rightAmbig
	if left.v.Unit != UnitUnknown && right.v.Unit != UnitUnknown && left.v.Unit != right.v.Unit {
		ambiguous = true
	}
	if left.v.Period != PeriodNone && right.v.Period != PeriodNone && left.v.Period != right.v.Period {
		ambiguous = true
	}

	return &Comparison{
		Left:      left.v,
		Right:     right.v,
		Op:        p.op,
		Phrase:    p.phrase,
		Holds:     Compare(left.v.Value, right.v.Value, p.op),
		Ambiguous: ambiguous,
	}
}

// pickOperand selects the candidate nearest the phrase within [lo, hi).
// nearEnd selects by highest end (left operand), otherwise lowest start.
func pickOperand(vars []bound, lo, hi int, nearEnd bool) (*bound, bool) {
	var marked, unmarked []*bound
	for i := range vars {
		b := &vars[i]
		if b.start < lo || b.end > hi {
			continue
		}
		if b.marked {
			marked = append(marked, b)
		} else {
			unmarked = append(unmarked, b)
		}
	}
	if len(marked) > 0 {
		return nearest(marked, nearEnd), false
	}
	if len(unmarked) == 0 {
		return nil, false
	}
	return nearest(unmarked, nearEnd), len(unmarked) > 1
}

func nearest(candidates []*bound, nearEnd bool) *bound {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if nearEnd && c.end > best.end {
			best = c
		}
		if !nearEnd && c.start < best.start {
			best = c
		}
	}
	return best
}

// sentenceBounds expands outward to the enclosing sentence delimiters. A dot
// between digits is a decimal point, not a sentence end.
func sentenceBounds(text string, start, end int) (int, int) {
	lo := 0
	for i := start - 1; i >= 0; i-- {
		if sentenceDelim(text, i) {
			lo = i + 1
			break
		}
	}
	hi := len(text)
	for i := end; i < len(text); i++ {
		if sentenceDelim(text, i) {
			hi = i
			break
		}
	}
	return lo, hi
}

func sentenceDelim(text string, i int) bool {
	switch text[i] {
	case '!', '?', '\n', ';':
		return true
	case '.':
		if i > 0 && i+1 < len(text) && isDigit(text[i-1]) && isDigit(text[i+1]) {
			return false
		}
		return true
	}
	return false
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

// indexWord finds the first whole-word occurrence of phrase at or after from.
func indexWord(lower, phrase string, from int) int {
	for {
		j := strings.Index(lower[from:], phrase)
		if j < 0 {
			return -1
		}
		at := from + j
		end := at + len(phrase)
		if (at == 0 || !isLetter(lower[at-1])) && (end == len(lower) || !isLetter(lower[end])) {
			return at
		}
		from = at + 1
	}
}

func overlaps(claimed []bool, start, end int) bool {
	for i := start; i < end && i < len(claimed); i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func mark(claimed []bool, start, end int) {
	for i := start; i < end && i < len(claimed); i++ {
		claimed[i] = true
	}
}
