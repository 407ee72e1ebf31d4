package symbolic

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// amountMatch is one numeric occurrence found by scanAmounts.
type amountMatch struct {
	start, end int
	value      int64
	unit       Unit
	period     Period
	marked     bool
	isYear     bool
}

var (
	reAmount = regexp.MustCompile(`(?i)(?:([£$€])\s*)?(\d+(?:,\d{3})*)(?:\.(\d+))?(?:\s*(%|percent\b|pence\b|pounds\b|gbp\b))?`)

	rePeriod = regexp.MustCompile(`(?i)^\s*(?:(?:per|each|a|an)\s+(week|month|year|annum)|/\s*(week|month|year)|(weekly|monthly|yearly|annually))\b`)
)

// scanAmounts finds every numeric occurrence in text, classifying its unit
// from adjacent markers. Results are ordered by position.
func scanAmounts(text string) []amountMatch {
	idx := reAmount.FindAllStringSubmatchIndex(text, -1)
	var out []amountMatch
	for _, g := range idx {
		m, ok := classifyAmount(text, g)
		if !ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// group offsets within a submatch index slice: 1 symbol, 2 integer part,
// 3 fraction, 4 suffix word.
func classifyAmount(text string, g []int) (amountMatch, bool) {
	start, end := g[0], g[1]
	if start > 0 && isAlnum(text[start-1]) {
		return amountMatch{}, false // embedded in a word or longer number
	}
	intPart := text[g[4]:g[5]]
	frac := ""
	if g[6] >= 0 {
		frac = text[g[6]:g[7]]
	}
	symbol := g[2] >= 0
	suffix := ""
	if g[8] >= 0 {
		suffix = strings.ToLower(text[g[8]:g[9]])
	}
	if suffix == "" && end < len(text) && isLetter(text[end]) {
		return amountMatch{}, false // e.g. "50k", "2024b"
	}

	whole, minor, ok := parseMinor(intPart, frac)
	if !ok {
		return amountMatch{}, false
	}

	m := amountMatch{start: start, end: end, value: minor, unit: UnitUnknown}
	switch {
	case symbol || suffix == "pounds" || suffix == "gbp":
		m.unit = UnitCurrency
		m.marked = true
	case suffix == "pence":
		m.unit = UnitCurrency
		m.marked = true
		m.value = whole
		if frac != "" && frac[0] >= '5' {
			m.value++
		}
	case suffix == "%" || suffix == "percent":
		m.unit = UnitPercent
		m.marked = true
	}

	if p := scanPeriod(text[end:]); p != PeriodNone {
		m.period = p
		m.marked = true
	}

	if !m.marked && frac == "" && len(intPart) == 4 && !strings.Contains(intPart, ",") {
		if whole >= 1900 && whole <= 2100 {
			m.isYear = true
		}
	}
	return m, true
}

// scanPeriod looks for a rate marker immediately after an amount.
func scanPeriod(rest string) Period {
	if len(rest) > 24 {
		rest = rest[:24]
	}
	g := rePeriod.FindStringSubmatch(rest)
	if g == nil {
		return PeriodNone
	}
	word := g[1]
	if word == "" {
		word = g[2]
	}
	if word == "" {
		word = g[3]
	}
	switch strings.ToLower(word) {
	case "week", "weekly":
		return PeriodWeek
	case "month", "monthly":
		return PeriodMonth
	case "year", "yearly", "annum", "annually":
		return PeriodYear
	}
	return PeriodNone
}

// parseMinor converts digit strings to an exact minor-unit value. Fractions
// beyond two places round half up on the third digit; integer parts longer
// than fifteen digits are rejected rather than risking overflow.
func parseMinor(intPart, frac string) (whole, minor int64, ok bool) {
	digits := strings.ReplaceAll(intPart, ",", "")
	if digits == "" || len(digits) > 15 {
		return 0, 0, false
	}
	whole, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	minor = whole * 100
	switch {
	case frac == "":
	case len(frac) == 1:
		minor += int64(frac[0]-'0') * 10
	default:
		minor += int64(frac[0]-'0')*10 + int64(frac[1]-'0')
		if len(frac) > 2 && frac[2] >= '5' {
			minor++
		}
	}
	return whole, minor, true
}

func isAlnum(b byte) bool {
	return isLetter(b) || isDigit(b)
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// ToMinor converts a caller-supplied major-unit number to exact minor units.
func ToMinor(f float64) int64 {
	return int64(math.Round(f * 100))
}

// FromMinor converts minor units back to a major-unit number for responses.
func FromMinor(v int64) float64 {
	return float64(v) / 100
}

// FormatPence renders a minor-unit currency value, e.g. 123456 -> "£1,234.56".
func FormatPence(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s£%s.%02d", sign, groupThousands(v/100), v%100)
}

// FormatValue renders a minor-unit value according to its unit.
func FormatValue(v int64, unit Unit) string {
	switch unit {
	case UnitCurrency:
		return FormatPence(v)
	case UnitPercent:
		return trimMinor(v) + "%"
	default:
		return trimMinor(v)
	}
}

// trimMinor renders a minor-unit value without trailing zero decimals.
func trimMinor(v int64) string {
	if v%100 == 0 {
		return groupThousands(v / 100)
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%s%s.%02d", sign, groupThousands(v/100), v%100)
	return strings.TrimRight(s, "0")
}

func groupThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}
