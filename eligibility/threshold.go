// Package eligibility builds decision trees from extracted threshold records
// and evaluates client values against them with exact arithmetic, including
// near-miss detection and remediation suggestions.
package eligibility

import (
	"context"
	"sort"
	"time"

	"github.com/manualkit/regent/symbolic"
)

// Threshold is a named numeric limit extracted from a source manual. Values
// are held in minor currency units. Created at ingestion time by external
// collaborators; read-only during query processing.
type Threshold struct {
	Topic      string        `json:"topic"`
	Criterion  string        `json:"criterion"`
	Value      int64         `json:"value"`
	Operator   symbolic.Op   `json:"operator"`
	Unit       symbolic.Unit `json:"unit"`
	Citation   string        `json:"citation"`
	Confidence float64       `json:"confidence"`

	// SourceDate is the date of the manual passage the threshold was
	// extracted from; zero when the passage carries no date.
	SourceDate time.Time `json:"source_date,omitempty"`

	// Near-miss tolerance band. Either or both may be set per threshold;
	// when both are set the wider band applies. Zero means unset.
	AbsTolerance int64   `json:"abs_tolerance,omitempty"`
	PctTolerance float64 `json:"pct_tolerance,omitempty"`
}

// ThresholdStore is the ingestion-side contract the cache loads from.
// Implementations live in eligibility/store.
type ThresholdStore interface {
	// Put stores or replaces a threshold record.
	Put(ctx context.Context, t Threshold) error

	// Thresholds returns all records for a topic.
	Thresholds(ctx context.Context, topic string) ([]Threshold, error)

	// Topics lists every topic with at least one record.
	Topics(ctx context.Context) ([]string, error)
}

// Resolution records how a duplicated criterion was resolved during a tree
// build. Losing records are kept here, never silently dropped.
type Resolution struct {
	Criterion string    `json:"criterion"`
	Chosen    Threshold `json:"chosen"`
	Discarded Threshold `json:"discarded"`
	Reason    string    `json:"reason"`
}

// resolveDuplicates picks one threshold per criterion name, preferring the
// most recently dated source, then the higher-confidence extraction.
func resolveDuplicates(thresholds []Threshold) ([]Threshold, []Resolution) {
	byName := make(map[string]Threshold)
	var order []string
	var resolutions []Resolution

	for _, t := range thresholds {
		held, seen := byName[t.Criterion]
		if !seen {
			byName[t.Criterion] = t
			order = append(order, t.Criterion)
			continue
		}
		chosen, discarded, reason := pickThreshold(held, t)
		byName[t.Criterion] = chosen
		resolutions = append(resolutions, Resolution{
			Criterion: t.Criterion,
			Chosen:    chosen,
			Discarded: discarded,
			Reason:    reason,
		})
	}

	sort.Strings(order)
	out := make([]Threshold, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, resolutions
}

func pickThreshold(a, b Threshold) (chosen, discarded Threshold, reason string) {
	switch {
	case b.SourceDate.After(a.SourceDate):
		return b, a, "newer source date"
	case a.SourceDate.After(b.SourceDate):
		return a, b, "newer source date"
	case b.Confidence > a.Confidence:
		return b, a, "higher extraction confidence"
	default:
		return a, b, "higher extraction confidence"
	}
}
