// Package eval scores predicted spans against gold spans with exact span-level matching, and
// aggregates per-type, pooled and macro-averaged precision, recall and F1.
package eval

import (
	"maps"
	"slices"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
)

// Counts of one entity type.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`

	// Truncated counts gold spans beyond the model window. They are excluded from FN and only kept
	// for auditing.
	Truncated int `json:"truncated"`
}

// Add returns the element-wise sum of the counts.
func (c Counts) Add(other Counts) Counts {
	return Counts{
		TP:        c.TP + other.TP,
		FP:        c.FP + other.FP,
		FN:        c.FN + other.FN,
		Truncated: c.Truncated + other.Truncated,
	}
}

// Scored reports whether the type took part in scoring, i.e. appeared in gold (within the window)
// or in predictions.
func (c Counts) Scored() bool { return c.TP+c.FP+c.FN > 0 }

// Precision is TP/(TP+FP), or 1 when nothing was predicted.
func (c Counts) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 1
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

// Recall is TP/(TP+FN), or 1 when there is nothing to find.
func (c Counts) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 1
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

// F1 is the harmonic mean of precision and recall, or 0 when both are 0.
func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// MetricCounts holds the counts of each entity type. The zero value is empty and ready to use.
type MetricCounts struct {
	ByType map[schema.EntityType]Counts
}

// Add accumulates counts for one entity type.
func (m *MetricCounts) Add(et schema.EntityType, c Counts) {
	if m.ByType == nil {
		m.ByType = make(map[schema.EntityType]Counts)
	}
	m.ByType[et] = m.ByType[et].Add(c)
}

// Merge accumulates all counts of other.
func (m *MetricCounts) Merge(other MetricCounts) {
	for et, c := range other.ByType {
		m.Add(et, c)
	}
}

// Pooled sums the counts over all types.
func (m *MetricCounts) Pooled() Counts {
	var pooled Counts
	for _, c := range m.ByType {
		pooled = pooled.Add(c)
	}
	return pooled
}

// MacroF1 is the unweighted mean of the per-type F1 over types that took part in scoring. It is 1
// if no type did.
func (m *MetricCounts) MacroF1() float64 {
	var sum float64
	var n int
	for _, c := range m.ByType {
		if c.Scored() {
			sum += c.F1()
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// Types returns the types with any non-zero count, in schema order if s is given, then sorted by
// name for types unknown to s.
func (m *MetricCounts) Types(s *schema.Schema) []schema.EntityType {
	var types []schema.EntityType
	seen := make(map[schema.EntityType]bool)
	if s != nil {
		for _, et := range s.EntityTypes() {
			if c, ok := m.ByType[et]; ok && c != (Counts{}) {
				types = append(types, et)
				seen[et] = true
			}
		}
	}
	for _, et := range slices.Sorted(maps.Keys(m.ByType)) {
		if !seen[et] && m.ByType[et] != (Counts{}) {
			types = append(types, et)
		}
	}
	return types
}

// ScoreExample matches predicted spans to gold spans. A prediction is a true positive only if a
// gold span has the same start, end and type; each gold span matches at most one prediction.
//
// If window >= 0, gold spans ending after window (the end of the text seen by the model) are not
// counted as false negatives: they are returned in excluded and counted as Truncated.
func ScoreExample(gold, pred []spans.Span, window int) (counts MetricCounts, excluded []spans.Span) {
	considered := make([]spans.Span, 0, len(gold))
	for _, span := range gold {
		if window >= 0 && span.End > window {
			excluded = append(excluded, span)
			counts.Add(span.Type, Counts{Truncated: 1})
			continue
		}
		considered = append(considered, span)
	}
	slices.SortFunc(considered, spans.Compare)
	pred = spans.Sorted(pred)

	i, j := 0, 0
	for i < len(considered) || j < len(pred) {
		switch {
		case j == len(pred):
			counts.Add(considered[i].Type, Counts{FN: 1})
			i++
		case i == len(considered):
			counts.Add(pred[j].Type, Counts{FP: 1})
			j++
		default:
			cmp := spans.Compare(considered[i], pred[j])
			switch {
			case cmp == 0:
				counts.Add(pred[j].Type, Counts{TP: 1})
				i++
				j++
			case cmp < 0:
				counts.Add(considered[i].Type, Counts{FN: 1})
				i++
			default:
				counts.Add(pred[j].Type, Counts{FP: 1})
				j++
			}
		}
	}
	return counts, excluded
}
