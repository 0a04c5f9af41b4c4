package eval

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"

	"github.com/gomlx/piispans/schema"
)

// Metrics of one entity type, or pooled over all types.
type Metrics struct {
	Counts
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// Support is the number of gold spans within the window (TP+FN).
	Support int `json:"support"`

	// Predicted is the number of predicted spans (TP+FP).
	Predicted int `json:"predicted"`
}

// NewMetrics computes the metrics of the counts.
func NewMetrics(c Counts) Metrics {
	return Metrics{
		Counts:    c,
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
		Support:   c.TP + c.FN,
		Predicted: c.TP + c.FP,
	}
}

// TypeMetrics are the metrics of one entity type.
type TypeMetrics struct {
	Type schema.EntityType `json:"type"`
	Metrics
}

// Report of an evaluation run.
type Report struct {
	RunID    uuid.UUID     `json:"run_id"`
	Examples int           `json:"examples"`
	Skipped  int           `json:"skipped"`
	PerType  []TypeMetrics `json:"per_type"`
	Pooled   Metrics       `json:"pooled"`
	MacroF1  float64       `json:"macro_f1"`
}

// NewReport builds the report of a scored corpus. Every type of s gets a row, in schema order,
// with vacuous metrics (P = R = F1 = 1) for types absent from both gold and predictions; types
// unknown to s follow by name. s may be nil, then only the types with counts are listed.
func NewReport(runID uuid.UUID, s *schema.Schema, result *Result) *Report {
	r := &Report{
		RunID:    runID,
		Examples: result.Examples,
		Skipped:  result.Skipped,
		Pooled:   NewMetrics(result.Counts.Pooled()),
		MacroF1:  result.Counts.MacroF1(),
	}
	var types []schema.EntityType
	if s != nil {
		types = slices.Clone(s.EntityTypes())
	}
	for _, et := range result.Counts.Types(nil) {
		if !slices.Contains(types, et) {
			types = append(types, et)
		}
	}
	for _, et := range types {
		r.PerType = append(r.PerType, TypeMetrics{Type: et, Metrics: NewMetrics(result.Counts.ByType[et])})
	}
	return r
}

// Type returns the metrics row of an entity type.
func (r *Report) Type(et schema.EntityType) (TypeMetrics, bool) {
	for _, tm := range r.PerType {
		if tm.Type == et {
			return tm, true
		}
	}
	return TypeMetrics{}, false
}

// JSON returns the indented JSON form of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	pooledStyle = lipgloss.NewStyle().Italic(true).Padding(0, 1)
)

// Render formats the report as a table followed by a summary line.
func (r *Report) Render() string {
	row := func(name string, m Metrics) []string {
		return []string{
			name,
			fmt.Sprintf("%.4f", m.Precision),
			fmt.Sprintf("%.4f", m.Recall),
			fmt.Sprintf("%.4f", m.F1),
			strconv.Itoa(m.Support),
			strconv.Itoa(m.Predicted),
			strconv.Itoa(m.TP),
			strconv.Itoa(m.FP),
			strconv.Itoa(m.FN),
			strconv.Itoa(m.Truncated),
		}
	}
	rows := make([][]string, 0, len(r.PerType)+1)
	for _, tm := range r.PerType {
		rows = append(rows, row(string(tm.Type), tm.Metrics))
	}
	pooledRow := len(rows)
	rows = append(rows, row("pooled", r.Pooled))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("type", "precision", "recall", "f1", "support", "predicted", "tp", "fp", "fn", "truncated").
		Rows(rows...).
		StyleFunc(func(rowIdx, col int) lipgloss.Style {
			switch {
			case rowIdx == table.HeaderRow:
				return headerStyle
			case rowIdx == pooledRow:
				return pooledStyle
			}
			return cellStyle
		})
	return fmt.Sprintf("%s\nmacro-F1 %.4f over %d types, %d examples, %d skipped (run %s)\n",
		t.Render(), r.MacroF1, len(r.scoredTypes()), r.Examples, r.Skipped, r.RunID)
}

func (r *Report) scoredTypes() []schema.EntityType {
	var types []schema.EntityType
	for _, tm := range r.PerType {
		if tm.Scored() {
			types = append(types, tm.Type)
		}
	}
	return types
}
