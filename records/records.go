// Package records reads and writes the JSONL corpora exchanged with the outside world: gold
// example records and prediction records.
//
// On disk, span offsets are character (Unicode code point) offsets. In memory, spans.Span uses
// byte offsets into the UTF-8 text. Conversion happens here, in ToExample and FromExample.
//
// Two error levels are distinguished:
//
//   - *ParseError: the line is not valid JSON or misses a required field. The corpus is unusable
//     and callers should abort.
//   - *spans.MalformedError: the record parses but violates the span invariants (overlap, bounds,
//     unknown label). Callers should skip and count it.
package records

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
)

// SpanRecord is one span of a record, with character offsets.
type SpanRecord struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`

	// Confidence is optional metadata of predictions; it is never used for scoring.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Record is one line of an example or prediction corpus.
type Record struct {
	ID    string       `json:"id,omitempty"`
	Text  string       `json:"text"`
	Spans []SpanRecord `json:"spans"`

	// Line is the 1-based line number the record was read from, 0 if not read from a file.
	Line int `json:"-"`
}

// Name identifies the record in messages: its id, or its line number.
func (r *Record) Name() string {
	if r.ID != "" {
		return fmt.Sprintf("%q", r.ID)
	}
	if r.Line > 0 {
		return fmt.Sprintf("at line %d", r.Line)
	}
	return "<unnamed>"
}

// ParseError reports a line that is not valid JSON or misses a required field.
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

// Error implements error.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying decoding error, if any.
func (e *ParseError) Unwrap() error { return e.Err }

// offsetTable maps character offsets to byte offsets: table[i] is the byte offset of character i,
// and table[runeCount] == len(text). It is nil for ASCII text, where both offsets coincide.
func offsetTable(text string) []int {
	if utf8.RuneCountInString(text) == len(text) {
		return nil
	}
	table := make([]int, 0, len(text)+1)
	for i := range text {
		table = append(table, i)
	}
	return append(table, len(text))
}

func charToByte(table []int, textLen, offset int) (int, bool) {
	if table == nil {
		return offset, offset >= 0 && offset <= textLen
	}
	if offset < 0 || offset >= len(table) {
		return 0, false
	}
	return table[offset], true
}

func byteToChar(table []int, offset int) int {
	if table == nil {
		return offset
	}
	idx, found := slices.BinarySearch(table, offset)
	if !found {
		// Offset in the middle of a multi-byte character: round down to the character start.
		idx--
	}
	return idx
}

// ToExample converts the record into an example with byte offsets, sorting its spans by start.
// The returned confidences are aligned with the example spans (NaN-free; missing values are -1).
//
// Records violating the span invariants for the schema return a *spans.MalformedError.
func (r *Record) ToExample(s *schema.Schema) (spans.Example, []float64, error) {
	ex := spans.Example{ID: r.ID, Text: r.Text, Spans: make([]spans.Span, 0, len(r.Spans))}
	type withConfidence struct {
		span       spans.Span
		confidence float64
	}
	converted := make([]withConfidence, 0, len(r.Spans))
	table := offsetTable(r.Text)
	for i, sr := range r.Spans {
		start, okStart := charToByte(table, len(r.Text), sr.Start)
		end, okEnd := charToByte(table, len(r.Text), sr.End)
		if !okStart || !okEnd {
			return spans.Example{}, nil, &spans.MalformedError{Record: r.Name(),
				Reason: fmt.Sprintf("span %d [%d, %d) out of bounds of the text", i, sr.Start, sr.End)}
		}
		confidence := -1.0
		if sr.Confidence != nil {
			confidence = *sr.Confidence
		}
		converted = append(converted, withConfidence{
			span:       spans.Span{Start: start, End: end, Type: schema.EntityType(sr.Label)},
			confidence: confidence,
		})
	}
	slices.SortStableFunc(converted, func(a, b withConfidence) int { return spans.Compare(a.span, b.span) })
	confidences := make([]float64, len(converted))
	for i, c := range converted {
		ex.Spans = append(ex.Spans, c.span)
		confidences[i] = c.confidence
	}
	if err := spans.Validate(ex.Spans, len(ex.Text), s); err != nil {
		if malformed, ok := err.(*spans.MalformedError); ok {
			malformed.Record = r.Name()
		}
		return spans.Example{}, nil, err
	}
	return ex, confidences, nil
}

// FromExample converts an example to a record with character offsets. confidences may be nil;
// otherwise it must be aligned with ex.Spans, and negative values are omitted.
func FromExample(ex spans.Example, confidences []float64) Record {
	r := Record{ID: ex.ID, Text: ex.Text, Spans: make([]SpanRecord, 0, len(ex.Spans))}
	table := offsetTable(ex.Text)
	for i, span := range ex.Spans {
		sr := SpanRecord{
			Start: byteToChar(table, span.Start),
			End:   byteToChar(table, span.End),
			Label: string(span.Type),
		}
		if i < len(confidences) && confidences[i] >= 0 {
			c := confidences[i]
			sr.Confidence = &c
		}
		r.Spans = append(r.Spans, sr)
	}
	return r
}
