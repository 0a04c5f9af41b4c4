// Package spans holds the value types shared by every stage of the pipeline: entity spans over a
// text and the token offsets produced by a tokenizer.
//
// Offsets are byte offsets into the UTF-8 text, suitable for slicing Go strings directly:
// text[span.Start:span.End].
package spans

import (
	"fmt"
	"slices"

	"github.com/gomlx/piispans/schema"
)

// Span is a contiguous range [Start, End) of a text associated with one entity type.
// Spans are immutable values.
type Span struct {
	Start int
	End   int
	Type  schema.EntityType
}

// String implements fmt.Stringer.
func (s Span) String() string {
	return fmt.Sprintf("%s[%d:%d]", s.Type, s.Start, s.End)
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether the two ranges share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Shift returns the span moved by delta bytes.
func (s Span) Shift(delta int) Span {
	return Span{Start: s.Start + delta, End: s.End + delta, Type: s.Type}
}

// Compare orders spans by start, then end, then type. It can be used with slices.SortFunc.
func Compare(a, b Span) int {
	switch {
	case a.Start != b.Start:
		return a.Start - b.Start
	case a.End != b.End:
		return a.End - b.End
	case a.Type < b.Type:
		return -1
	case a.Type > b.Type:
		return 1
	}
	return 0
}

// Sorted returns a sorted copy of the spans.
func Sorted(list []Span) []Span {
	out := slices.Clone(list)
	slices.SortFunc(out, Compare)
	return out
}

// Token is the byte range of one model position in the source text, or NoOffset for special
// tokens ([CLS], [SEP], padding) that carry no text.
type Token struct {
	Start int
	End   int
}

// NoOffset marks tokens with no source-text mapping.
var NoOffset = Token{Start: -1, End: -1}

// IsSpecial reports whether the token has no source-text mapping.
func (t Token) IsSpecial() bool { return t.Start < 0 || t.End < 0 }

// Intersect returns the number of bytes the token shares with the span.
func (t Token) Intersect(s Span) int {
	if t.IsSpecial() {
		return 0
	}
	return max(0, min(t.End, s.End)-max(t.Start, s.Start))
}

// IgnoreTag is the per-token label assigned to special tokens. It is never a valid schema id and
// is skipped by loss functions and by the decoder.
const IgnoreTag = -100

// WindowEnd returns the end of the text window covered by tokens: the largest End among tokens
// with offsets. It returns 0 if there are no such tokens.
func WindowEnd(tokens []Token) int {
	end := 0
	for _, tok := range tokens {
		if !tok.IsSpecial() && tok.End > end {
			end = tok.End
		}
	}
	return end
}

// Example is a text with its gold spans.
type Example struct {
	ID    string
	Text  string
	Spans []Span
}
