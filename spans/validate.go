package spans

import (
	"fmt"

	"github.com/gomlx/piispans/schema"
)

// MalformedError reports a record or span set that violates the span invariants: out-of-bounds
// or empty ranges, overlaps, or labels unknown to the schema.
//
// Consumers of corpora skip and count such records instead of aborting.
type MalformedError struct {
	// Record identifies the offending record (id or line number), if known.
	Record string
	Reason string
}

// Error implements error.
func (e *MalformedError) Error() string {
	if e.Record == "" {
		return "malformed record: " + e.Reason
	}
	return fmt.Sprintf("malformed record %s: %s", e.Record, e.Reason)
}

func malformedf(format string, args ...any) *MalformedError {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that list is a valid span set for a text of textLen bytes: every span is
// within bounds and non-empty, its type is declared in s (if s is not nil), and spans are sorted
// by start and pairwise non-overlapping.
func Validate(list []Span, textLen int, s *schema.Schema) error {
	for i, span := range list {
		if span.Start < 0 || span.End > textLen {
			return malformedf("span %d %s out of bounds for text of length %d", i, span, textLen)
		}
		if span.Start >= span.End {
			return malformedf("span %d %s is empty or inverted", i, span)
		}
		if s != nil && !s.Has(span.Type) {
			return malformedf("span %d has unknown label %q", i, span.Type)
		}
		if i > 0 {
			prev := list[i-1]
			if span.Start < prev.Start {
				return malformedf("span %d %s not sorted after %s", i, span, prev)
			}
			if span.Overlaps(prev) {
				return malformedf("span %d %s overlaps %s", i, span, prev)
			}
		}
	}
	return nil
}
