// Package bio converts between character spans and per-token BIO tag sequences.
//
// Encode produces the supervised target for a token classifier from gold spans, and Decode
// reconstructs spans from the classifier's predicted tags. Both walk the token sequence strictly
// left to right and keep no state across calls.
package bio

import (
	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TruncationMismatch records a gold span that could not be tagged because it extends beyond the
// text window covered by the tokens (typically max-length truncation cutting mid-entity).
type TruncationMismatch struct {
	Span      spans.Span
	WindowEnd int
}

// Encoding is the result of Encode.
type Encoding struct {
	// TagIDs holds one tag id per token; special tokens get spans.IgnoreTag.
	TagIDs []int

	// Spans are the gold spans actually encoded, i.e. the input spans minus Dropped.
	Spans []spans.Span

	// Dropped lists the gold spans removed from the target because of truncation.
	Dropped []TruncationMismatch

	// Lossy is set when at least one token straddled a span boundary and its tag had to be
	// resolved by majority overlap. It is a diagnostic only.
	Lossy bool

	// LossyTokens lists the positions of the tokens resolved by majority overlap.
	LossyTokens []int
}

// candidate is a contender for a token's tag: a span, or the outside "span" (index -1).
type candidate struct {
	span    int
	start   int
	overlap int
}

// Encode assigns a BIO tag id to every token.
//
// A token takes the tag of the candidate owning the largest share of its bytes, where the
// candidates are the overlapping spans and O (the bytes not covered by any span, positioned at the
// first such byte). Ties go to the earlier-starting candidate. A token won by a span is tagged
// B-<type> if it starts at or before the span start, I-<type> if it starts strictly after it, even
// when the tokens covering the span start were won by O.
//
// spans must be a valid span set for text (see spans.Validate); otherwise a *spans.MalformedError
// is returned.
func Encode(s *schema.Schema, text string, gold []spans.Span, tokens []spans.Token) (*Encoding, error) {
	if err := spans.Validate(gold, len(text), s); err != nil {
		return nil, err
	}
	for i, tok := range tokens {
		if tok.IsSpecial() {
			continue
		}
		if tok.Start > tok.End || tok.End > len(text) {
			return nil, errors.Errorf("token %d has invalid offsets [%d, %d) for text of length %d",
				i, tok.Start, tok.End, len(text))
		}
	}

	enc := &Encoding{TagIDs: make([]int, len(tokens))}
	windowEnd := spans.WindowEnd(tokens)
	for _, span := range gold {
		if span.End > windowEnd {
			enc.Dropped = append(enc.Dropped, TruncationMismatch{Span: span, WindowEnd: windowEnd})
			klog.V(1).Infof("span %s extends beyond the token window ending at %d: dropped from the target", span, windowEnd)
			continue
		}
		enc.Spans = append(enc.Spans, span)
	}

	first := 0 // First span that may still overlap the current token.
	prevStart := 0
	candidates := make([]candidate, 0, 4)
	for i, tok := range tokens {
		if tok.IsSpecial() {
			enc.TagIDs[i] = spans.IgnoreTag
			continue
		}
		if tok.Start < prevStart {
			// Tokens out of order: restart the span scan.
			first = 0
		}
		prevStart = tok.Start
		for first < len(enc.Spans) && enc.Spans[first].End <= tok.Start {
			first++
		}

		candidates = candidates[:0]
		covered := 0
		outsideStart := -1
		pos := tok.Start
		for j := first; j < len(enc.Spans) && enc.Spans[j].Start < tok.End; j++ {
			span := enc.Spans[j]
			overlap := tok.Intersect(span)
			if overlap == 0 {
				continue
			}
			if outsideStart < 0 && pos < span.Start {
				outsideStart = pos
			}
			pos = span.End
			covered += overlap
			candidates = append(candidates, candidate{span: j, start: span.Start, overlap: overlap})
		}
		if outsideStart < 0 && pos < tok.End {
			outsideStart = pos
		}
		if outside := tok.End - tok.Start - covered; outside > 0 {
			candidates = append(candidates, candidate{span: -1, start: outsideStart, overlap: outside})
		}
		if len(candidates) == 0 {
			// Zero-length token.
			enc.TagIDs[i] = schema.OutsideID
			continue
		}
		if len(candidates) > 1 {
			enc.Lossy = true
			enc.LossyTokens = append(enc.LossyTokens, i)
		}

		winner := candidates[0]
		for _, c := range candidates[1:] {
			if c.overlap > winner.overlap || (c.overlap == winner.overlap && c.start < winner.start) {
				winner = c
			}
		}
		if winner.span < 0 {
			enc.TagIDs[i] = schema.OutsideID
			continue
		}
		span := enc.Spans[winner.span]
		var ok bool
		if tok.Start > span.Start {
			enc.TagIDs[i], ok = s.InsideID(span.Type)
		} else {
			enc.TagIDs[i], ok = s.BeginID(span.Type)
		}
		if !ok {
			// Unreachable: spans were validated against the schema.
			return nil, errors.Errorf("entity type %q not in schema", span.Type)
		}
	}
	return enc, nil
}
