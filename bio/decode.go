package bio

import (
	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
	"github.com/pkg/errors"
)

// Decode reconstructs spans from per-token tag ids.
//
// Tokens that are special or tagged spans.IgnoreTag are skipped. B-<T> opens a new span (closing
// any open one); I-<T> extends an open span of the same type and otherwise opens a new one, so a
// malformed sequence never drops a detected entity; O closes the open span. A span covers
// [first token Start, last token End). Spans separated by O are never merged, even when adjacent
// in the text.
func Decode(s *schema.Schema, tagIDs []int, tokens []spans.Token) ([]spans.Span, error) {
	decoded, _, err := decode(s, tagIDs, nil, tokens)
	return decoded, err
}

// DecodeWithScores is like Decode, but also returns for each span the mean of the per-token
// scores (usually the probability of the predicted tag) of its tokens.
func DecodeWithScores(s *schema.Schema, tagIDs []int, scores []float32, tokens []spans.Token) ([]spans.Span, []float32, error) {
	if len(scores) != len(tagIDs) {
		return nil, nil, errors.Errorf("got %d scores for %d tags", len(scores), len(tagIDs))
	}
	return decode(s, tagIDs, scores, tokens)
}

type openSpan struct {
	span     spans.Span
	scoreSum float32
	numTok   int
}

func decode(s *schema.Schema, tagIDs []int, scores []float32, tokens []spans.Token) ([]spans.Span, []float32, error) {
	if len(tagIDs) != len(tokens) {
		return nil, nil, errors.Errorf("got %d tags for %d tokens", len(tagIDs), len(tokens))
	}
	var (
		result     []spans.Span
		meanScores []float32
		open       *openSpan
	)
	closeOpen := func() {
		if open == nil {
			return
		}
		result = append(result, open.span)
		if scores != nil {
			meanScores = append(meanScores, open.scoreSum/float32(open.numTok))
		}
		open = nil
	}

	for i, id := range tagIDs {
		tok := tokens[i]
		if tok.IsSpecial() || id == spans.IgnoreTag {
			continue
		}
		kind, et, ok := s.Lookup(id)
		if !ok {
			return nil, nil, errors.Errorf("token %d: tag id %d outside of the schema vocabulary (%d tags)", i, id, s.NumTags())
		}
		var score float32
		if scores != nil {
			score = scores[i]
		}
		switch {
		case kind == schema.KindOutside:
			closeOpen()
			continue
		case kind == schema.KindInside && open != nil && open.span.Type == et:
			open.span.End = max(open.span.End, tok.End)
		default:
			// B-, or an I- with no open span of its type.
			closeOpen()
			open = &openSpan{span: spans.Span{Start: tok.Start, End: tok.End, Type: et}}
		}
		open.scoreSum += score
		open.numTok++
	}
	closeOpen()

	// Zero-length tokens can only produce empty spans, which are never valid.
	filtered := result[:0]
	var filteredScores []float32
	for i, span := range result {
		if span.End <= span.Start {
			continue
		}
		filtered = append(filtered, span)
		if scores != nil {
			filteredScores = append(filteredScores, meanScores[i])
		}
	}
	return filtered, filteredScores, nil
}
