// Package sentencepiece implements an offset-tracking api.Tokenizer based on the SentencePiece
// tokenizer.
package sentencepiece

import (
	"strconv"
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/gomlx/piispans/spans"
	"github.com/gomlx/piispans/tokenizers/api"
)

// Metaspace is the character SentencePiece uses in pieces in place of spaces (U+2581).
const Metaspace = "▁"

// NewFromPath creates a SentencePiece tokenizer from a "tokenizer.model" file, which must be a
// SentencePiece Model proto.
func NewFromPath(config api.Config, filePath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", filePath)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
		config:    config,
	}, nil
}

// Tokenizer implements api.Tokenizer based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	config api.Config
}

// Compile time assert that sentencepiece.Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// Tokenize implements api.Tokenizer. When Config.AddSpecialTokens is set and the model defines
// them, the sequence is wrapped with the beginning and end of sentence tokens.
func (p *Tokenizer) Tokenize(text string) (*api.Encoding, error) {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	offsets := make([]spans.Token, len(tokens))
	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
		pieces[i] = tok.Text
	}
	AlignPieces(text, pieces, offsets)

	var prefix, suffix []int
	if p.config.AddSpecialTokens {
		if p.Info.BeginningOfSentenceID >= 0 {
			prefix = append(prefix, p.Info.BeginningOfSentenceID)
		}
		if p.Info.EndOfSentenceID >= 0 {
			suffix = append(suffix, p.Info.EndOfSentenceID)
		}
	}
	enc := &api.Encoding{}
	if limit := p.config.ContentLength(len(prefix) + len(suffix)); limit >= 0 && len(ids) > limit {
		ids, offsets = ids[:limit], offsets[:limit]
		enc.Truncated = true
	}
	enc.IDs = make([]int, 0, len(prefix)+len(ids)+len(suffix))
	enc.Offsets = make([]spans.Token, 0, cap(enc.IDs))
	for _, id := range prefix {
		enc.IDs = append(enc.IDs, id)
		enc.Offsets = append(enc.Offsets, spans.NoOffset)
	}
	enc.IDs = append(enc.IDs, ids...)
	enc.Offsets = append(enc.Offsets, offsets...)
	for _, id := range suffix {
		enc.IDs = append(enc.IDs, id)
		enc.Offsets = append(enc.Offsets, spans.NoOffset)
	}
	return enc, nil
}

// AlignPieces fills offsets with the byte span of each piece in the original text, by matching
// the pieces in order. A leading metaspace stands for the whitespace before the piece, which is
// not included in the span. Byte-fallback pieces ("<0xE2>") cover one byte each.
func AlignPieces(text string, pieces []string, offsets []spans.Token) {
	pos := 0
	for i, piece := range pieces {
		matchPiece, hasLeadingSpace := strings.CutPrefix(piece, Metaspace)

		// Skip any whitespace in the original text before this token
		if hasLeadingSpace {
			for pos < len(text) && isSpace(text[pos]) {
				pos++
			}
		}

		if b, ok := byteFallback(matchPiece); ok {
			if pos < len(text) && text[pos] == b {
				offsets[i] = spans.Token{Start: pos, End: pos + 1}
				pos++
			} else {
				offsets[i] = spans.Token{Start: pos, End: pos}
			}
			continue
		}
		if matchPiece == "" {
			// Piece representing only the space.
			if hasLeadingSpace && pos > 0 && isSpace(text[pos-1]) {
				offsets[i] = spans.Token{Start: pos - 1, End: pos}
			} else {
				offsets[i] = spans.Token{Start: pos, End: pos}
			}
			continue
		}

		start := pos
		if foundAt := findSubstring(text, matchPiece, pos); foundAt >= 0 {
			start = foundAt
			pos = foundAt + len(matchPiece)
		} else {
			// Fallback (e.g. normalized pieces): advance by piece length.
			pos = min(pos+len(matchPiece), len(text))
		}
		offsets[i] = spans.Token{Start: start, End: pos}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// byteFallback parses pieces of the form "<0xNN>".
func byteFallback(piece string) (byte, bool) {
	if len(piece) != 6 || !strings.HasPrefix(piece, "<0x") || piece[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(piece[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// findSubstring finds the first occurrence of substr in s starting from position start.
// Returns the byte position of the match, or -1 if not found.
func findSubstring(s, substr string, start int) int {
	if start >= len(s) {
		return -1
	}
	idx := strings.Index(s[start:], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}
