// Package api defines the Tokenizer API.
// It's just a hack to break the cyclic dependency, and allow the users to import `tokenizers` and get the
// default implementations.
package api

import (
	"fmt"

	"github.com/gomlx/piispans/spans"
)

// Encoding is the output of a tokenizer: one model position per entry.
//
// Offsets are byte ranges into the original text, suitable for slicing Go strings directly:
// text[off.Start:off.End]. Special tokens ([CLS], [SEP], <s>, ...) have spans.NoOffset.
type Encoding struct {
	// IDs are the vocabulary ids, or nil for tokenizers without a vocabulary.
	IDs     []int
	Offsets []spans.Token

	// Truncated is set if the text did not fit in Config.MaxLength positions.
	Truncated bool
}

// Len returns the number of positions.
func (e *Encoding) Len() int { return len(e.Offsets) }

// WindowEnd returns the byte offset where the text seen by the model ends.
func (e *Encoding) WindowEnd() int { return spans.WindowEnd(e.Offsets) }

// Tokenizer splits text into model positions with byte offsets.
type Tokenizer interface {
	Tokenize(text string) (*Encoding, error)
}

// Config common to all tokenizers.
type Config struct {
	// MaxLength is the maximum number of positions, special tokens included. 0 means no limit.
	MaxLength int

	// AddSpecialTokens wraps the sequence with the model special tokens, if it defines any.
	AddSpecialTokens bool
}

// ContentLength returns how many content tokens fit when numSpecial positions are reserved, or -1
// if there is no limit.
func (c Config) ContentLength(numSpecial int) int {
	if c.MaxLength <= 0 {
		return -1
	}
	return max(c.MaxLength-numSpecial, 0)
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{"beginning_of_sentence", "end_of_sentence", "unknown", "pad", "mask", "classification"}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t >= 0 && int(t) < len(specialTokenNames) {
		return specialTokenNames[t]
	}
	return fmt.Sprintf("SpecialToken(%d)", int(t))
}
