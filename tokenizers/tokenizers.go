// Package tokenizers creates the offset-tracking tokenizers used to align spans with model
// positions. See api.Tokenizer for the interface.
package tokenizers

import (
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/gomlx/piispans/spans"
	"github.com/gomlx/piispans/tokenizers/api"
	"github.com/gomlx/piispans/tokenizers/hftokenizer"
	"github.com/gomlx/piispans/tokenizers/sentencepiece"
)

// New creates a tokenizer from a model file, chosen by its name:
//
//   - "" (no file): the Words tokenizer.
//   - "*.json" (e.g. tokenizer.json): a HuggingFace WordPiece tokenizer.
//   - "*.model" (e.g. tokenizer.model): a SentencePiece tokenizer.
func New(filePath string, config api.Config) (api.Tokenizer, error) {
	switch ext := filepath.Ext(filePath); {
	case filePath == "":
		return &Words{Config: config}, nil
	case ext == ".json":
		tok, err := hftokenizer.NewFromFile(config, filePath)
		if err != nil {
			return nil, err
		}
		return tok, nil
	case ext == ".model":
		tok, err := sentencepiece.NewFromPath(config, filePath)
		if err != nil {
			return nil, err
		}
		return tok, nil
	default:
		return nil, errors.Errorf("can't tell tokenizer type of %q: expected a tokenizer.json or a SentencePiece .model file", filePath)
	}
}

// Window returns a function that reports where the text seen by the model ends (see
// api.Encoding.WindowEnd), or -1 if the tokenizer has no length limit and the whole text is seen.
func Window(tok api.Tokenizer, config api.Config) func(text string) (int, error) {
	return func(text string) (int, error) {
		if config.MaxLength <= 0 {
			return -1, nil
		}
		enc, err := tok.Tokenize(text)
		if err != nil {
			return 0, err
		}
		if !enc.Truncated {
			return -1, nil
		}
		return enc.WindowEnd(), nil
	}
}

// Words is a vocabulary-free tokenizer: every run of letters and digits is a token, and every other
// non-space character is a token of its own. IDs are left nil.
type Words struct {
	Config api.Config
}

var _ api.Tokenizer = &Words{}

// Tokenize implements api.Tokenizer.
func (w *Words) Tokenize(text string) (*api.Encoding, error) {
	var offsets []spans.Token
	wordStart := -1
	for i, size := 0, 0; i < len(text); i += size {
		var r rune
		r, size = utf8.DecodeRuneInString(text[i:])
		isWordChar := unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
		if wordStart >= 0 && !isWordChar {
			offsets = append(offsets, spans.Token{Start: wordStart, End: i})
			wordStart = -1
		}
		switch {
		case isWordChar:
			if wordStart < 0 {
				wordStart = i
			}
		case !unicode.IsSpace(r):
			offsets = append(offsets, spans.Token{Start: i, End: i + size})
		}
	}
	if wordStart >= 0 {
		offsets = append(offsets, spans.Token{Start: wordStart, End: len(text)})
	}

	enc := &api.Encoding{}
	if limit := w.Config.ContentLength(0); limit >= 0 && len(offsets) > limit {
		offsets = offsets[:limit]
		enc.Truncated = true
	}
	enc.Offsets = offsets
	return enc, nil
}
