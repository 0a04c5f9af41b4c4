// Package hftokenizer implements an offset-tracking tokenizer for HuggingFace's tokenizer.json
// format, for WordPiece (BERT-style) models.
//
// Normalization (cleanup, lowercasing, accent stripping) is done one source character at a time,
// so every token keeps the byte range it came from in the original text.
package hftokenizer

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/gomlx/piispans/spans"
	"github.com/gomlx/piispans/tokenizers/api"
)

// TokenizerJSON represents the parts of HuggingFace's tokenizer.json file used for tokenization.
type TokenizerJSON struct {
	Version      string        `json:"version"`
	AddedTokens  []AddedToken  `json:"added_tokens"`
	Normalizer   *Normalizer   `json:"normalizer"`
	PreTokenizer *PreTokenizer `json:"pre_tokenizer"`
	Model        Model         `json:"model"`
}

// AddedToken represents a special token added to the vocabulary.
type AddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

// Normalizer represents the normalizer configuration.
type Normalizer struct {
	Type         string       `json:"type"`
	Lowercase    bool         `json:"lowercase"`
	StripAccents *bool        `json:"strip_accents"`
	CleanText    *bool        `json:"clean_text"`
	Normalizers  []Normalizer `json:"normalizers"`
}

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type          string         `json:"type"`
	PreTokenizers []PreTokenizer `json:"pretokenizers"`
}

// Model represents the tokenizer model.
type Model struct {
	Type                    string         `json:"type"`
	Vocab                   map[string]int `json:"vocab"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
}

// Tokenizer implements api.Tokenizer for WordPiece tokenizer.json files.
type Tokenizer struct {
	config api.Config
	vocab  map[string]int
	prefix string

	maxCharsPerWord int

	// Normalization and pre-tokenization steps.
	cleanText, lowercase, stripAccents, splitPunctuation bool

	unkID, clsID, sepID, padID, maskID int
}

// Compile time assert that Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// NewFromFile creates a tokenizer from a local tokenizer.json file path.
func NewFromFile(config api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a tokenizer from tokenizer.json content.
func NewFromContent(config api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	if tj.Model.Type != "WordPiece" {
		return nil, errors.Errorf("tokenizer model type %q not supported, only WordPiece", tj.Model.Type)
	}
	if len(tj.Model.Vocab) == 0 {
		return nil, errors.New("tokenizer.json has an empty vocabulary")
	}

	t := &Tokenizer{
		config:          config,
		vocab:           tj.Model.Vocab,
		prefix:          tj.Model.ContinuingSubwordPrefix,
		maxCharsPerWord: tj.Model.MaxInputCharsPerWord,
		unkID:           -1,
		clsID:           -1,
		sepID:           -1,
		padID:           -1,
		maskID:          -1,
	}
	if t.prefix == "" {
		t.prefix = "##"
	}
	if t.maxCharsPerWord <= 0 {
		t.maxCharsPerWord = 100
	}
	if tj.Normalizer != nil {
		t.configureNormalizer(tj.Normalizer)
	}
	if tj.PreTokenizer != nil {
		t.configurePreTokenizer(tj.PreTokenizer)
	}
	t.resolveSpecialTokens(&tj)
	if t.unkID < 0 {
		return nil, errors.Errorf("unknown token %q not found in the vocabulary", tj.Model.UnkToken)
	}
	return t, nil
}

func (t *Tokenizer) configureNormalizer(n *Normalizer) {
	switch n.Type {
	case "Lowercase":
		t.lowercase = true
	case "StripAccents":
		t.stripAccents = true
	case "BertNormalizer":
		t.cleanText = n.CleanText == nil || *n.CleanText
		t.lowercase = t.lowercase || n.Lowercase
		// Accents are stripped by default when lowercasing.
		if n.StripAccents != nil {
			t.stripAccents = *n.StripAccents
		} else {
			t.stripAccents = t.stripAccents || n.Lowercase
		}
	case "Sequence":
		for i := range n.Normalizers {
			t.configureNormalizer(&n.Normalizers[i])
		}
	}
}

func (t *Tokenizer) configurePreTokenizer(pt *PreTokenizer) {
	switch pt.Type {
	case "BertPreTokenizer", "Whitespace", "Punctuation":
		t.splitPunctuation = true
	case "Sequence":
		for i := range pt.PreTokenizers {
			t.configurePreTokenizer(&pt.PreTokenizers[i])
		}
	}
}

// resolveSpecialTokens maps special tokens to their IDs.
func (t *Tokenizer) resolveSpecialTokens(tj *TokenizerJSON) {
	if id, ok := t.vocab[tj.Model.UnkToken]; ok {
		t.unkID = id
	}
	for _, at := range tj.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]":
			t.unkID = at.ID
		case "[PAD]":
			t.padID = at.ID
		case "[CLS]":
			t.clsID = at.ID
		case "[SEP]":
			t.sepID = at.ID
		case "[MASK]":
			t.maskID = at.ID
		}
	}
	for content, id := range map[string]*int{"[CLS]": &t.clsID, "[SEP]": &t.sepID, "[PAD]": &t.padID} {
		if *id < 0 {
			if vocabID, ok := t.vocab[content]; ok {
				*id = vocabID
			}
		}
	}
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var id int
	switch token {
	case api.TokUnknown:
		id = t.unkID
	case api.TokPad:
		id = t.padID
	case api.TokBeginningOfSentence, api.TokClassification:
		id = t.clsID
	case api.TokEndOfSentence:
		id = t.sepID
	case api.TokMask:
		id = t.maskID
	default:
		id = -1
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not found", token)
	}
	return id, nil
}

// normRune is one normalized character and the byte range of the source character it came from.
type normRune struct {
	r          rune
	start, end int
}

// normalize applies the normalizer to the text, keeping the source offsets.
func (t *Tokenizer) normalize(text string) []normRune {
	out := make([]normRune, 0, len(text))
	for i, size := 0, 0; i < len(text); i += size {
		var r rune
		r, size = utf8.DecodeRuneInString(text[i:])
		end := i + size
		if t.cleanText {
			if r == 0 || r == unicode.ReplacementChar || isControl(r) {
				continue
			}
			if isWhitespace(r) {
				r = ' '
			}
		}
		expanded := string(r)
		if t.lowercase {
			expanded = strings.ToLower(expanded)
		}
		if t.stripAccents {
			expanded = removeAccents(norm.NFD.String(expanded))
		}
		for _, nr := range expanded {
			out = append(out, normRune{r: nr, start: i, end: end})
		}
	}
	return out
}

// preTokenize splits the normalized text into words on whitespace and, if configured, on
// punctuation, which becomes a word of its own.
func (t *Tokenizer) preTokenize(normalized []normRune) [][]normRune {
	var words [][]normRune
	wordStart := -1
	for i, nr := range normalized {
		switch {
		case isWhitespace(nr.r):
			if wordStart >= 0 {
				words = append(words, normalized[wordStart:i])
				wordStart = -1
			}
		case t.splitPunctuation && isPunctuation(nr.r):
			if wordStart >= 0 {
				words = append(words, normalized[wordStart:i])
				wordStart = -1
			}
			words = append(words, normalized[i:i+1])
		default:
			if wordStart < 0 {
				wordStart = i
			}
		}
	}
	if wordStart >= 0 {
		words = append(words, normalized[wordStart:])
	}
	return words
}

// wordPieceTokenize implements greedy longest-match-first WordPiece. A word that can't be fully
// covered by the vocabulary becomes a single unknown token.
func (t *Tokenizer) wordPieceTokenize(word []normRune, ids []int, offsets []spans.Token) ([]int, []spans.Token) {
	wordOffset := spans.Token{Start: word[0].start, End: word[len(word)-1].end}
	if len(word) > t.maxCharsPerWord {
		return append(ids, t.unkID), append(offsets, wordOffset)
	}
	runes := make([]rune, len(word))
	for i, nr := range word {
		runes[i] = nr.r
	}

	numTokens := len(ids)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for start < end {
			substr := string(runes[start:end])
			if start > 0 {
				substr = t.prefix + substr
			}
			if id, ok := t.vocab[substr]; ok {
				ids = append(ids, id)
				offsets = append(offsets, spans.Token{Start: word[start].start, End: word[end-1].end})
				found = true
				break
			}
			end--
		}
		if !found {
			return append(ids[:numTokens], t.unkID), append(offsets[:numTokens], wordOffset)
		}
		start = end
	}
	return ids, offsets
}

// Tokenize implements api.Tokenizer.
func (t *Tokenizer) Tokenize(text string) (*api.Encoding, error) {
	var ids []int
	var offsets []spans.Token
	for _, word := range t.preTokenize(t.normalize(text)) {
		ids, offsets = t.wordPieceTokenize(word, ids, offsets)
	}

	addSpecial := t.config.AddSpecialTokens && t.clsID >= 0 && t.sepID >= 0
	numSpecial := 0
	if addSpecial {
		numSpecial = 2
	}
	enc := &api.Encoding{}
	if limit := t.config.ContentLength(numSpecial); limit >= 0 && len(ids) > limit {
		ids, offsets = ids[:limit], offsets[:limit]
		enc.Truncated = true
	}
	if addSpecial {
		enc.IDs = make([]int, 0, len(ids)+2)
		enc.IDs = append(append(append(enc.IDs, t.clsID), ids...), t.sepID)
		enc.Offsets = make([]spans.Token, 0, len(offsets)+2)
		enc.Offsets = append(append(append(enc.Offsets, spans.NoOffset), offsets...), spans.NoOffset)
	} else {
		enc.IDs, enc.Offsets = ids, offsets
	}
	return enc, nil
}

// Helper functions

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			result.WriteRune(r)
		}
	}
	return result.String()
}
