package bio

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagNames converts tag ids to strings, for readable assertions.
func tagNames(t *testing.T, s *schema.Schema, ids []int) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		if id == spans.IgnoreTag {
			names[i] = "-"
			continue
		}
		tag, ok := s.Tag(id)
		require.True(t, ok, "tag id %d", id)
		names[i] = tag
	}
	return names
}

func tagIDs(t *testing.T, s *schema.Schema, names ...string) []int {
	ids := make([]int, len(names))
	for i, name := range names {
		if name == "-" {
			ids[i] = spans.IgnoreTag
			continue
		}
		id, ok := s.TagID(name)
		require.True(t, ok, "tag %q", name)
		ids[i] = id
	}
	return ids
}

func TestEncodeDecodePhoneScenario(t *testing.T) {
	s := schema.Default()
	text := "call me at five five five one two three four"
	gold := []spans.Span{{Start: 11, End: 39, Type: schema.Phone}}
	require.Equal(t, "five five five one two three", text[11:39])
	tokens := []spans.Token{
		spans.NoOffset,
		{Start: 0, End: 4}, {Start: 5, End: 7}, {Start: 8, End: 10},
		{Start: 11, End: 15}, {Start: 16, End: 20}, {Start: 21, End: 25}, {Start: 26, End: 29}, {Start: 30, End: 33}, {Start: 34, End: 39},
		{Start: 40, End: 44},
		spans.NoOffset,
	}

	enc, err := Encode(s, text, gold, tokens)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-", "O", "O", "O",
		"B-PHONE", "I-PHONE", "I-PHONE", "I-PHONE", "I-PHONE", "I-PHONE",
		"O", "-",
	}, tagNames(t, s, enc.TagIDs))
	assert.False(t, enc.Lossy)
	assert.Empty(t, enc.Dropped)

	decoded, err := Decode(s, enc.TagIDs, tokens)
	require.NoError(t, err)
	assert.Equal(t, gold, decoded)
}

func TestDecodeOrphanInside(t *testing.T) {
	s := schema.Default()
	tokens := []spans.Token{{Start: 0, End: 9}, {Start: 10, End: 14}, {Start: 14, End: 20}, {Start: 21, End: 25}}
	decoded, err := Decode(s, tagIDs(t, s, "O", "I-EMAIL", "I-EMAIL", "O"), tokens)
	require.NoError(t, err)
	assert.Equal(t, []spans.Span{{Start: 10, End: 20, Type: schema.Email}}, decoded)
}

func TestDecode(t *testing.T) {
	s := schema.Default()
	tokens := []spans.Token{spans.NoOffset, {Start: 0, End: 4}, {Start: 5, End: 9}, {Start: 10, End: 14}, {Start: 15, End: 19}, {Start: 20, End: 24}, spans.NoOffset}
	tests := []struct {
		name string
		tags []string
		want []spans.Span
	}{
		{
			name: "all outside",
			tags: []string{"-", "O", "O", "O", "O", "O", "-"},
		},
		{
			name: "span open at end of sequence",
			tags: []string{"-", "O", "O", "O", "B-CITY", "I-CITY", "-"},
			want: []spans.Span{{Start: 15, End: 24, Type: schema.City}},
		},
		{
			name: "same type separated by O is not merged",
			tags: []string{"-", "B-PHONE", "O", "B-PHONE", "I-PHONE", "O", "-"},
			want: []spans.Span{{Start: 0, End: 4, Type: schema.Phone}, {Start: 10, End: 19, Type: schema.Phone}},
		},
		{
			name: "adjacent B tags give adjacent spans",
			tags: []string{"-", "B-PHONE", "B-PHONE", "O", "O", "O", "-"},
			want: []spans.Span{{Start: 0, End: 4, Type: schema.Phone}, {Start: 5, End: 9, Type: schema.Phone}},
		},
		{
			name: "I of another type opens a new span",
			tags: []string{"-", "B-EMAIL", "I-EMAIL", "I-PHONE", "I-PHONE", "O", "-"},
			want: []spans.Span{{Start: 0, End: 9, Type: schema.Email}, {Start: 10, End: 19, Type: schema.Phone}},
		},
		{
			name: "ignore tag on a real token is skipped",
			tags: []string{"-", "B-DATE", "-", "I-DATE", "O", "O", "-"},
			want: []spans.Span{{Start: 0, End: 14, Type: schema.Date}},
		},
		{
			name: "tags on special tokens are ignored",
			tags: []string{"B-CITY", "O", "O", "O", "O", "O", "I-CITY"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(s, tagIDs(t, s, tt.tags...), tokens)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, decoded)
			} else {
				assert.Equal(t, tt.want, decoded)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	s := schema.Default()
	_, err := Decode(s, []int{0, 0}, []spans.Token{{Start: 0, End: 1}})
	require.Error(t, err)
	_, err = Decode(s, []int{s.NumTags()}, []spans.Token{{Start: 0, End: 1}})
	require.Error(t, err)
	_, _, err = DecodeWithScores(s, []int{0}, nil, []spans.Token{{Start: 0, End: 1}})
	require.Error(t, err)
}

func TestDecodeWithScores(t *testing.T) {
	s := schema.Default()
	tokens := []spans.Token{{Start: 0, End: 4}, {Start: 5, End: 9}, {Start: 10, End: 14}, {Start: 15, End: 19}}
	decoded, scores, err := DecodeWithScores(s, tagIDs(t, s, "B-CITY", "I-CITY", "O", "B-DATE"),
		[]float32{0.9, 0.7, 0.99, 0.5}, tokens)
	require.NoError(t, err)
	assert.Equal(t, []spans.Span{{Start: 0, End: 9, Type: schema.City}, {Start: 15, End: 19, Type: schema.Date}}, decoded)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.8, scores[0], 1e-6)
	assert.InDelta(t, 0.5, scores[1], 1e-6)
}

func TestEncodeMajorityOverlap(t *testing.T) {
	s := schema.Default()
	text := "abcdefghijklmnopqrstuvwxyz"
	gold := []spans.Span{{Start: 10, End: 20, Type: schema.Email}}

	tests := []struct {
		name   string
		tokens []spans.Token
		want   []string
		lossy  []int
	}{
		{
			name:   "span owns most of a straddling first token",
			tokens: []spans.Token{{Start: 0, End: 8}, {Start: 8, End: 14}, {Start: 14, End: 20}, {Start: 20, End: 26}},
			want:   []string{"O", "B-EMAIL", "I-EMAIL", "O"},
			lossy:  []int{1},
		},
		{
			name:   "outside owns most of a straddling token",
			tokens: []spans.Token{{Start: 0, End: 5}, {Start: 5, End: 12}, {Start: 12, End: 20}, {Start: 20, End: 26}},
			want:   []string{"O", "O", "I-EMAIL", "O"},
			lossy:  []int{1},
		},
		{
			name:   "tie goes to the earlier outside run",
			tokens: []spans.Token{{Start: 0, End: 8}, {Start: 8, End: 12}, {Start: 12, End: 20}, {Start: 20, End: 26}},
			want:   []string{"O", "O", "I-EMAIL", "O"},
			lossy:  []int{1},
		},
		{
			name:   "tie goes to the span starting before the trailing outside run",
			tokens: []spans.Token{{Start: 0, End: 10}, {Start: 10, End: 18}, {Start: 18, End: 22}, {Start: 22, End: 26}},
			want:   []string{"O", "B-EMAIL", "I-EMAIL", "O"},
			lossy:  []int{2},
		},
		{
			name:   "zero-length token is outside",
			tokens: []spans.Token{{Start: 0, End: 10}, {Start: 10, End: 10}, {Start: 10, End: 20}, {Start: 20, End: 26}},
			want:   []string{"O", "O", "B-EMAIL", "O"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Encode(s, text, gold, tt.tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tagNames(t, s, enc.TagIDs))
			assert.Equal(t, len(tt.lossy) > 0, enc.Lossy)
			assert.Equal(t, tt.lossy, enc.LossyTokens)
		})
	}
}

func TestEncodeInsideAfterLostStart(t *testing.T) {
	s := schema.Default()
	text := "abcdefghijklmnopqrstuvwxyz"
	gold := []spans.Span{{Start: 10, End: 20, Type: schema.Email}}
	// The token holding the span start goes to O: the next token is still inside the span.
	tokens := []spans.Token{{Start: 0, End: 5}, {Start: 5, End: 12}, {Start: 12, End: 16}, {Start: 16, End: 20}, {Start: 20, End: 26}}
	enc, err := Encode(s, text, gold, tokens)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "O", "I-EMAIL", "I-EMAIL", "O"}, tagNames(t, s, enc.TagIDs))

	// Orphan I- recovery decodes the surviving part of the span.
	decoded, err := Decode(s, enc.TagIDs, tokens)
	require.NoError(t, err)
	assert.Equal(t, []spans.Span{{Start: 12, End: 20, Type: schema.Email}}, decoded)

	// A token starting before the span start opens it.
	enc, err = Encode(s, text, gold, []spans.Token{{Start: 0, End: 8}, {Start: 8, End: 16}, {Start: 16, End: 20}, {Start: 20, End: 26}})
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "B-EMAIL", "I-EMAIL", "O"}, tagNames(t, s, enc.TagIDs))
}

func TestEncodeTieBetweenSpans(t *testing.T) {
	s := schema.Default()
	text := "aaaabbbb cc"
	gold := []spans.Span{{Start: 0, End: 4, Type: schema.City}, {Start: 4, End: 8, Type: schema.Location}}
	// One token covering both spans equally: the earlier-starting span wins.
	enc, err := Encode(s, text, gold, []spans.Token{{Start: 0, End: 8}, {Start: 9, End: 11}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B-CITY", "O"}, tagNames(t, s, enc.TagIDs))
	assert.True(t, enc.Lossy)
}

func TestEncodeTruncation(t *testing.T) {
	s := schema.Default()
	text := "mail john at gmail dot com from boston"
	gold := []spans.Span{{Start: 5, End: 26, Type: schema.Email}, {Start: 32, End: 38, Type: schema.City}}
	// Truncated window: tokens stop in the middle of the email.
	tokens := []spans.Token{spans.NoOffset, {Start: 0, End: 4}, {Start: 5, End: 9}, {Start: 10, End: 12}, spans.NoOffset}
	enc, err := Encode(s, text, gold, tokens)
	require.NoError(t, err)
	assert.Equal(t, []string{"-", "O", "O", "O", "-"}, tagNames(t, s, enc.TagIDs))
	require.Len(t, enc.Dropped, 2)
	assert.Equal(t, TruncationMismatch{Span: gold[0], WindowEnd: 12}, enc.Dropped[0])
	assert.Empty(t, enc.Spans)
}

func TestEncodeErrors(t *testing.T) {
	s := schema.Default()
	text := "hello world"
	_, err := Encode(s, text, []spans.Span{{Start: 0, End: 5, Type: schema.City}, {Start: 3, End: 8, Type: schema.City}}, nil)
	var malformed *spans.MalformedError
	require.True(t, errors.As(err, &malformed))

	_, err = Encode(s, text, nil, []spans.Token{{Start: 0, End: 20}})
	require.Error(t, err)
}

// TestRoundTrip checks decode(encode(spans)) == spans on randomly generated examples whose token
// boundaries coincide with span boundaries.
func TestRoundTrip(t *testing.T) {
	s := schema.Default()
	rng := rand.New(rand.NewPCG(7, 11))
	types := s.EntityTypes()
	for range 200 {
		var (
			sb     strings.Builder
			tokens = []spans.Token{spans.NoOffset}
			gold   []spans.Span
		)
		numWords := 1 + rng.IntN(20)
		inSpan := false
		for w := range numWords {
			if w > 0 {
				sb.WriteByte(' ')
			}
			// Randomly open or close a span at word boundaries.
			if !inSpan && rng.IntN(3) == 0 {
				gold = append(gold, spans.Span{Start: sb.Len(), Type: types[rng.IntN(len(types))]})
				inSpan = true
			}
			wordLen := 1 + rng.IntN(8)
			// Split words into sub-word pieces.
			for remaining := wordLen; remaining > 0; {
				piece := 1 + rng.IntN(remaining)
				start := sb.Len()
				sb.WriteString(strings.Repeat("x", piece))
				tokens = append(tokens, spans.Token{Start: start, End: sb.Len()})
				remaining -= piece
			}
			if inSpan && (rng.IntN(2) == 0 || w == numWords-1) {
				gold[len(gold)-1].End = sb.Len()
				inSpan = false
			}
		}
		tokens = append(tokens, spans.NoOffset)
		text := sb.String()

		enc, err := Encode(s, text, gold, tokens)
		require.NoError(t, err)
		require.False(t, enc.Lossy)
		decoded, err := Decode(s, enc.TagIDs, tokens)
		require.NoError(t, err)
		if len(gold) == 0 {
			require.Empty(t, decoded)
		} else {
			require.Equal(t, gold, decoded, "text=%q", text)
		}
	}
}
