package spans

import (
	"testing"

	"github.com/gomlx/piispans/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIntersect(t *testing.T) {
	span := Span{Start: 10, End: 20, Type: schema.Email}
	assert.Equal(t, 4, Token{8, 14}.Intersect(span))
	assert.Equal(t, 10, Token{10, 20}.Intersect(span))
	assert.Equal(t, 0, Token{20, 25}.Intersect(span))
	assert.Equal(t, 0, NoOffset.Intersect(span))
	assert.True(t, NoOffset.IsSpecial())
}

func TestSortedAndWindow(t *testing.T) {
	list := []Span{{5, 9, schema.City}, {0, 3, schema.Email}, {5, 7, schema.City}}
	sorted := Sorted(list)
	assert.Equal(t, []Span{{0, 3, schema.Email}, {5, 7, schema.City}, {5, 9, schema.City}}, sorted)
	assert.Equal(t, Span{5, 9, schema.City}, list[0], "Sorted must not modify its input")

	assert.Equal(t, 14, WindowEnd([]Token{NoOffset, {0, 4}, {5, 14}, NoOffset}))
	assert.Equal(t, 0, WindowEnd([]Token{NoOffset}))
}

func TestValidate(t *testing.T) {
	s := schema.Default()
	require.NoError(t, Validate([]Span{{0, 3, schema.Email}, {3, 6, schema.Phone}}, 6, s))
	require.NoError(t, Validate(nil, 0, s))

	tests := []struct {
		name string
		list []Span
	}{
		{"out of bounds", []Span{{0, 7, schema.Email}}},
		{"negative", []Span{{-1, 2, schema.Email}}},
		{"empty", []Span{{2, 2, schema.Email}}},
		{"unknown label", []Span{{0, 2, "SSN"}}},
		{"overlap", []Span{{0, 3, schema.Email}, {2, 5, schema.Phone}}},
		{"unsorted", []Span{{3, 5, schema.Email}, {0, 2, schema.Phone}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.list, 6, s)
			var malformed *MalformedError
			require.True(t, errors.As(err, &malformed), "expected *MalformedError, got %v", err)
		})
	}
}
