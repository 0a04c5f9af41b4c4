package generator

import (
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
)

// Transform is a text-noising step applied to the substring owned by one span.
//
// Apply must only modify text[span.Start:span.End]. It returns the new text, the new span
// covering the transformed value, and the length delta (new length - old length).
type Transform interface {
	Name() string
	AppliesTo(et schema.EntityType) bool
	Apply(text string, span spans.Span) (string, spans.Span, int)
}

// replaceSpan replaces the span's substring by value.
func replaceSpan(text string, span spans.Span, value string) (string, spans.Span, int) {
	newSpan := spans.Span{Start: span.Start, End: span.Start + len(value), Type: span.Type}
	return text[:span.Start] + value + text[span.End:], newSpan, len(value) - span.Len()
}

// DigitWords spells digits the way they are usually read out, with "oh" for zero.
var DigitWords = [10]string{"oh", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// SpokenDigits spells out every digit of phone and credit card numbers: "555" -> "five five five".
// Spaces and dashes between digits are dropped, other characters are kept as separate words.
type SpokenDigits struct{}

var _ Transform = SpokenDigits{}

// Name implements Transform.
func (SpokenDigits) Name() string { return "spoken_digits" }

// AppliesTo implements Transform.
func (SpokenDigits) AppliesTo(et schema.EntityType) bool {
	return et == schema.Phone || et == schema.CreditCard
}

// Apply implements Transform.
func (SpokenDigits) Apply(text string, span spans.Span) (string, spans.Span, int) {
	words := make([]string, 0, span.Len())
	for _, r := range text[span.Start:span.End] {
		switch {
		case r >= '0' && r <= '9':
			words = append(words, DigitWords[r-'0'])
		case r == '-' || unicode.IsSpace(r):
		default:
			words = append(words, string(r))
		}
	}
	return replaceSpan(text, span, strings.Join(words, " "))
}

// SpokenEmail reads out an email address: "john@gmail.com" -> "john at gmail dot com".
type SpokenEmail struct{}

var _ Transform = SpokenEmail{}

// Name implements Transform.
func (SpokenEmail) Name() string { return "spoken_email" }

// AppliesTo implements Transform.
func (SpokenEmail) AppliesTo(et schema.EntityType) bool { return et == schema.Email }

var emailReplacer = strings.NewReplacer("@", " at ", ".", " dot ")

// Apply implements Transform.
func (SpokenEmail) Apply(text string, span spans.Span) (string, spans.Span, int) {
	return replaceSpan(text, span, emailReplacer.Replace(text[span.Start:span.End]))
}

// Date phrasings used by SpokenDate.
const (
	DateMonthDayYear = iota
	DateDayMonthYear
	DateMonthTheDayYear
	numDateStyles
)

// SpokenDate reorders an ISO date ("2024-03-14") into a spoken phrasing such as "march 14 2024",
// "14 march 2024" or "march the 14 2024". Values that are not ISO dates are left unchanged.
type SpokenDate struct {
	Style int
}

var _ Transform = SpokenDate{}

// Name implements Transform.
func (SpokenDate) Name() string { return "spoken_date" }

// AppliesTo implements Transform.
func (SpokenDate) AppliesTo(et schema.EntityType) bool { return et == schema.Date }

// Apply implements Transform.
func (d SpokenDate) Apply(text string, span spans.Span) (string, spans.Span, int) {
	date, err := time.Parse(time.DateOnly, text[span.Start:span.End])
	if err != nil {
		return text, span, 0
	}
	month := strings.ToLower(date.Month().String())
	day := date.Format("2")
	year := date.Format("2006")
	var spoken string
	switch d.Style {
	case DateDayMonthYear:
		spoken = day + " " + month + " " + year
	case DateMonthTheDayYear:
		spoken = month + " the " + day + " " + year
	default:
		spoken = month + " " + day + " " + year
	}
	return replaceSpan(text, span, spoken)
}

// DefaultTransforms returns the noise pipeline, in application order. Per-example choices (the
// date phrasing) are drawn from rng.
func DefaultTransforms(rng *rand.Rand) []Transform {
	return []Transform{
		SpokenEmail{},
		SpokenDigits{},
		SpokenDate{Style: rng.IntN(numDateStyles)},
	}
}
