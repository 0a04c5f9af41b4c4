// Package generator produces synthetic (text, gold spans) examples of noisy speech transcripts.
//
// Templates are filled with entity values drawn from pools, recording each span from the actual
// insertion point. A fixed pipeline of noise transforms (spoken digits, spoken emails, spoken
// dates) then rewrites the entity values one span at a time, shifting the following spans. The
// result is always checked: an example whose spans no longer match its text is regenerated, up to
// Config.MaxRetries times.
//
// All randomness comes from an explicit *rand.Rand, so generation is reproducible for a seed.
package generator

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SpanIntegrityError reports a generated example whose spans are inconsistent with its text.
type SpanIntegrityError struct {
	Text     string
	Span     spans.Span
	Expected string
	Reason   string
}

// Error implements error.
func (e *SpanIntegrityError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("span integrity violated for %s: %s (expected %q)", e.Span, e.Reason, e.Expected)
	}
	return fmt.Sprintf("span integrity violated for %s: %s", e.Span, e.Reason)
}

// Default configuration values.
const (
	DefaultMaxRetries     = 5
	DefaultPeriodDropProb = 0.3
	DefaultCommaDropProb  = 0.2
)

// Config of a Generator. Zero values are replaced by defaults.
type Config struct {
	// Templates with {TYPE} placeholders. If empty, the DefaultTemplates whose placeholders are all
	// declared in the schema are used.
	Templates []string

	// Values generates the canonical value of each entity type. Missing types fall back to
	// DefaultPools.ValueFuncs().
	Values map[schema.EntityType]ValueFunc

	// Transforms builds the per-example noise pipeline. Defaults to DefaultTransforms.
	Transforms func(rng *rand.Rand) []Transform

	// PeriodDropProb and CommaDropProb are the probabilities that an example has its template
	// periods (resp. commas) removed. Negative values disable the noise.
	PeriodDropProb float64
	CommaDropProb  float64

	// MaxRetries is the number of regenerations allowed after a SpanIntegrityError.
	// Negative values disable retries.
	MaxRetries int
}

type segment struct {
	literal    string
	entityType schema.EntityType // Empty for literal segments.
}

// Generator fills templates and tracks spans. It is immutable and safe for concurrent use, as long
// as each goroutine uses its own *rand.Rand.
type Generator struct {
	schema     *schema.Schema
	templates  [][]segment
	values     map[schema.EntityType]ValueFunc
	transforms func(rng *rand.Rand) []Transform
	periodDrop float64
	commaDrop  float64
	maxRetries int
}

var placeholderRE = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// parseTemplate splits a template into literal and placeholder segments.
func parseTemplate(template string) []segment {
	var segments []segment
	last := 0
	for _, loc := range placeholderRE.FindAllStringSubmatchIndex(template, -1) {
		if loc[0] > last {
			segments = append(segments, segment{literal: template[last:loc[0]]})
		}
		segments = append(segments, segment{entityType: schema.EntityType(template[loc[2]:loc[3]])})
		last = loc[1]
	}
	if last < len(template) {
		segments = append(segments, segment{literal: template[last:]})
	}
	return segments
}

// New creates a Generator for the schema. It returns a *schema.SchemaError if a template uses an
// entity type not declared in the schema or with no value generator, or if no usable template is
// left.
func New(s *schema.Schema, config Config) (*Generator, error) {
	g := &Generator{
		schema:     s,
		values:     DefaultPools.ValueFuncs(),
		transforms: config.Transforms,
		periodDrop: config.PeriodDropProb,
		commaDrop:  config.CommaDropProb,
		maxRetries: config.MaxRetries,
	}
	for et, fn := range config.Values {
		g.values[et] = fn
	}
	if g.transforms == nil {
		g.transforms = DefaultTransforms
	}
	if g.periodDrop == 0 {
		g.periodDrop = DefaultPeriodDropProb
	}
	if g.commaDrop == 0 {
		g.commaDrop = DefaultCommaDropProb
	}
	if g.maxRetries == 0 {
		g.maxRetries = DefaultMaxRetries
	}
	g.maxRetries = max(g.maxRetries, 0)

	usable := func(segments []segment) error {
		for _, seg := range segments {
			if seg.entityType == "" {
				continue
			}
			if !s.Has(seg.entityType) {
				return &schema.SchemaError{Reason: fmt.Sprintf("template placeholder {%s} is not a declared entity type", seg.entityType)}
			}
			if g.values[seg.entityType] == nil {
				return &schema.SchemaError{Reason: fmt.Sprintf("no value generator for entity type %s", seg.entityType)}
			}
		}
		return nil
	}
	if len(config.Templates) > 0 {
		for _, template := range config.Templates {
			segments := parseTemplate(template)
			if err := usable(segments); err != nil {
				return nil, errors.WithMessagef(err, "template %q", template)
			}
			g.templates = append(g.templates, segments)
		}
	} else {
		for _, template := range DefaultTemplates {
			segments := parseTemplate(template)
			if usable(segments) == nil {
				g.templates = append(g.templates, segments)
			}
		}
	}
	if len(g.templates) == 0 {
		return nil, &schema.SchemaError{Reason: "no template usable with the schema entity types"}
	}
	return g, nil
}

// Schema returns the schema the generator was built for.
func (g *Generator) Schema() *schema.Schema { return g.schema }

// Generate produces one example. Examples failing the span integrity check are regenerated; if
// all retries fail, the returned error wraps the last *SpanIntegrityError.
func (g *Generator) Generate(rng *rand.Rand) (spans.Example, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		ex, err := g.generateOnce(rng)
		if err == nil {
			return ex, nil
		}
		var integrityErr *SpanIntegrityError
		if !errors.As(err, &integrityErr) {
			return spans.Example{}, err
		}
		klog.Warningf("discarding generated example (attempt %d of %d): %v", attempt+1, g.maxRetries+1, err)
		lastErr = err
	}
	return spans.Example{}, errors.WithMessagef(lastErr, "example generation failed after %d attempts", g.maxRetries+1)
}

func (g *Generator) generateOnce(rng *rand.Rand) (spans.Example, error) {
	template := g.templates[rng.IntN(len(g.templates))]
	dropPeriods := g.periodDrop > 0 && rng.Float64() < g.periodDrop
	dropCommas := g.commaDrop > 0 && rng.Float64() < g.commaDrop

	var (
		buf    strings.Builder
		list   []spans.Span
		values []string
	)
	for _, seg := range template {
		if seg.entityType == "" {
			literal := seg.literal
			if dropPeriods {
				literal = strings.ReplaceAll(literal, ".", "")
			}
			if dropCommas {
				literal = strings.ReplaceAll(literal, ",", "")
			}
			buf.WriteString(literal)
			continue
		}
		value := g.values[seg.entityType](rng)
		if value == "" {
			return spans.Example{}, errors.Errorf("value generator for %s returned an empty value", seg.entityType)
		}
		start := buf.Len()
		buf.WriteString(value)
		list = append(list, spans.Span{Start: start, End: buf.Len(), Type: seg.entityType})
		values = append(values, value)
	}

	text, list, values := ApplyTransforms(buf.String(), list, values, g.transforms(rng))
	if err := CheckIntegrity(text, list, values); err != nil {
		return spans.Example{}, err
	}
	return spans.Example{Text: text, Spans: list}, nil
}

// ApplyTransforms runs the transforms, in order, over each span in a single left-to-right pass.
// After a transform changes the length of span i by delta, every later span is shifted by delta.
//
// values[i] is the current value of span i; the returned values hold each value transformed on its
// own, so that CheckIntegrity can compare them against the rewritten text. The input slices are not
// modified.
func ApplyTransforms(text string, list []spans.Span, values []string, transforms []Transform) (string, []spans.Span, []string) {
	list = append([]spans.Span(nil), list...)
	values = append([]string(nil), values...)
	for i := range list {
		for _, tr := range transforms {
			if !tr.AppliesTo(list[i].Type) {
				continue
			}
			isolated, _, _ := tr.Apply(values[i], spans.Span{Start: 0, End: len(values[i]), Type: list[i].Type})
			oldEnd := list[i].End
			var delta int
			text, list[i], delta = tr.Apply(text, list[i])
			values[i] = isolated
			if delta == 0 {
				continue
			}
			for j := i + 1; j < len(list); j++ {
				if list[j].Start >= oldEnd {
					list[j] = list[j].Shift(delta)
				}
			}
		}
	}
	return text, list, values
}

// CheckIntegrity verifies that every span is within bounds, non-empty, sorted, non-overlapping and
// covers exactly its expected value. It returns a *SpanIntegrityError otherwise.
func CheckIntegrity(text string, list []spans.Span, values []string) error {
	if len(values) != len(list) {
		return &SpanIntegrityError{Text: text, Reason: fmt.Sprintf("%d spans for %d values", len(list), len(values))}
	}
	for i, span := range list {
		if span.Start < 0 || span.End > len(text) || span.Start >= span.End {
			return &SpanIntegrityError{Text: text, Span: span, Expected: values[i],
				Reason: fmt.Sprintf("out of bounds or empty for text of length %d", len(text))}
		}
		if i > 0 && list[i-1].End > span.Start {
			return &SpanIntegrityError{Text: text, Span: span, Expected: values[i],
				Reason: fmt.Sprintf("overlaps or precedes %s", list[i-1])}
		}
		if got := text[span.Start:span.End]; got != values[i] {
			return &SpanIntegrityError{Text: text, Span: span, Expected: values[i],
				Reason: fmt.Sprintf("covers %q", got)}
		}
	}
	return nil
}
