// Package inference turns per-token classifier scores into prediction records: tokenize, classify,
// take the arg-max tag of every position and decode the tags into spans.
//
// The classifier itself is an external collaborator behind the Classifier interface.
package inference

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/bio"
	"github.com/gomlx/piispans/records"
	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
	"github.com/gomlx/piispans/tokenizers/api"
)

// Classifier scores each position of an encoding: scores[i][tagID] for position i, with one column
// per schema tag. Scores may be logits or probabilities; they go through a softmax before being
// reported as confidences.
type Classifier interface {
	Classify(ctx context.Context, text string, enc *api.Encoding) ([][]float32, error)
}

// ArgMax returns for each position the tag id with the highest score, and the softmax probability
// of that tag. Positions with no scores get spans.IgnoreTag.
func ArgMax(scores [][]float32) (tagIDs []int, confidences []float32) {
	tagIDs = make([]int, len(scores))
	confidences = make([]float32, len(scores))
	for i, row := range scores {
		if len(row) == 0 {
			tagIDs[i] = spans.IgnoreTag
			continue
		}
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - row[best]))
		}
		tagIDs[i] = best
		confidences[i] = float32(1 / sum)
	}
	return tagIDs, confidences
}

// Predictor runs the prediction pipeline.
type Predictor struct {
	Schema     *schema.Schema
	Tokenizer  api.Tokenizer
	Classifier Classifier

	// Workers is the number of texts classified in parallel. Values <= 0 mean one.
	Workers int
}

// Predict returns the spans found in text with their confidences (mean probability of the
// predicted tags of their tokens).
func (p *Predictor) Predict(ctx context.Context, text string) ([]spans.Span, []float32, error) {
	enc, err := p.Tokenizer.Tokenize(text)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "tokenizing")
	}
	scores, err := p.Classifier.Classify(ctx, text, enc)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "classifying")
	}
	if len(scores) != enc.Len() {
		return nil, nil, errors.Errorf("classifier returned %d positions for %d tokens", len(scores), enc.Len())
	}
	for i, row := range scores {
		if len(row) != 0 && len(row) != p.Schema.NumTags() {
			return nil, nil, errors.Errorf("classifier returned %d scores at position %d, schema has %d tags", len(row), i, p.Schema.NumTags())
		}
	}
	tagIDs, confidences := ArgMax(scores)
	return bio.DecodeWithScores(p.Schema, tagIDs, confidences, enc.Offsets)
}

// PredictRecords predicts the spans of every input record (their spans, if any, are ignored) and
// returns prediction records with the same ids and texts, in the same order.
func (p *Predictor) PredictRecords(ctx context.Context, inputs []records.Record) ([]records.Record, error) {
	outputs := make([]records.Record, len(inputs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(p.Workers, 1))
	for i := range inputs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, scores, err := p.Predict(ctx, inputs[i].Text)
			if err != nil {
				return errors.WithMessagef(err, "predicting record %s", inputs[i].Name())
			}
			confidences := make([]float64, len(scores))
			for j, s := range scores {
				confidences[j] = float64(s)
			}
			outputs[i] = records.FromExample(spans.Example{ID: inputs[i].ID, Text: inputs[i].Text, Spans: found}, confidences)
			klog.V(1).Infof("record %s: %d spans predicted", inputs[i].Name(), len(found))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}
