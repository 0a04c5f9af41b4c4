package eval

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/records"
	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
)

// RecordPair is a gold record with its prediction record.
type RecordPair struct {
	Gold, Pred records.Record
}

// Pair matches gold and prediction records: by id when both records of a position carry one,
// otherwise by position. Differing record counts, duplicated ids or ids without a counterpart are
// errors, since they make the whole corpus unreliable.
func Pair(gold, pred []records.Record) ([]RecordPair, error) {
	if len(gold) != len(pred) {
		return nil, errors.Errorf("gold has %d records but predictions have %d", len(gold), len(pred))
	}
	predByID := make(map[string]int, len(pred))
	for i, r := range pred {
		if r.ID == "" {
			continue
		}
		if _, dup := predByID[r.ID]; dup {
			return nil, errors.Errorf("duplicate prediction id %q (line %d)", r.ID, r.Line)
		}
		predByID[r.ID] = i
	}

	pairs := make([]RecordPair, len(gold))
	used := make([]bool, len(pred))
	for i, g := range gold {
		j := i
		if g.ID != "" && pred[i].ID != "" {
			var found bool
			j, found = predByID[g.ID]
			if !found {
				return nil, errors.Errorf("gold record %q (line %d) has no prediction", g.ID, g.Line)
			}
		}
		if used[j] {
			return nil, errors.Errorf("prediction %s matched twice", pred[j].Name())
		}
		used[j] = true
		pairs[i] = RecordPair{Gold: g, Pred: pred[j]}
	}
	return pairs, nil
}

// WindowFunc returns the end (byte offset) of the part of text seen by the model, or -1 if the
// whole text is seen.
type WindowFunc func(text string) (int, error)

// Evaluator scores a prediction corpus against a gold corpus.
type Evaluator struct {
	Schema *schema.Schema

	// Window, if set, excludes gold spans beyond the model window from FN.
	Window WindowFunc

	// Workers is the number of pairs scored in parallel. Values <= 0 mean one.
	Workers int
}

// Result of scoring one corpus.
type Result struct {
	Counts   MetricCounts
	Examples int

	// Skipped counts pairs with a malformed gold or prediction record.
	Skipped int
}

// EvaluateCorpus pairs and scores the corpora. Malformed records (*spans.MalformedError, or gold
// and prediction texts that differ) are logged, skipped and counted; any other error aborts.
func (e *Evaluator) EvaluateCorpus(ctx context.Context, gold, pred []records.Record) (*Result, error) {
	pairs, err := Pair(gold, pred)
	if err != nil {
		return nil, err
	}
	perPair := make([]MetricCounts, len(pairs))
	scored := make([]bool, len(pairs))
	var skipped atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(e.Workers, 1))
	for i := range pairs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			counts, err := e.scorePair(&pairs[i])
			if err != nil {
				var malformed *spans.MalformedError
				if errors.As(err, &malformed) {
					klog.Warningf("skipping %v", err)
					skipped.Add(1)
					return nil
				}
				return err
			}
			perPair[i] = counts
			scored[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Skipped: int(skipped.Load())}
	for i := range perPair {
		if scored[i] {
			result.Counts.Merge(perPair[i])
			result.Examples++
		}
	}
	if result.Skipped > 0 {
		klog.Warningf("%d of %d record pairs skipped as malformed", result.Skipped, len(pairs))
	}
	return result, nil
}

func (e *Evaluator) scorePair(pair *RecordPair) (MetricCounts, error) {
	goldEx, _, err := pair.Gold.ToExample(e.Schema)
	if err != nil {
		return MetricCounts{}, errors.WithMessage(err, "gold")
	}
	predEx, _, err := pair.Pred.ToExample(e.Schema)
	if err != nil {
		return MetricCounts{}, errors.WithMessage(err, "prediction")
	}
	if goldEx.Text != predEx.Text {
		return MetricCounts{}, &spans.MalformedError{Record: pair.Gold.Name(), Reason: "prediction text differs from gold text"}
	}
	window := -1
	if e.Window != nil {
		window, err = e.Window(goldEx.Text)
		if err != nil {
			return MetricCounts{}, errors.WithMessagef(err, "computing window of record %s", pair.Gold.Name())
		}
	}
	counts, excluded := ScoreExample(goldEx.Spans, predEx.Spans, window)
	if len(excluded) > 0 {
		klog.V(1).Infof("record %s: %d gold spans beyond the model window %d excluded", pair.Gold.Name(), len(excluded), window)
	}
	return counts, nil
}

// Evaluate scores the corpora and builds the report.
func (e *Evaluator) Evaluate(ctx context.Context, gold, pred []records.Record) (*Report, error) {
	result, err := e.EvaluateCorpus(ctx, gold, pred)
	if err != nil {
		return nil, err
	}
	return NewReport(uuid.New(), e.Schema, result), nil
}
