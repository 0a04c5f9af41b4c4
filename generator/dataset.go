package generator

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/gomlx/piispans/spans"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Split of a dataset.
type Split struct {
	Name string
	Size int

	// TextOnly splits are exported without gold spans (blind test sets).
	TextOnly bool
}

// DefaultSplits are the train/dev/test sizes of the default dataset.
var DefaultSplits = []Split{
	{Name: "train", Size: 1600},
	{Name: "dev", Size: 200},
	{Name: "test", Size: 200, TextOnly: true},
}

// DefaultSeed of the default dataset.
const DefaultSeed = 42

// Dataset holds the generated examples of each split: Examples[i] belongs to Splits[i].
type Dataset struct {
	Seed     uint64
	Splits   []Split
	Examples [][]spans.Example
}

// ExampleRand returns the random source of one example. It only depends on the seed and the
// example position, so a dataset is identical whatever the number of workers.
func ExampleRand(seed uint64, splitIdx, exampleIdx int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(splitIdx)<<32|uint64(exampleIdx)))
}

// GenerateDataset generates every split with up to workers examples in flight (workers <= 0
// means one). Example ids are "<split>_<00001>". Any fatal generation failure aborts the whole
// dataset.
func (g *Generator) GenerateDataset(ctx context.Context, seed uint64, splits []Split, workers int) (*Dataset, error) {
	ds := &Dataset{
		Seed:     seed,
		Splits:   splits,
		Examples: make([][]spans.Example, len(splits)),
	}
	for _, split := range splits {
		if split.Size < 0 {
			return nil, errors.Errorf("split %q has negative size %d", split.Name, split.Size)
		}
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(workers, 1))
	for splitIdx, split := range splits {
		examples := make([]spans.Example, split.Size)
		ds.Examples[splitIdx] = examples
		klog.Infof("generating %d %s examples", split.Size, split.Name)
		for i := range examples {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				ex, err := g.Generate(ExampleRand(seed, splitIdx, i))
				if err != nil {
					return errors.WithMessagef(err, "%s example #%d", split.Name, i+1)
				}
				ex.ID = fmt.Sprintf("%s_%05d", split.Name, i+1)
				examples[i] = ex
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return ds, nil
}
