package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gomlx/piispans/config"
	"github.com/gomlx/piispans/generator"
	"github.com/gomlx/piispans/records"
)

func newGenerateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic train/dev/test dataset",
		Long: `Generate fills sentence templates with synthetic PII values and writes one file per split
plus a manifest.json to the output directory. The same seed always produces the same dataset,
whatever the number of workers. The test split is written without spans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	flags.IntVar(&cfg.TrainSize, "train", cfg.TrainSize, "number of train examples")
	flags.IntVar(&cfg.DevSize, "dev", cfg.DevSize, "number of dev examples")
	flags.IntVar(&cfg.TestSize, "test", cfg.TestSize, "number of test examples")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "regenerations allowed per example after a span integrity failure; 0 disables retries")
	flags.Float64Var(&cfg.PeriodDropProb, "period-drop", cfg.PeriodDropProb, "probability of removing the template periods of an example")
	flags.Float64Var(&cfg.CommaDropProb, "comma-drop", cfg.CommaDropProb, "probability of removing the template commas of an example")
	flags.StringVarP(&cfg.OutputDir, "out", "o", cfg.OutputDir, "output directory")
	flags.StringVar(&cfg.Format, "format", cfg.Format, `output format: "jsonl" or "parquet"`)
	return cmd
}

func runGenerate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	format, err := records.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	g, err := generator.New(s, cfg.GeneratorConfig())
	if err != nil {
		return err
	}
	ds, err := g.GenerateDataset(ctx, cfg.Seed, cfg.Splits(), cfg.Workers)
	if err != nil {
		return err
	}
	exports := make([]records.SplitExport, len(ds.Splits))
	for i, split := range ds.Splits {
		exports[i] = records.SplitExport{Name: split.Name, TextOnly: split.TextOnly, Examples: ds.Examples[i]}
	}
	manifest, err := records.WriteDataset(ctx, cfg.OutputDir, s, ds.Seed, format, exports)
	if err != nil {
		return err
	}
	for _, split := range manifest.Splits {
		fmt.Fprintf(out, "%-6s %6d examples  %s\n", split.Name, split.Size, split.File)
	}
	fmt.Fprintf(out, "dataset %s (seed %d) written to %s\n", manifest.RunID, manifest.Seed, cfg.OutputDir)
	return nil
}
