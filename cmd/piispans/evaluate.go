package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/config"
	"github.com/gomlx/piispans/eval"
	"github.com/gomlx/piispans/inference"
	"github.com/gomlx/piispans/records"
	"github.com/gomlx/piispans/spans"
	"github.com/gomlx/piispans/tokenizers"
)

func newEvaluateCmd(cfg *config.Config) *cobra.Command {
	var (
		goldPath, predPath string
		asJSON, useWindow  bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score span predictions against gold spans",
		Long: `Evaluate pairs the prediction records with the gold records (by id when present, by position
otherwise) and reports exact-match span precision, recall and F1 per entity type, pooled over all
types, and the macro-F1. With --window, gold spans beyond the --max-tokens window of the tokenizer
are not counted as misses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), cfg, goldPath, predPath, useWindow, asJSON, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&goldPath, "gold", "g", "", "gold corpus file (.jsonl or .parquet)")
	flags.StringVarP(&predPath, "pred", "p", "", "prediction corpus file (.jsonl or .parquet)")
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")
	flags.BoolVar(&useWindow, "window", false, "exclude gold spans truncated by the tokenizer window from the misses")
	_ = cmd.MarkFlagRequired("gold")
	_ = cmd.MarkFlagRequired("pred")
	return cmd
}

func runEvaluate(ctx context.Context, cfg *config.Config, goldPath, predPath string, useWindow, asJSON bool, out io.Writer) error {
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	gold, err := records.ReadCorpusFile(goldPath, true)
	if err != nil {
		return err
	}
	pred, err := records.ReadCorpusFile(predPath, true)
	if err != nil {
		return err
	}
	evaluator := &eval.Evaluator{Schema: s, Workers: cfg.Workers}
	if useWindow {
		if cfg.MaxTokens <= 0 {
			return errors.New("--window requires --max-tokens > 0")
		}
		tok, err := newTokenizer(cfg)
		if err != nil {
			return err
		}
		evaluator.Window = tokenizers.Window(tok, tokenizerConfig(cfg))
	}
	report, err := evaluator.Evaluate(ctx, gold, pred)
	if err != nil {
		return err
	}
	if asJSON {
		content, err := report.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(content))
		return err
	}
	_, err = fmt.Fprintln(out, report.Render())
	return err
}

func newPredictCmd(cfg *config.Config) *cobra.Command {
	var inPath, oraclePath, outPath string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict spans with the tokenizer oracle",
		Long: `Predict runs the prediction pipeline (tokenize, classify, arg-max, BIO decode) over the texts
of the input corpus, with the oracle classifier: it tags every token with the BIO encoding of the
gold spans of the --oracle corpus. Evaluating its output against the gold corpus measures the
best score reachable by a tagger using the configured tokenizer and window.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), cfg, inPath, oraclePath, outPath, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&inPath, "in", "i", "", "input corpus file; spans, if any, are ignored")
	flags.StringVar(&oraclePath, "oracle", "", "gold corpus whose spans the oracle predicts")
	flags.StringVarP(&outPath, "out", "o", "", "prediction JSONL output file")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("oracle")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runPredict(ctx context.Context, cfg *config.Config, inPath, oraclePath, outPath string, out io.Writer) error {
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	tok, err := newTokenizer(cfg)
	if err != nil {
		return err
	}
	inputs, err := records.ReadCorpusFile(inPath, false)
	if err != nil {
		return err
	}
	goldRecords, err := records.ReadCorpusFile(oraclePath, true)
	if err != nil {
		return err
	}
	gold := make([]spans.Example, 0, len(goldRecords))
	for i := range goldRecords {
		ex, _, err := goldRecords[i].ToExample(s)
		if err != nil {
			var malformed *spans.MalformedError
			if errors.As(err, &malformed) {
				klog.Warningf("oracle skipping %v", err)
				continue
			}
			return err
		}
		gold = append(gold, ex)
	}

	predictor := &inference.Predictor{
		Schema:     s,
		Tokenizer:  tok,
		Classifier: inference.NewOracle(s, gold),
		Workers:    cfg.Workers,
	}
	predictions, err := predictor.PredictRecords(ctx, inputs)
	if err != nil {
		return err
	}
	if err := records.WriteJSONLFile(ctx, outPath, predictions, false); err != nil {
		return err
	}
	var numSpans int
	for _, r := range predictions {
		numSpans += len(r.Spans)
	}
	fmt.Fprintf(out, "%d spans predicted over %d records\n", numSpans, len(predictions))
	return nil
}
