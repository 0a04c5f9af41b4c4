package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/bio"
	"github.com/gomlx/piispans/config"
	"github.com/gomlx/piispans/records"
	"github.com/gomlx/piispans/spans"
)

func newEncodeCmd(cfg *config.Config) *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Align a span corpus with a tokenizer and write per-token BIO tag ids",
		Long: `Encode tokenizes every record of a corpus (JSONL or parquet) and writes one JSONL line per
record with the token offsets, the BIO tag id of every token (-100 for special tokens), whether a
token straddled a span boundary ("lossy") and the spans lost to truncation. Malformed records are
skipped and counted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.Context(), cfg, inPath, outPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "gold corpus file (.jsonl or .parquet)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "labeled JSONL output file")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// encodeStats summarizes an encode run.
type encodeStats struct {
	encoded, skipped, lossy, dropped int
}

func runEncode(ctx context.Context, cfg *config.Config, inPath, outPath string, out io.Writer) error {
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	tok, err := newTokenizer(cfg)
	if err != nil {
		return err
	}
	corpus, err := records.ReadCorpusFile(inPath, true)
	if err != nil {
		return err
	}

	var stats encodeStats
	labeled := make([]records.LabeledRecord, 0, len(corpus))
	for i := range corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		ex, _, err := corpus[i].ToExample(s)
		if err != nil {
			var malformed *spans.MalformedError
			if errors.As(err, &malformed) {
				klog.Warningf("skipping %v", err)
				stats.skipped++
				continue
			}
			return err
		}
		enc, err := tok.Tokenize(ex.Text)
		if err != nil {
			return errors.WithMessagef(err, "tokenizing record %s", corpus[i].Name())
		}
		encoding, err := bio.Encode(s, ex.Text, ex.Spans, enc.Offsets)
		if err != nil {
			return errors.WithMessagef(err, "encoding record %s", corpus[i].Name())
		}
		dropped := make([]spans.Span, len(encoding.Dropped))
		for j, mismatch := range encoding.Dropped {
			dropped[j] = mismatch.Span
			klog.V(1).Infof("record %s: span %s beyond window end %d", corpus[i].Name(), mismatch.Span, mismatch.WindowEnd)
		}
		labeled = append(labeled, records.NewLabeledRecord(ex, enc.Offsets, encoding.TagIDs, encoding.Lossy, dropped))
		stats.encoded++
		stats.dropped += len(dropped)
		if encoding.Lossy {
			stats.lossy++
		}
	}
	if err := records.WriteLabeledFile(ctx, outPath, labeled); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d records encoded (%d lossy, %d spans dropped by truncation), %d skipped\n",
		stats.encoded, stats.lossy, stats.dropped, stats.skipped)
	return nil
}
