// piispans generates synthetic PII span datasets, aligns them with tokenizers as BIO tags, and
// scores span predictions.
//
// Every setting can be given as a PIISPANS_* environment variable (see package config), read after
// the .env file named by PIISPANS_ENV_FILE (or ".env" in the current directory); flags override
// the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/config"
	"github.com/gomlx/piispans/records"
	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/tokenizers"
	"github.com/gomlx/piispans/tokenizers/api"
)

// Exit codes.
const (
	exitOK = iota
	exitFailure
	exitParseError
	exitSchemaError
)

func main() {
	cfg, err := config.Load(os.Getenv("PIISPANS_ENV_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg, os.Args[1:], os.Stdout)
	stop()
	klog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// run executes the command line args.
func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	rootCmd := newRootCmd(cfg)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var (
		parseErr  *records.ParseError
		schemaErr *schema.SchemaError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &parseErr):
		return exitParseError
	case errors.As(err, &schemaErr):
		return exitSchemaError
	default:
		return exitFailure
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "piispans",
		Short: "Synthetic PII span datasets, BIO alignment and span-level evaluation",
		Long: `piispans builds and checks the data of a PII span tagger:

  generate  writes a reproducible synthetic train/dev/test dataset
  encode    aligns a span corpus with a tokenizer and writes BIO tag ids
  predict   writes the predictions of the tokenizer oracle (the ceiling reachable by a tagger)
  evaluate  scores a prediction corpus against a gold corpus
  schema    prints the label schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	goFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(goFlags)
	flags := rootCmd.PersistentFlags()
	flags.AddGoFlagSet(goFlags)
	flags.StringVar(&cfg.SchemaPath, "schema", cfg.SchemaPath, "label schema YAML file; empty for the default entity types")
	flags.StringVar(&cfg.TokenizerPath, "tokenizer", cfg.TokenizerPath, "tokenizer.json or SentencePiece .model file; empty for word tokens")
	flags.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "model window in tokens, special tokens included; 0 for no limit")
	flags.BoolVar(&cfg.AddSpecialTokens, "special-tokens", cfg.AddSpecialTokens, "add the tokenizer special tokens")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of parallel workers")

	rootCmd.AddCommand(
		newGenerateCmd(cfg),
		newEncodeCmd(cfg),
		newPredictCmd(cfg),
		newEvaluateCmd(cfg),
		newSchemaCmd(cfg),
	)
	return rootCmd
}

// loadSchema returns the configured schema, or the default one.
func loadSchema(cfg *config.Config) (*schema.Schema, error) {
	if cfg.SchemaPath == "" {
		return schema.Default(), nil
	}
	return schema.Load(cfg.SchemaPath)
}

// tokenizerConfig returns the configured tokenizer settings.
func tokenizerConfig(cfg *config.Config) api.Config {
	return api.Config{MaxLength: cfg.MaxTokens, AddSpecialTokens: cfg.AddSpecialTokens}
}

// newTokenizer creates the configured tokenizer.
func newTokenizer(cfg *config.Config) (api.Tokenizer, error) {
	return tokenizers.New(cfg.TokenizerPath, tokenizerConfig(cfg))
}
