// Package config holds the runtime configuration of piispans, read from PIISPANS_* environment
// variables after an optional .env file. Command-line flags override these values.
package config

import (
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/generator"
	"github.com/gomlx/piispans/records"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PIISPANS_"

// Config of the piispans commands.
type Config struct {
	// Generation.
	Seed           uint64  `env:"SEED" envDefault:"42"`
	MaxRetries     int     `env:"MAX_RETRIES" envDefault:"5"`
	Workers        int     `env:"WORKERS" envDefault:"4"`
	TrainSize      int     `env:"TRAIN_SIZE" envDefault:"1600"`
	DevSize        int     `env:"DEV_SIZE" envDefault:"200"`
	TestSize       int     `env:"TEST_SIZE" envDefault:"200"`
	PeriodDropProb float64 `env:"PERIOD_DROP_PROB" envDefault:"0.3"`
	CommaDropProb  float64 `env:"COMMA_DROP_PROB" envDefault:"0.2"`

	// SchemaPath is a YAML label schema; empty means the default entity types.
	SchemaPath string `env:"SCHEMA"`

	// TokenizerPath is a tokenizer.json or SentencePiece .model file; empty means word tokens.
	TokenizerPath string `env:"TOKENIZER"`

	// MaxTokens is the model window, special tokens included. 0 means no limit.
	MaxTokens int `env:"MAX_TOKENS" envDefault:"0"`

	// AddSpecialTokens wraps tokenized sequences with the tokenizer special tokens.
	AddSpecialTokens bool `env:"ADD_SPECIAL_TOKENS" envDefault:"true"`

	OutputDir string `env:"OUTPUT_DIR" envDefault:"data"`
	Format    string `env:"FORMAT" envDefault:"jsonl"`
}

// Load reads the .env file (if envFile is empty, ".env" in the current directory, if present) and
// then parses the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "error loading env file %q", envFile)
		}
		klog.V(1).Infof("loaded environment from %q", envFile)
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.Wrap(err, "error loading .env file")
		}
		klog.V(1).Infof("loaded environment from .env")
	}
	return Parse(nil)
}

// Parse parses the configuration from environ, or from the process environment if environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "parsing configuration from the environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the value ranges.
func (c *Config) Validate() error {
	switch {
	case c.TrainSize < 0 || c.DevSize < 0 || c.TestSize < 0:
		return errors.Errorf("split sizes must be >= 0, got train=%d dev=%d test=%d", c.TrainSize, c.DevSize, c.TestSize)
	case c.PeriodDropProb > 1 || c.CommaDropProb > 1:
		return errors.Errorf("punctuation drop probabilities must be <= 1, got %g and %g", c.PeriodDropProb, c.CommaDropProb)
	case c.MaxTokens < 0:
		return errors.Errorf("max tokens must be >= 0, got %d", c.MaxTokens)
	}
	if _, err := records.ParseFormat(c.Format); err != nil {
		return err
	}
	return nil
}

// Splits returns the train/dev/test splits; the test split is text-only.
func (c *Config) Splits() []generator.Split {
	return []generator.Split{
		{Name: "train", Size: c.TrainSize},
		{Name: "dev", Size: c.DevSize},
		{Name: "test", Size: c.TestSize, TextOnly: true},
	}
}

// GeneratorConfig returns the generator configuration. A probability of 0 disables the
// corresponding noise.
func (c *Config) GeneratorConfig() generator.Config {
	gc := generator.Config{
		PeriodDropProb: c.PeriodDropProb,
		CommaDropProb:  c.CommaDropProb,
		MaxRetries:     c.MaxRetries,
	}
	if gc.PeriodDropProb == 0 {
		gc.PeriodDropProb = -1
	}
	if gc.CommaDropProb == 0 {
		gc.CommaDropProb = -1
	}
	if gc.MaxRetries == 0 {
		gc.MaxRetries = -1
	}
	return gc
}
