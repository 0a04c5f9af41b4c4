package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 1600, cfg.TrainSize)
	assert.Equal(t, 0.3, cfg.PeriodDropProb)
	assert.Equal(t, 0.2, cfg.CommaDropProb)
	assert.Equal(t, "jsonl", cfg.Format)
	assert.True(t, cfg.AddSpecialTokens)

	splits := cfg.Splits()
	require.Len(t, splits, 3)
	assert.Equal(t, "test", splits[2].Name)
	assert.True(t, splits[2].TextOnly)
	assert.Equal(t, 200, splits[1].Size)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"PIISPANS_SEED":             "7",
		"PIISPANS_TRAIN_SIZE":       "10",
		"PIISPANS_PERIOD_DROP_PROB": "0",
		"PIISPANS_MAX_RETRIES":      "0",
		"PIISPANS_TOKENIZER":        "/models/tokenizer.json",
		"PIISPANS_FORMAT":           "parquet",
		"SEED":                      "99",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 10, cfg.TrainSize)
	assert.Equal(t, "/models/tokenizer.json", cfg.TokenizerPath)
	assert.Equal(t, "parquet", cfg.Format)

	gc := cfg.GeneratorConfig()
	assert.Equal(t, -1.0, gc.PeriodDropProb, "a zero probability disables the noise")
	assert.Equal(t, 0.2, gc.CommaDropProb)
	assert.Equal(t, -1, gc.MaxRetries)
}

func TestParseErrors(t *testing.T) {
	for name, environ := range map[string]map[string]string{
		"bad int":      {"PIISPANS_WORKERS": "many"},
		"negative":     {"PIISPANS_DEV_SIZE": "-1"},
		"probability":  {"PIISPANS_COMMA_DROP_PROB": "1.5"},
		"format":       {"PIISPANS_FORMAT": "csv"},
		"window":       {"PIISPANS_MAX_TOKENS": "-3"},
		"bad float":    {"PIISPANS_PERIOD_DROP_PROB": "x"},
		"bad bool":     {"PIISPANS_ADD_SPECIAL_TOKENS": "perhaps"},
		"bad unsigned": {"PIISPANS_SEED": "-1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(environ)
			require.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PIISPANS_DEV_SIZE=3\n"), 0644))
	t.Setenv("PIISPANS_DEV_SIZE", "")
	require.NoError(t, os.Unsetenv("PIISPANS_DEV_SIZE"))
	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DevSize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
