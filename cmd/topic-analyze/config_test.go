package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func parseTest(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args)
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := parseTest(t, "-chatroom", "room", "-from", "2024-03-01", "-to", "2024-03-02")
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Mode != "thread" {
		t.Fatalf("mode=%q, want thread", cfg.Mode)
	}
	if cfg.StoreDir != "data/messages" || cfg.OutDir != "out" {
		t.Fatalf("dirs=%q,%q", cfg.StoreDir, cfg.OutDir)
	}
	if !cfg.Pretty {
		t.Fatalf("pretty should default on")
	}
	if cfg.File.EmbedBatchSize != 64 || cfg.File.MergeThreshold != 0.5 {
		t.Fatalf("file defaults=%+v", cfg.File)
	}
}

func TestParseFlags_ConfigFileLayering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
provider:
  model: from-file
  embedding_model: embed-file
merge_threshold: 0.7
embed_batch_size: 16
summarizer:
  chunk_token_budget: 500
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := parseTest(t,
		"-chatroom", "room", "-from", "2024-03-01", "-to", "2024-03-02",
		"-config", path, "-model", "from-flag")
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.File.MergeThreshold != 0.7 || cfg.File.EmbedBatchSize != 16 {
		t.Fatalf("file config not loaded: %+v", cfg.File)
	}
	if cfg.File.Summarizer.ChunkTokenBudget != 500 {
		t.Fatalf("nested config not loaded: %+v", cfg.File.Summarizer)
	}
	// Flags override the file.
	if cfg.File.Provider.Model != "from-flag" {
		t.Fatalf("model=%q, want flag to win", cfg.File.Provider.Model)
	}
	if cfg.File.Provider.EmbeddingModel != "embed-file" {
		t.Fatalf("embedding model=%q, want file value kept", cfg.File.Provider.EmbeddingModel)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg := defaultConfig()
		cfg.ChatroomID = "room"
		cfg.FromDate = "2024-03-01"
		cfg.ToDate = "2024-03-02"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing_chatroom", mutate: func(c *Config) { c.ChatroomID = "" }, want: "ChatroomID"},
		{name: "bad_date", mutate: func(c *Config) { c.FromDate = "03/01/2024" }, want: "FromDate"},
		{name: "bad_mode", mutate: func(c *Config) { c.Mode = "kmeans" }, want: "Mode"},
		{name: "reversed_range", mutate: func(c *Config) { c.FromDate, c.ToDate = c.ToDate, c.FromDate }, want: "before"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestDateRange_EndInclusive(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.FromDate = "2024-03-01"
	cfg.ToDate = "2024-03-02"
	from, to := cfg.DateRange()
	if from.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("from=%v", from)
	}
	if to.Format("2006-01-02") != "2024-03-03" {
		t.Fatalf("to=%v, want following midnight", to)
	}
}
