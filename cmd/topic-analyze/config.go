package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/chat-topics/analysis"
	"github.com/theimaginaryfoundation/chat-topics/analysis/provider"
)

// FileConfig is the optional YAML config file carrying the tuning knobs
// that are too numerous for flags.
type FileConfig struct {
	Provider   provider.Config           `yaml:"provider"`
	Threader   analysis.ThreaderConfig   `yaml:"threader"`
	Density    analysis.DensityConfig    `yaml:"density"`
	Summarizer analysis.SummarizerConfig `yaml:"summarizer"`

	// MergeThreshold is the keyword-overlap Jaccard threshold for the
	// post-hoc topic merger.
	MergeThreshold float64 `yaml:"merge_threshold"`

	// EmbedBatchSize is the initial embedding request batch size.
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// Config is the effective command configuration: flags layered over the
// optional config file.
type Config struct {
	ChatroomID string `validate:"required"`
	FromDate   string `validate:"required,datetime=2006-01-02"`
	ToDate     string `validate:"required,datetime=2006-01-02"`

	StoreDir string `validate:"required"`
	OutDir   string `validate:"required"`
	DebugDir string

	// Mode picks the clustering pass: online threading or batch density.
	Mode string `validate:"oneof=thread density"`

	ConfigPath      string
	APIKey          string
	Model           string
	VectorIndexPath string
	Pretty          bool
	Verbose         bool

	File FileConfig `validate:"-"`
}

func defaultConfig() Config {
	return Config{
		StoreDir: "data/messages",
		OutDir:   "out",
		Mode:     "thread",
		Pretty:   true,
		File: FileConfig{
			Threader:       analysis.DefaultThreaderConfig(),
			Density:        analysis.DefaultDensityConfig(),
			Summarizer:     analysis.DefaultSummarizerConfig(),
			MergeThreshold: 0.5,
			EmbedBatchSize: 64,
		},
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.ChatroomID, "chatroom", "", "Chatroom id to analyze")
	fs.StringVar(&cfg.FromDate, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	fs.StringVar(&cfg.ToDate, "to", "", "End date, inclusive (YYYY-MM-DD)")
	fs.StringVar(&cfg.StoreDir, "store", cfg.StoreDir, "Message store root directory")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for topics.json and the report")
	fs.StringVar(&cfg.DebugDir, "debug-dir", "", "Optional directory for per-chunk/merge debug artifacts")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Clustering mode: thread (online) or density (batch)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional YAML config file with tuning knobs")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.Model, "model", "", "Completion model (overrides config file)")
	fs.StringVar(&cfg.VectorIndexPath, "vector-index", "", "Optional SQLite vector index path for embedding persistence")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print topics.json")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose (debug) logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ConfigPath != "" {
		if err := cfg.loadFile(); err != nil {
			return Config{}, err
		}
	}
	if cfg.APIKey != "" {
		cfg.File.Provider.APIKey = cfg.APIKey
	}
	if cfg.Model != "" {
		cfg.File.Provider.Model = cfg.Model
	}
	return cfg, nil
}

func (c *Config) loadFile() error {
	b, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("read -config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c.File); err != nil {
		return fmt.Errorf("parse -config: %w", err)
	}
	return nil
}

// Validate checks the effective configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: field %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	from, _ := time.Parse("2006-01-02", c.FromDate)
	to, _ := time.Parse("2006-01-02", c.ToDate)
	if to.Before(from) {
		return errors.New("-to must not be before -from")
	}
	return nil
}

// DateRange returns the [from, to) time window the config names; the end
// date is inclusive, so the window extends to the following midnight.
func (c Config) DateRange() (time.Time, time.Time) {
	from, _ := time.Parse("2006-01-02", c.FromDate)
	to, _ := time.Parse("2006-01-02", c.ToDate)
	return from, to.AddDate(0, 0, 1)
}
