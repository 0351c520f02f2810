package main

import (
	"errors"
	"flag"
	"os"
)

type Config struct {
	Addr     string
	StoreDir string
	Verbose  bool
}

func defaultConfig() Config {
	return Config{
		Addr:     ":8089",
		StoreDir: "data/messages",
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.StoreDir, "store", cfg.StoreDir, "Message store root directory")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose (debug) logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if c.StoreDir == "" {
		return errors.New("missing -store")
	}
	return nil
}
