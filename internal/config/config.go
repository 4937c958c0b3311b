// Package config loads the indexer's settings from flags, environment
// variables, and an optional config file into one typed Config, using
// spf13/viper for layered lookup and spf13/cast for the numeric/
// duration coercions viper's raw map values need.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/btcindex/internal/pipeline"
)

const envPrefix = "BTCINDEX"

// Config is the resolved set of settings cmd/indexer needs to build
// the source, storage, pipeline, and API server.
type Config struct {
	// DataDir is where chainkv stores its pebble instance. Required.
	DataDir string
	// NodeURL is the base URL of a Bitcoin Core REST endpoint. Required.
	NodeURL string
	// BlocksDir optionally points at a local pre-extracted blocks
	// directory consulted before NodeURL (spec.md §9).
	BlocksDir string

	// ListenAddr serves /graphql and /metrics.
	ListenAddr string

	Pipeline pipeline.Config
}

// BindFlags registers every recognized flag on fs. Call before
// fs.Parse.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("datadir", "", "directory for the index database (required)")
	fs.String("node-url", "", "Bitcoin Core REST endpoint, e.g. http://127.0.0.1:8332 (required)")
	fs.String("blocks-dir", "", "optional local directory of pre-extracted raw blocks")
	fs.String("listen-addr", ":8080", "address serving /graphql and /metrics")
	fs.String("config", "", "optional YAML/TOML config file")

	fs.Int("header-batch-size", 100, "headers requested per upstream call")
	fs.Int("header-batch-buffer", 0, "queued header windows (0 = CPU count)")
	fs.Duration("header-retry-delay", 5*time.Second, "pause before retrying a short header window")
	fs.Int64("block-fetch-concurrency", 2, "parallel fetch_block calls")
	fs.Int("block-batch-size", 100, "blocks per constructed batch")
	fs.Int("block-batch-concurrency", 0, "batches built in parallel (0 = CPU count)")
}

// Load resolves settings from fs (already parsed), environment
// variables prefixed BTCINDEX_, and the file named by --config if set,
// in that ascending priority: flags override env, env overrides file.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		DataDir:    v.GetString("datadir"),
		NodeURL:    v.GetString("node-url"),
		BlocksDir:  v.GetString("blocks-dir"),
		ListenAddr: v.GetString("listen-addr"),
		Pipeline: pipeline.Config{
			HeaderBatchSize:       cast.ToInt(v.Get("header-batch-size")),
			HeaderBatchBuffer:     cast.ToInt(v.Get("header-batch-buffer")),
			HeaderRetryDelay:      v.GetDuration("header-retry-delay"),
			BlockFetchConcurrency: cast.ToInt64(v.Get("block-fetch-concurrency")),
			BlockBatchSize:        cast.ToInt(v.Get("block-batch-size")),
			BlockBatchConcurrency: cast.ToInt(v.Get("block-batch-concurrency")),
		},
	}

	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("config: --datadir is required")
	}
	if cfg.NodeURL == "" {
		return Config{}, fmt.Errorf("config: --node-url is required")
	}
	return cfg, nil
}
