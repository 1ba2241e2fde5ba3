package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/0x5487/lob"
	"github.com/0x5487/lob/itch"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of a replay. Load fills it from a YAML file,
// then applies LOB_* environment overrides.
type Config struct {
	Feed struct {
		Path       string `yaml:"path"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"feed"`

	Book struct {
		Index        string `yaml:"index"` // skiplist, rbtree, llrb
		TreeCapacity int32  `yaml:"tree_capacity"`
		MaxOrders    int32  `yaml:"max_orders"`
		MaxLevels    int32  `yaml:"max_levels"`
		MaxBooks     int    `yaml:"max_books"`
		Policy       string `yaml:"policy"` // retain, release
	} `yaml:"book"`

	Replay struct {
		ApplyExecutions bool   `yaml:"apply_executions"`
		SnapshotEvery   uint64 `yaml:"snapshot_every"`
		Verify          bool   `yaml:"verify"`
		Shards          int    `yaml:"shards"`
		RingSize        int64  `yaml:"ring_size"`
	} `yaml:"replay"`

	Snapshot struct {
		Dir    string `yaml:"dir"`
		SQLite string `yaml:"sqlite"`
		Pebble string `yaml:"pebble"`
	} `yaml:"snapshot"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		Async   bool     `yaml:"async"`
	} `yaml:"kafka"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// Default returns a configuration with every optional value set.
func Default() *Config {
	var cfg Config
	cfg.Feed.BufferSize = 64 * 1024
	cfg.Book.Index = string(lob.IndexSkiplist)
	cfg.Book.TreeCapacity = lob.DefaultTreeCapacity
	cfg.Book.MaxOrders = lob.DefaultMaxOrders
	cfg.Book.MaxLevels = lob.DefaultMaxLevels
	cfg.Book.MaxBooks = lob.DefaultMaxBooks
	cfg.Book.Policy = string(lob.PolicyRetain)
	cfg.Replay.Shards = 1
	cfg.Replay.RingSize = lob.DefaultRingSize
	cfg.Kafka.Topic = "lob.book_logs"
	cfg.Logging.Level = "info"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28
	return &cfg
}

// Load reads path over the defaults. An empty path uses the defaults and
// the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if minBuffer := itch.HeaderLength + itch.MaxMessageLength; c.Feed.BufferSize <= minBuffer {
		return fmt.Errorf("feed buffer size must exceed %d bytes, got %d", minBuffer, c.Feed.BufferSize)
	}

	switch lob.IndexKind(c.Book.Index) {
	case lob.IndexSkiplist, lob.IndexRBTree, lob.IndexLLRB:
	default:
		return fmt.Errorf("unknown book index %q", c.Book.Index)
	}
	if c.Book.TreeCapacity <= 0 {
		return fmt.Errorf("tree capacity must be positive")
	}
	if c.Book.MaxOrders <= 0 || c.Book.MaxLevels <= 0 || c.Book.MaxBooks <= 0 {
		return fmt.Errorf("pool capacities must be positive")
	}
	switch lob.Policy(c.Book.Policy) {
	case lob.PolicyRetain, lob.PolicyRelease:
	default:
		return fmt.Errorf("unknown book policy %q", c.Book.Policy)
	}

	if c.Replay.Shards <= 0 {
		return fmt.Errorf("shards must be positive")
	}
	if c.Replay.Shards > 1 {
		if c.Replay.SnapshotEvery > 0 {
			return fmt.Errorf("periodic snapshots are not supported with %d shards", c.Replay.Shards)
		}
		if c.Replay.RingSize <= 0 || c.Replay.RingSize&(c.Replay.RingSize-1) != 0 {
			return fmt.Errorf("ring size must be a power of 2, got %d", c.Replay.RingSize)
		}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// RegistryConfig returns the pool sizing of one registry.
func (c *Config) RegistryConfig() lob.RegistryConfig {
	return lob.RegistryConfig{
		MaxOrders: c.Book.MaxOrders,
		MaxLevels: c.Book.MaxLevels,
		MaxBooks:  c.Book.MaxBooks,
		Policy:    lob.Policy(c.Book.Policy),
	}
}

// ReplayConfig returns the replay loop settings.
func (c *Config) ReplayConfig() lob.ReplayConfig {
	return lob.ReplayConfig{
		BufferSize:      c.Feed.BufferSize,
		ApplyExecutions: c.Replay.ApplyExecutions,
		SnapshotEvery:   c.Replay.SnapshotEvery,
		Verify:          c.Replay.Verify,
	}
}

// BookOptions returns the options applied to every book.
func (c *Config) BookOptions() []lob.BookOption {
	return []lob.BookOption{
		lob.WithIndex(lob.IndexKind(c.Book.Index)),
		lob.WithTreeCapacity(c.Book.TreeCapacity),
	}
}

// overrideWithEnv applies LOB_* variables that are set.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("LOB_FEED_PATH"); v != "" {
		cfg.Feed.Path = v
	}
	if v := os.Getenv("LOB_BOOK_INDEX"); v != "" {
		cfg.Book.Index = v
	}
	if v := os.Getenv("LOB_BOOK_POLICY"); v != "" {
		cfg.Book.Policy = v
	}
	if v := os.Getenv("LOB_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("LOB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LOB_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("LOB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOB_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("LOB_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOB_SHARDS: %w", err)
		}
		cfg.Replay.Shards = n
	}
	if v := os.Getenv("LOB_APPLY_EXECUTIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOB_APPLY_EXECUTIONS: %w", err)
		}
		cfg.Replay.ApplyExecutions = b
	}
	return nil
}
