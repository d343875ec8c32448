// Package config loads mnemo configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemo configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Semantic SemanticConfig `yaml:"semantic"`
	Cache    CacheConfig    `yaml:"cache"`
	Dynamics DynamicsConfig `yaml:"dynamics"`
	Ranker   RankerConfig   `yaml:"ranker"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty resolves to store.DefaultDBPath()
}

// SemanticConfig points at the external semantic memory store.
type SemanticConfig struct {
	URL     string `yaml:"url"`
	AgentID string `yaml:"agent_id"`
	Timeout int    `yaml:"timeout"` // seconds
}

type CacheConfig struct {
	Enabled      bool `yaml:"enabled"`
	SearchTTL    int  `yaml:"search_ttl"`       // seconds
	KeyMemoryTTL int  `yaml:"key_memories_ttl"` // seconds
}

type DynamicsConfig struct {
	PruneEvery    int `yaml:"prune_every"`    // promotions between prunes
	RetentionDays int `yaml:"retention_days"` // access-log retention
}

type RankerConfig struct {
	MaxKeyMemories int `yaml:"max_key_memories"`
	MaxPerBucket   int `yaml:"max_per_bucket"`
	MaxRelations   int `yaml:"max_relations"`
	MaxQueryChars  int `yaml:"max_query_chars"`
}

// Default returns a Config with sensible defaults. The semantic store URL
// has no default; serve refuses to start without it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37790,
		},
		Semantic: SemanticConfig{
			AgentID: "mnemo",
			Timeout: 10,
		},
		Cache: CacheConfig{
			Enabled:      true,
			SearchTTL:    300,
			KeyMemoryTTL: 600,
		},
		Dynamics: DynamicsConfig{
			PruneEvery:    50,
			RetentionDays: 90,
		},
		Ranker: RankerConfig{
			MaxKeyMemories: 15,
			MaxPerBucket:   35,
			MaxRelations:   20,
			MaxQueryChars:  6000,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// SemanticTimeout returns the semantic client timeout as a duration.
func (c Config) SemanticTimeout() time.Duration {
	return time.Duration(c.Semantic.Timeout) * time.Second
}

// DefaultPath returns the config file location, honoring MNEMO_CONFIG.
func DefaultPath() string {
	if p := os.Getenv("MNEMO_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "mnemo.yaml"
	}
	return home + "/.mnemo/config.yaml"
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MNEMO_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("MNEMO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MNEMO_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MNEMO_SEMANTIC_URL"); v != "" {
		cfg.Semantic.URL = v
	}
	if v := os.Getenv("MNEMO_AGENT_ID"); v != "" {
		cfg.Semantic.AgentID = v
	}
}

// Validate reports problems that make the process unable to serve.
func (c Config) Validate() error {
	if c.Semantic.URL == "" {
		return fmt.Errorf("semantic store URL is required (set semantic.url or MNEMO_SEMANTIC_URL)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}
