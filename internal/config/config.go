package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings of the branchplan binary.
type Config struct {
	DBDriver        string `yaml:"db_driver"`
	DB              string `yaml:"db"`
	RedisURL        string `yaml:"redis_url"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	HTTPAddr        string `yaml:"http_addr"`
	MaxTreeDepth    int    `yaml:"max_tree_depth"`
	LogCalls        bool   `yaml:"log_calls"`
}

// DefaultConfig returns a Config with sensible defaults: an embedded SQLite
// database under ~/.branchplan, no cache, unlimited branch depth.
func DefaultConfig() Config {
	dbPath := "branchplan.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".branchplan", "branchplan.db")
	}
	return Config{
		DBDriver:        "sqlite",
		DB:              dbPath,
		CacheTTLSeconds: 300,
		HTTPAddr:        ":8080",
	}
}

// CacheTTL returns the resolve cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadConfig layers configuration sources: defaults, then the YAML file
// named by BRANCHPLAN_CONFIG, then a .env file in the working directory,
// then environment variables. Malformed numeric or boolean variables are
// ignored and keep the previous value.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	if path := os.Getenv("BRANCHPLAN_CONFIG"); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BRANCHPLAN_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("BRANCHPLAN_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("BRANCHPLAN_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("BRANCHPLAN_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("BRANCHPLAN_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("BRANCHPLAN_MAX_TREE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxTreeDepth = n
		}
	}
	if v := os.Getenv("BRANCHPLAN_LOG_CALLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogCalls = b
		}
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case "", "sqlite", "postgres", "postgresql", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DB) == "" {
		return errors.New("database location is required")
	}
	if c.MaxTreeDepth < 0 {
		return fmt.Errorf("max tree depth must not be negative, got %d", c.MaxTreeDepth)
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %d", c.CacheTTLSeconds)
	}
	return nil
}
