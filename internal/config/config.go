package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/evibench/internal/utils"
)

const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is everything the server needs. Only MongoURI is a secret.
type Config struct {
	Addr          string        `yaml:"addr"`
	Backend       string        `yaml:"backend"`
	MongoURI      string        `yaml:"mongo_uri"`
	Database      string        `yaml:"database"`
	SQLitePath    string        `yaml:"sqlite_path"`
	Variant       string        `yaml:"variant"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	AdminKeyHash  string        `yaml:"admin_key_hash"`
	LogMode       string        `yaml:"log_mode"`
	StaticDir     string        `yaml:"static_dir"`
	CORSOrigin    string        `yaml:"cors_origin"`
}

func defaults() Config {
	return Config{
		Addr:         ":8080",
		Database:     "database",
		SQLitePath:   "data/evibench.db",
		Variant:      "extended",
		StoreTimeout: 5 * time.Second,
		SessionTTL:   12 * time.Hour,
		LogMode:      "development",
	}
}

// Load reads .env (if present), then the YAML file named by EVIBENCH_CONFIG
// (if set), then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaults()
	if path := utils.SafeEnv("EVIBENCH_CONFIG", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
		if cfg.MongoURI != "" {
			cfg.Backend = BackendMongo
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = utils.SafeEnv("EVIBENCH_ADDR", cfg.Addr)
	cfg.Backend = utils.SafeEnv("EVIBENCH_BACKEND", cfg.Backend)
	cfg.MongoURI = utils.SafeEnv("MONGO_URI", cfg.MongoURI)
	cfg.Database = utils.SafeEnv("EVIBENCH_DB", cfg.Database)
	cfg.SQLitePath = utils.SafeEnv("EVIBENCH_SQLITE_PATH", cfg.SQLitePath)
	cfg.Variant = utils.SafeEnv("EVIBENCH_VARIANT", cfg.Variant)
	cfg.StoreTimeout = utils.EnvDuration("EVIBENCH_STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.SessionSecret = utils.SafeEnv("EVIBENCH_SESSION_SECRET", cfg.SessionSecret)
	cfg.SessionTTL = utils.EnvDuration("EVIBENCH_SESSION_TTL", cfg.SessionTTL)
	cfg.AdminKeyHash = utils.SafeEnv("EVIBENCH_ADMIN_KEY_HASH", cfg.AdminKeyHash)
	cfg.LogMode = utils.SafeEnv("EVIBENCH_LOG_MODE", cfg.LogMode)
	cfg.StaticDir = utils.SafeEnv("EVIBENCH_STATIC_DIR", cfg.StaticDir)
	cfg.CORSOrigin = utils.SafeEnv("EVIBENCH_CORS_ORIGIN", cfg.CORSOrigin)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("EVIBENCH_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Variant {
	case "basic", "extended":
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	return nil
}
