/*
Package config loads runtime configuration.

PURPOSE:
  One Config value drives the server, the CLI and the generator. Values come
  from, in increasing precedence:
    1. DefaultConfig()
    2. A YAML file (optional; a missing file keeps the defaults)
    3. Environment variables, after .env is loaded

ENVIRONMENT:
  PRACTICE_PORT        server.port
  PRACTICE_DB          database.path
  PRACTICE_LOG_LEVEL   logging.level
  PRACTICE_REDIS_ADDR  redis.addr (enables the Redis generation lock)

EXAMPLE:
  server:
    port: "8080"
    allowed_origins: ["https://app.example.com"]
    read_timeout: 15s
  database:
    path: ./data/practice.db
  logging:
    level: info
    format: json
  redis:
    addr: localhost:6379
    lock_ttl: 2m
  generation:
    category_overrides:
      PT: PAYROLL

SEE ALSO:
  - logger.go: Logger construction
  - cmd/server/main.go: --config flag
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      RedisConfig      `yaml:"redis"`
	Generation GenerationConfig `yaml:"generation"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// RedisConfig configures the cross-process generation lock. An empty Addr
// selects the in-process lock.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type GenerationConfig struct {
	// CategoryOverrides maps compliance codes to the work type a client must
	// declare, on top of the built-in map.
	CategoryOverrides map[string]string `yaml:"category_overrides,omitempty"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./practice.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			LockTTL: 2 * time.Minute,
		},
	}
}

// Load loads configuration from a YAML file. An empty path or a missing file
// yields the defaults; environment overrides apply in every case.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PRACTICE_PORT"); port != "" {
		c.Server.Port = port
	}
	if path := os.Getenv("PRACTICE_DB"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("PRACTICE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("PRACTICE_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port not configured (set server.port or PRACTICE_PORT)")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path not configured (set database.path or PRACTICE_DB)")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive when redis.addr is set")
	}
	return nil
}

// UsesRedisLock reports whether generation runs are locked through Redis.
func (c *Config) UsesRedisLock() bool {
	return c.Redis.Addr != ""
}
