package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Store struct {
		Backend   string `yaml:"backend"` // postgres or redis
		RedisAddr string `yaml:"redis_addr"`
		Migrate   bool   `yaml:"migrate"`
	} `yaml:"store"`

	// Tokens and team ownership may come from different backends; TeamSource
	// defaults to Source.
	Identity struct {
		Source     string `yaml:"source"` // file or postgres
		TeamSource string `yaml:"team_source"`
		File       string `yaml:"file"`
	} `yaml:"identity"`

	Rankings struct {
		Source    string `yaml:"source"` // file or postgres
		File      string `yaml:"file"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"rankings"`

	// An empty NATS URL disables the event stream.
	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Draft struct {
		TickInterval time.Duration `yaml:"tick_interval"`
		ChatHistory  int           `yaml:"chat_history"`
	} `yaml:"draft"`

	Scheduler struct {
		Workers int  `yaml:"workers"`
		Listen  bool `yaml:"listen"`
	} `yaml:"scheduler"`
}

func defaultConfig() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.LogLevel = "info"
	c.ShutdownTimeout = 15 * time.Second
	c.Store.Backend = "postgres"
	c.Store.RedisAddr = "localhost:6379"
	c.Identity.Source = "postgres"
	c.Rankings.Source = "postgres"
	c.Rankings.CacheSize = 64
	c.NATS.Stream = "DRAFT_EVENTS"
	c.NATS.SubjectPrefix = "draft.events"
	c.Draft.TickInterval = time.Second
	c.Draft.ChatHistory = 50
	c.Scheduler.Workers = 4
	c.Scheduler.Listen = true
	return c
}

// loadConfig starts from the defaults, applies the YAML file at path when
// given, then the environment.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.Migrate = getEnvAsBool("STORE_MIGRATE", c.Store.Migrate)

	c.Identity.Source = getEnv("IDENTITY_SOURCE", c.Identity.Source)
	c.Identity.TeamSource = getEnv("IDENTITY_TEAM_SOURCE", c.Identity.TeamSource)
	c.Identity.File = getEnv("IDENTITY_FILE", c.Identity.File)
	if c.Identity.TeamSource == "" {
		c.Identity.TeamSource = c.Identity.Source
	}

	c.Rankings.Source = getEnv("RANKINGS_SOURCE", c.Rankings.Source)
	c.Rankings.File = getEnv("RANKINGS_FILE", c.Rankings.File)
	c.Rankings.CacheSize = getEnvAsInt("RANKINGS_CACHE_SIZE", c.Rankings.CacheSize)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Draft.TickInterval = getEnvAsDuration("DRAFT_TICK_INTERVAL", c.Draft.TickInterval)
	c.Draft.ChatHistory = getEnvAsInt("DRAFT_CHAT_HISTORY", c.Draft.ChatHistory)

	c.Scheduler.Workers = getEnvAsInt("SCHEDULER_WORKERS", c.Scheduler.Workers)
	c.Scheduler.Listen = getEnvAsBool("SCHEDULER_LISTEN", c.Scheduler.Listen)
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	for name, src := range map[string]struct{ source, file string }{
		"identity": {c.Identity.Source, c.Identity.File},
		"team":     {c.Identity.TeamSource, c.Identity.File},
		"rankings": {c.Rankings.Source, c.Rankings.File},
	} {
		switch src.source {
		case "postgres":
		case "file":
			if src.file == "" {
				return fmt.Errorf("%s source is file but no file is configured", name)
			}
		default:
			return fmt.Errorf("unknown %s source %q", name, src.source)
		}
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// needsPostgres reports whether any component reads from Postgres.
func (c Config) needsPostgres() bool {
	return c.Store.Backend == "postgres" ||
		c.Identity.Source == "postgres" ||
		c.Identity.TeamSource == "postgres" ||
		c.Rankings.Source == "postgres"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
