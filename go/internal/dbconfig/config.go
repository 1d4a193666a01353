package dbconfig

import (
	"net/url"
	"os"
	"strconv"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// MaxConns sizes the pgx pool; zero leaves the pgx default.
	MaxConns int
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "dynasty"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		MaxConns: getEnvAsInt("DB_MAX_CONNS", 0),
	}
}

// DSN returns the Postgres connection URL understood by both pgx and lib/pq.
func (c Config) DSN() string {
	return c.url(nil).String()
}

// PoolDSN is DSN plus the pgxpool sizing parameters. lib/pq rejects them, so
// the LISTEN connection uses DSN.
func (c Config) PoolDSN() string {
	extra := url.Values{}
	if c.MaxConns > 0 {
		extra.Set("pool_max_conns", strconv.Itoa(c.MaxConns))
	}
	return c.url(extra).String()
}

func (c Config) url(extra url.Values) *url.URL {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	for k, v := range extra {
		q[k] = v
	}
	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
