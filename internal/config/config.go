// Package config provides runtime configuration values for the client, the
// CLI and the stub backend.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session storage backends.
const (
	SessionFile   = "file"
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config holds configuration knobs for the API client and the stub backend.
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LoginPath      string        `yaml:"login_path"`
	LogLevel       string        `yaml:"log_level"`

	SessionBackend string `yaml:"session_backend"`
	SessionPath    string `yaml:"session_path"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisDB        int    `yaml:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix"`

	RateLimitRPS    int           `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	RetryMax        int           `yaml:"retry_max"`

	PersistCart bool `yaml:"persist_cart"`
	CartSync    bool `yaml:"cart_sync"`

	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StubCatalogPath string        `yaml:"stub_catalog"`
	StubJWTSecret   string        `yaml:"stub_jwt_secret"`
	StubTokenTTL    time.Duration `yaml:"stub_token_ttl"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvms(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	sec, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(sec) * time.Second
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIBaseURL:      "http://127.0.0.1:8000",
		RequestTimeout:  10 * time.Second,
		LoginPath:       "/login",
		LogLevel:        "info",
		SessionBackend:  SessionFile,
		SessionPath:     defaultSessionPath(),
		RedisAddr:       "localhost:6379",
		RedisPrefix:     "storefront:",
		RateLimitBurst:  1,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		HTTPAddr:        ":8000",
		ShutdownTimeout: 15 * time.Second,
		StubJWTSecret:   "storefront-stub-secret",
		StubTokenTTL:    24 * time.Hour,
	}
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "storefront", "session.json")
	}
	return filepath.Join(home, ".storefront", "session.json")
}

// Load collects configuration from .env, an optional YAML file named by
// STOREFRONT_CONFIG, and the environment, in increasing precedence.
func Load() Config {
	_ = godotenv.Load()
	base := Defaults()
	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		if fromFile, err := LoadFile(path); err == nil {
			base = fromFile
		}
	}
	return applyEnv(base)
}

// LoadFile reads a YAML config file on top of Defaults.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

func applyEnv(c Config) Config {
	c.APIBaseURL = getenv("STOREFRONT_API_URL", c.APIBaseURL)
	c.RequestTimeout = durenvms("STOREFRONT_TIMEOUT_MS", c.RequestTimeout)
	c.LoginPath = getenv("STOREFRONT_LOGIN_PATH", c.LoginPath)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.SessionBackend = strings.ToLower(getenv("SESSION_BACKEND", c.SessionBackend))
	c.SessionPath = getenv("SESSION_PATH", c.SessionPath)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.RedisDB = atoienv("REDIS_DB", c.RedisDB)
	c.RedisPrefix = getenv("REDIS_PREFIX", c.RedisPrefix)
	c.RateLimitRPS = atoienv("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = atoienv("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.BreakerFailures = atoienv("BREAKER_FAILURES", c.BreakerFailures)
	c.BreakerTimeout = durenvs("BREAKER_TIMEOUT", c.BreakerTimeout)
	c.RetryMax = atoienv("RETRY_MAX", c.RetryMax)
	c.PersistCart = boolenv("PERSIST_CART", c.PersistCart)
	c.CartSync = boolenv("CART_SYNC", c.CartSync)
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.StubCatalogPath = getenv("STUB_CATALOG", c.StubCatalogPath)
	c.StubJWTSecret = getenv("STUB_JWT_SECRET", c.StubJWTSecret)
	c.StubTokenTTL = durenvs("STUB_TOKEN_TTL", c.StubTokenTTL)
	return c
}

// Validate reports configuration that the client cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid api base url %q", c.APIBaseURL)
	}
	switch c.SessionBackend {
	case SessionFile, SessionMemory, SessionRedis:
	default:
		return errors.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.RateLimitRPS < 0 || c.RetryMax < 0 {
		return errors.New("rate limit and retry count must not be negative")
	}
	return nil
}
