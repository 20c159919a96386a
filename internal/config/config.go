package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. WACONSOLE_API_URL.
const EnvPrefix = "WACONSOLE"

type Config struct {
	API   APIConfig   `yaml:"api"`
	Poll  PollConfig  `yaml:"poll"`
	Relay RelayConfig `yaml:"relay"`
	Log   LogConfig   `yaml:"log"`
}

type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Key             string        `yaml:"key"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

type PollConfig struct {
	Interval           time.Duration `yaml:"interval"`
	Ceiling            time.Duration `yaml:"ceiling"`
	ConnectionsRefresh time.Duration `yaml:"connections_refresh"`
}

type RelayConfig struct {
	// URL is the push channel the console subscribes to.
	URL           string        `yaml:"url"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Token         string        `yaml:"token"`
	MaxEvents     int           `yaml:"max_events"`
	SimulateDelay time.Duration `yaml:"simulate_delay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// envOverlay is the flat view of Config that envconfig fills. Unset variables
// leave the YAML value in place.
type envOverlay struct {
	APIURL          string        `envconfig:"API_URL"`
	APIKey          string        `envconfig:"API_KEY"`
	APITimeout      time.Duration `envconfig:"API_TIMEOUT"`
	RateLimit       float64       `envconfig:"RATE_LIMIT"`
	Burst           int           `envconfig:"BURST"`
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL"`
	PollCeiling     time.Duration `envconfig:"POLL_CEILING"`
	RelayURL        string        `envconfig:"RELAY_URL"`
	RelayHost       string        `envconfig:"RELAY_HOST"`
	RelayPort       int           `envconfig:"RELAY_PORT"`
	RelayToken      string        `envconfig:"RELAY_TOKEN"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	LogFormat       string        `envconfig:"LOG_FORMAT"`
	LogFile         string        `envconfig:"LOG_FILE"`
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         "http://localhost:3000",
			Timeout:         30 * time.Second,
			RateLimit:       5,
			Burst:           10,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Poll: PollConfig{
			Interval:           3 * time.Second,
			Ceiling:            5 * time.Minute,
			ConnectionsRefresh: 30 * time.Second,
		},
		Relay: RelayConfig{
			URL:           "ws://127.0.0.1:3005/ws",
			Host:          "0.0.0.0",
			Port:          3005,
			MaxEvents:     100,
			SimulateDelay: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays WACONSOLE_* environment variables onto cfg.
func (c *Config) ApplyEnv() error {
	ov := envOverlay{
		APIURL:          c.API.BaseURL,
		APIKey:          c.API.Key,
		APITimeout:      c.API.Timeout,
		RateLimit:       c.API.RateLimit,
		Burst:           c.API.Burst,
		BreakerFailures: c.API.BreakerFailures,
		BreakerCooldown: c.API.BreakerCooldown,
		PollInterval:    c.Poll.Interval,
		PollCeiling:     c.Poll.Ceiling,
		RelayURL:        c.Relay.URL,
		RelayHost:       c.Relay.Host,
		RelayPort:       c.Relay.Port,
		RelayToken:      c.Relay.Token,
		LogLevel:        c.Log.Level,
		LogFormat:       c.Log.Format,
		LogFile:         c.Log.File,
	}
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return err
	}

	c.API.BaseURL = strings.TrimRight(ov.APIURL, "/")
	c.API.Key = ov.APIKey
	c.API.Timeout = ov.APITimeout
	c.API.RateLimit = ov.RateLimit
	c.API.Burst = ov.Burst
	c.API.BreakerFailures = ov.BreakerFailures
	c.API.BreakerCooldown = ov.BreakerCooldown
	c.Poll.Interval = ov.PollInterval
	c.Poll.Ceiling = ov.PollCeiling
	c.Relay.URL = ov.RelayURL
	c.Relay.Host = ov.RelayHost
	c.Relay.Port = ov.RelayPort
	c.Relay.Token = ov.RelayToken
	c.Log.Level = ov.LogLevel
	c.Log.Format = ov.LogFormat
	c.Log.File = ov.LogFile
	return nil
}

// Validate rejects values the reconciler and relay cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Poll.Ceiling < c.Poll.Interval {
		return fmt.Errorf("poll.ceiling (%v) must not be shorter than poll.interval (%v)", c.Poll.Ceiling, c.Poll.Interval)
	}
	if c.Relay.MaxEvents <= 0 {
		return fmt.Errorf("relay.max_events must be positive, got %d", c.Relay.MaxEvents)
	}
	return nil
}
