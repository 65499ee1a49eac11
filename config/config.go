package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the crowdsaled node configuration, stored as TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	SaleManifest  string `toml:"SaleManifest"`
	AssetsDSN     string `toml:"AssetsDSN"`
	NonceDB       string `toml:"NonceDB"`
	Environment   string `toml:"Environment"`

	Auth       AuthConfig           `toml:"auth"`
	RateLimits map[string]RateLimit `toml:"rate_limits"`
	CORS       CORSConfig           `toml:"cors"`
	Telemetry  TelemetryConfig      `toml:"telemetry"`
	Logging    LoggingConfig        `toml:"logging"`
	Dispatcher DispatcherConfig     `toml:"dispatcher"`
	RateFeed   RateFeedConfig       `toml:"ratefeed"`
	Webhook    WebhookConfig        `toml:"webhook"`
	Reports    ReportsConfig        `toml:"reports"`
}

// AuthConfig holds the gateway authentication settings. Secrets may be
// supplied through the environment variable named by JWTSecretEnv.
type AuthConfig struct {
	JWTSecret     string        `toml:"JWTSecret"`
	JWTSecretEnv  string        `toml:"JWTSecretEnv"`
	Issuer        string        `toml:"Issuer"`
	Audience      string        `toml:"Audience"`
	SignatureSkew time.Duration `toml:"SignatureSkew"`
}

type RateLimit struct {
	RatePerSecond float64 `toml:"RatePerSecond"`
	Burst         int     `toml:"Burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `toml:"AllowedOrigins"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

type DispatcherConfig struct {
	Interval  time.Duration `toml:"Interval"`
	BatchSize int           `toml:"BatchSize"`
}

type RateFeedConfig struct {
	Enabled  bool          `toml:"Enabled"`
	Schedule string        `toml:"Schedule"`
	MaxAge   time.Duration `toml:"MaxAge"`
	MinFeeds int           `toml:"MinFeeds"`
	Sources  []FeedSource  `toml:"sources"`
}

// FeedSource describes one upstream price source. Rates applies to static
// sources and maps "BASE/QUOTE" pairs to decimal prices.
type FeedSource struct {
	Name      string            `toml:"Name"`
	Type      string            `toml:"Type"`
	Endpoint  string            `toml:"Endpoint"`
	APIKeyEnv string            `toml:"APIKeyEnv"`
	Rates     map[string]string `toml:"Rates"`
}

type WebhookConfig struct {
	URL         string        `toml:"URL"`
	SecretEnv   string        `toml:"SecretEnv"`
	QueueSize   int           `toml:"QueueSize"`
	MaxAttempts int           `toml:"MaxAttempts"`
	Backoff     time.Duration `toml:"Backoff"`
}

// ReportsConfig schedules periodic settlement snapshots written as Parquet.
type ReportsConfig struct {
	Dir      string `toml:"Dir"`
	Schedule string `toml:"Schedule"`
}

// Load reads the configuration at path. A missing file is replaced by a
// default configuration written to disk.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSecret returns the JWT secret, preferring the environment.
func (a AuthConfig) ResolveSecret() string {
	if env := strings.TrimSpace(a.JWTSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(a.JWTSecret)
}

func (c *Config) applyDefaults(baseDir string) {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./crowdsale-data"
	}
	if !filepath.IsAbs(c.DataDir) && baseDir != "" {
		c.DataDir = filepath.Join(baseDir, c.DataDir)
	}
	if strings.TrimSpace(c.SaleManifest) == "" {
		c.SaleManifest = "sale.yaml"
	}
	if !filepath.IsAbs(c.SaleManifest) && baseDir != "" {
		c.SaleManifest = filepath.Join(baseDir, c.SaleManifest)
	}
	if strings.TrimSpace(c.AssetsDSN) == "" {
		c.AssetsDSN = filepath.Join(c.DataDir, "assets.db")
	}
	if strings.TrimSpace(c.NonceDB) == "" {
		c.NonceDB = filepath.Join(c.DataDir, "nonces.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if c.Auth.SignatureSkew <= 0 {
		c.Auth.SignatureSkew = 2 * time.Minute
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimit{
			"public":   {RatePerSecond: 20, Burst: 40},
			"admin":    {RatePerSecond: 5, Burst: 10},
			"notify":   {RatePerSecond: 50, Burst: 100},
			"investor": {RatePerSecond: 2, Burst: 5},
		}
	}
	if c.Telemetry.SampleRatio <= 0 {
		c.Telemetry.SampleRatio = 1
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Dispatcher.Interval <= 0 {
		c.Dispatcher.Interval = 5 * time.Second
	}
	if c.Dispatcher.BatchSize <= 0 {
		c.Dispatcher.BatchSize = 100
	}
	if strings.TrimSpace(c.RateFeed.Schedule) == "" {
		c.RateFeed.Schedule = "@daily"
	}
	if c.RateFeed.MaxAge <= 0 {
		c.RateFeed.MaxAge = 10 * time.Minute
	}
	if c.RateFeed.MinFeeds <= 0 {
		c.RateFeed.MinFeeds = 1
	}
	if c.Webhook.QueueSize <= 0 {
		c.Webhook.QueueSize = 256
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = 5
	}
	if c.Webhook.Backoff <= 0 {
		c.Webhook.Backoff = time.Second
	}
	if strings.TrimSpace(c.Reports.Dir) != "" && strings.TrimSpace(c.Reports.Schedule) == "" {
		c.Reports.Schedule = "@hourly"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./crowdsale-data",
		SaleManifest:  "sale.yaml",
		Environment:   "dev",
		Auth:          AuthConfig{JWTSecretEnv: "CROWDSALE_JWT_SECRET", Issuer: "crowdsale"},
		Logging:       LoggingConfig{Level: "info"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
