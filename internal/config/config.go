package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Icons   IconsConfig   `mapstructure:"icons" yaml:"icons"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// CatalogConfig holds the remote search catalog configuration.
type CatalogConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Entity  string `mapstructure:"entity" yaml:"entity"`
	Country string `mapstructure:"country" yaml:"country"`
	Limit   int    `mapstructure:"limit" yaml:"limit"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `mapstructure:"timeout" yaml:"timeout"`
	// MaxBytes caps the size of a search response body.
	MaxBytes int64 `mapstructure:"max_bytes" yaml:"max_bytes"`

	// ProbeTerm is the query issued by the scheduled catalog probe.
	ProbeTerm string `mapstructure:"probe_term" yaml:"probe_term"`
	// ProbeCron is the cron expression for the catalog probe. Empty disables it.
	ProbeCron string `mapstructure:"probe_cron" yaml:"probe_cron"`
}

// IconsConfig holds icon loading configuration.
type IconsConfig struct {
	// Timeout is the per-icon HTTP request timeout in seconds.
	Timeout        int   `mapstructure:"timeout" yaml:"timeout"`
	MaxBytes       int64 `mapstructure:"max_bytes" yaml:"max_bytes"`
	PrefetchAhead  int   `mapstructure:"prefetch_ahead" yaml:"prefetch_ahead"`
	PrefetchBehind int   `mapstructure:"prefetch_behind" yaml:"prefetch_behind"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Catalog: CatalogConfig{
			BaseURL:   "https://itunes.apple.com/search",
			Entity:    "software",
			Country:   "us",
			Limit:     25,
			Timeout:   15,
			MaxBytes:  10 << 20,
			ProbeTerm: "mail",
			ProbeCron: "*/15 * * * *",
		},
		Icons: IconsConfig{
			Timeout:        20,
			MaxBytes:       5 << 20,
			PrefetchAhead:  4,
			PrefetchBehind: 2,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults
func Load(configPath string) (*Config, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.appsearch")
	}

	v.SetEnvPrefix("APPSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults mirrors Default into viper so env vars can override any key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("catalog.base_url", d.Catalog.BaseURL)
	v.SetDefault("catalog.entity", d.Catalog.Entity)
	v.SetDefault("catalog.country", d.Catalog.Country)
	v.SetDefault("catalog.limit", d.Catalog.Limit)
	v.SetDefault("catalog.timeout", d.Catalog.Timeout)
	v.SetDefault("catalog.max_bytes", d.Catalog.MaxBytes)
	v.SetDefault("catalog.probe_term", d.Catalog.ProbeTerm)
	v.SetDefault("catalog.probe_cron", d.Catalog.ProbeCron)

	v.SetDefault("icons.timeout", d.Icons.Timeout)
	v.SetDefault("icons.max_bytes", d.Icons.MaxBytes)
	v.SetDefault("icons.prefetch_ahead", d.Icons.PrefetchAhead)
	v.SetDefault("icons.prefetch_behind", d.Icons.PrefetchBehind)
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Catalog.MaxBytes <= 0 || c.Icons.MaxBytes <= 0 {
		return fmt.Errorf("catalog.max_bytes and icons.max_bytes must be positive")
	}
	if c.Catalog.Limit < 0 {
		return fmt.Errorf("catalog.limit must not be negative")
	}
	if c.Icons.PrefetchAhead < 0 || c.Icons.PrefetchBehind < 0 {
		return fmt.Errorf("icons prefetch windows must not be negative")
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to path.
// It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
