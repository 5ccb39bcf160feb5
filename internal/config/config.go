package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// LicenseConfig configures the floating-license lease client.
type LicenseConfig struct {
	// ServerURL is the base path of the license server; the client POSTs to
	// {ServerURL}/create, {ServerURL}/renew and {ServerURL}/release.
	ServerURL string `yaml:"server_url" envconfig:"SERVER_URL" default:"http://localhost:8090/license" validate:"required,url"`
	ProductID string `yaml:"product_id" envconfig:"PRODUCT_ID" default:"liclease" validate:"required"`
	Version   string `yaml:"version" envconfig:"VERSION"`
	Platform  string `yaml:"platform" envconfig:"PLATFORM"`

	// AuthScheme selects how requests authenticate against the license
	// server: "none", "basic" (HTTP Basic) or "cookie" (verbatim Cookie header).
	AuthScheme string `yaml:"auth_scheme" envconfig:"AUTH_SCHEME" default:"none" validate:"oneof=none basic cookie"`
	Username   string `yaml:"username" envconfig:"USERNAME"`
	Password   string `yaml:"password" envconfig:"PASSWORD"`
	Cookie     string `yaml:"cookie" envconfig:"COOKIE"`

	// PublicKeyFile optionally overrides the embedded license public key.
	PublicKeyFile string `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE"`

	// RenewalWindow is how far ahead of expiry the client renews a held lease.
	RenewalWindow time.Duration `yaml:"renewal_window" envconfig:"RENEWAL_WINDOW" default:"60m"`
}

// ServerConfig contains HTTP server configuration for the development
// license server (licd).
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8090" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxSeats caps concurrent leases per product.
	MaxSeats int `yaml:"max_seats" envconfig:"MAX_SEATS" default:"5" validate:"gt=0"`

	// LeaseTTL is the validity window stamped into issued temporal tokens.
	LeaseTTL time.Duration `yaml:"lease_ttl" envconfig:"LEASE_TTL" default:"4h"`

	// PrivateKeyFile optionally loads the signing key; licd generates an
	// ephemeral key when empty.
	PrivateKeyFile string `yaml:"private_key_file" envconfig:"PRIVATE_KEY_FILE"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for create requests
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"20"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/liclease.log"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("LICLEASE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileCfg, envCfg Config) Config {
	if envCfg.License.ServerURL == "" {
		envCfg.License.ServerURL = fileCfg.License.ServerURL
	}
	if envCfg.License.ProductID == "" {
		envCfg.License.ProductID = fileCfg.License.ProductID
	}
	if envCfg.License.Version == "" {
		envCfg.License.Version = fileCfg.License.Version
	}
	if envCfg.License.Platform == "" {
		envCfg.License.Platform = fileCfg.License.Platform
	}
	if envCfg.License.AuthScheme == "" {
		envCfg.License.AuthScheme = fileCfg.License.AuthScheme
	}
	if envCfg.License.Username == "" {
		envCfg.License.Username = fileCfg.License.Username
	}
	if envCfg.License.Password == "" {
		envCfg.License.Password = fileCfg.License.Password
	}
	if envCfg.License.Cookie == "" {
		envCfg.License.Cookie = fileCfg.License.Cookie
	}
	if envCfg.License.PublicKeyFile == "" {
		envCfg.License.PublicKeyFile = fileCfg.License.PublicKeyFile
	}
	if envCfg.License.RenewalWindow == 0 {
		envCfg.License.RenewalWindow = fileCfg.License.RenewalWindow
	}
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Server.MaxSeats == 0 {
		envCfg.Server.MaxSeats = fileCfg.Server.MaxSeats
	}
	if envCfg.Server.LeaseTTL == 0 {
		envCfg.Server.LeaseTTL = fileCfg.Server.LeaseTTL
	}
	if envCfg.Server.PrivateKeyFile == "" {
		envCfg.Server.PrivateKeyFile = fileCfg.Server.PrivateKeyFile
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	if envCfg.Logging.FilePath == "" {
		envCfg.Logging.FilePath = fileCfg.Logging.FilePath
	}

	return envCfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.License.AuthScheme == "basic" && c.License.Username == "" {
		return fmt.Errorf("auth scheme %q requires a username", c.License.AuthScheme)
	}
	if c.License.AuthScheme == "cookie" && c.License.Cookie == "" {
		return fmt.Errorf("auth scheme %q requires a cookie value", c.License.AuthScheme)
	}

	if c.License.RenewalWindow < 0 {
		return fmt.Errorf("renewal window must not be negative")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	return nil
}

// findConfigFile returns the path to the config file, if any
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		License: LicenseConfig{
			ServerURL:     "http://localhost:8090/license",
			ProductID:     "liclease",
			AuthScheme:    "none",
			RenewalWindow: 60 * time.Minute,
		},
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxSeats:        5,
			LeaseTTL:        4 * time.Hour,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/liclease.log",
		},
	}
}
