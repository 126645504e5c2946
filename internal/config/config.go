package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	EnvFile   string          `yaml:"env_file"` // Loaded before ${VAR} expansion (default: .env next to the config)
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Jobs      JobsConfig      `yaml:"jobs"`
	TextGen   TextGenConfig   `yaml:"textgen"`
	Export    ExportConfig    `yaml:"export"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Reference ReferenceConfig `yaml:"reference"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Hostname        string        `yaml:"hostname"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Default: 30s
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`   // Max request body (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
	TrustProxy     bool          `yaml:"trust_proxy"`      // Use X-Forwarded-For for the client address
	CORSOrigins    []string      `yaml:"cors_origins"`
	Keys           []APIKey      `yaml:"keys"`
}

// APIKey maps a bcrypt hashed key to the owner it authenticates
type APIKey struct {
	Owner string `yaml:"owner"`
	Hash  string `yaml:"hash"`
}

// AuthConfig contains bearer token settings
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`    // Default: flowry
	TokenTTL  time.Duration `yaml:"token_ttl"` // Lifetime of tokens minted by `flowry key token` (default: 24h)
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// JobsConfig contains background job runner settings
type JobsConfig struct {
	Workers         int           `yaml:"workers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	Retention       time.Duration `yaml:"retention"`        // Delete finished jobs older than this (0 = keep forever)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often to run cleanup
	StaleAfter      time.Duration `yaml:"stale_after"`      // Fail jobs processing longer than this (0 = disabled)
}

// TextGenConfig selects the text generation backend
type TextGenConfig struct {
	Provider    string        `yaml:"provider"` // none, bedrock
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ExportConfig selects where export artifacts are stored
type ExportConfig struct {
	Sink string         `yaml:"sink"` // dir, s3
	Dir  string         `yaml:"dir"`
	S3   ExportS3Config `yaml:"s3"`
}

// ExportS3Config contains S3 sink settings
type ExportS3Config struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// CacheConfig contains readiness report cache settings
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// RateLimitConfig contains quotas for AI-backed requests
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RequestsPerHour int           `yaml:"requests_per_hour"` // Per owner (0 = unlimited)
	RequestsPerDay  int           `yaml:"requests_per_day"`  // Per owner (0 = unlimited)
	Global          *LimitValues  `yaml:"global,omitempty"`  // Whole server
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

// LimitValues contains rate limit values
type LimitValues struct {
	RequestsPerHour int `yaml:"requests_per_hour"`
	RequestsPerDay  int `yaml:"requests_per_day"`
}

// ReadinessConfig tunes the readiness analyzer
type ReadinessConfig struct {
	ScoreAdvisory       bool `yaml:"score_advisory"`
	PerNodeConditionals bool `yaml:"per_node_conditionals"`
}

// ReferenceConfig points at an alternative reference catalog
type ReferenceConfig struct {
	Path string `yaml:"path"` // Empty = embedded catalog
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

// MCPConfig contains settings for the stdio tool server
type MCPConfig struct {
	Owner string `yaml:"owner"` // Owner whose campaigns the tools operate on
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file.
// Environment files are loaded first so ${VAR} references can use them.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := loadEnvFile(path, data); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// envRef only matches the braced form so bcrypt hashes like $2a$10$... survive
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// loadEnvFile loads env_file, or .env next to the config when present.
// Variables already set in the environment win.
func loadEnvFile(configPath string, data []byte) error {
	var head struct {
		EnvFile string `yaml:"env_file"`
	}
	_ = yaml.Unmarshal(data, &head)

	envFile := head.EnvFile
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if !filepath.IsAbs(envFile) {
		envFile = filepath.Join(filepath.Dir(configPath), envFile)
	}

	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Server.Hostname = hostname
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 1 << 20
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "flowry"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/flowry/flowry.db"
	}

	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.PollInterval == 0 {
		c.Jobs.PollInterval = time.Second
	}
	if c.Jobs.JobTimeout == 0 {
		c.Jobs.JobTimeout = 2 * time.Minute
	}
	if c.Jobs.Retention == 0 {
		c.Jobs.Retention = 7 * 24 * time.Hour
	}
	if c.Jobs.CleanupInterval == 0 {
		c.Jobs.CleanupInterval = time.Hour
	}

	if c.TextGen.Provider == "" {
		c.TextGen.Provider = "none"
	}
	if c.TextGen.MaxTokens == 0 {
		c.TextGen.MaxTokens = 1000
	}
	if c.TextGen.Temperature == 0 {
		c.TextGen.Temperature = 0.7
	}
	if c.TextGen.Timeout == 0 {
		c.TextGen.Timeout = 60 * time.Second
	}

	if c.Export.Sink == "" {
		c.Export.Sink = "dir"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = filepath.Join(filepath.Dir(c.Storage.Path), "exports")
	}

	if c.Cache.Addr == "" {
		c.Cache.Addr = "localhost:6379"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}

	if c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Auth.JWTSecret == "" && len(c.API.Keys) == 0 {
		return fmt.Errorf("auth.jwt_secret or api.keys is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}

	for i, k := range c.API.Keys {
		if k.Owner == "" {
			return fmt.Errorf("api.keys[%d].owner is required", i)
		}
		if k.Hash == "" {
			return fmt.Errorf("api.keys[%d].hash is required", i)
		}
	}

	if c.Jobs.Workers < 0 {
		return fmt.Errorf("jobs.workers must not be negative")
	}

	if err := c.validateTextGen(); err != nil {
		return err
	}

	if err := c.validateExport(); err != nil {
		return err
	}

	if c.RateLimit.RequestsPerHour < 0 || c.RateLimit.RequestsPerDay < 0 {
		return fmt.Errorf("rate_limit quotas must not be negative")
	}

	return nil
}

func (c *Config) validateTextGen() error {
	switch c.TextGen.Provider {
	case "none":
	case "bedrock":
		if c.TextGen.Region == "" && os.Getenv("AWS_REGION") == "" {
			return fmt.Errorf("textgen.region or AWS_REGION is required for the bedrock provider")
		}
	default:
		return fmt.Errorf("invalid textgen.provider: %s (must be none or bedrock)", c.TextGen.Provider)
	}

	if c.TextGen.Temperature < 0 || c.TextGen.Temperature > 1 {
		return fmt.Errorf("textgen.temperature must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateExport() error {
	switch c.Export.Sink {
	case "dir":
	case "s3":
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("export.s3.bucket is required when export.sink is s3")
		}
	default:
		return fmt.Errorf("invalid export.sink: %s (must be dir or s3)", c.Export.Sink)
	}
	return nil
}

// TextGenEnabled reports whether a real text generation backend is configured
func (c *Config) TextGenEnabled() bool {
	return c.TextGen.Provider != "none"
}
