package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `
server:
  hostname: "flowry.test"

api:
  listen_addr: ":9080"
  allowed_ips: ["10.0.0.0/8"]
  cors_origins: ["https://app.example.com"]
  keys:
    - owner: alice
      hash: "$2a$10$abcdefghijklmnopqrstuv"

auth:
  jwt_secret: "` + testSecret + `"

storage:
  path: "/tmp/flowry-test.db"

jobs:
  workers: 3
  poll_interval: 500ms
  retention: 48h
  stale_after: 30m

textgen:
  provider: bedrock
  region: us-west-2
  model: anthropic.claude-3-sonnet
  temperature: 0.2

export:
  sink: s3
  s3:
    bucket: plans
    prefix: exports/

cache:
  enabled: true
  addr: "redis:6379"
  ttl: 5m

rate_limit:
  enabled: true
  requests_per_hour: 20
  requests_per_day: 100

readiness:
  score_advisory: true

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, t.TempDir(), content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Hostname != "flowry.test" {
		t.Errorf("Hostname = %v, want flowry.test", cfg.Server.Hostname)
	}
	if cfg.API.ListenAddr != ":9080" {
		t.Errorf("API.ListenAddr = %v, want :9080", cfg.API.ListenAddr)
	}
	if len(cfg.API.Keys) != 1 || cfg.API.Keys[0].Hash != "$2a$10$abcdefghijklmnopqrstuv" {
		t.Errorf("API.Keys = %+v", cfg.API.Keys)
	}
	if cfg.Jobs.Workers != 3 {
		t.Errorf("Jobs.Workers = %v, want 3", cfg.Jobs.Workers)
	}
	if cfg.Jobs.PollInterval != 500*time.Millisecond {
		t.Errorf("Jobs.PollInterval = %v, want 500ms", cfg.Jobs.PollInterval)
	}
	if cfg.Jobs.StaleAfter != 30*time.Minute {
		t.Errorf("Jobs.StaleAfter = %v, want 30m", cfg.Jobs.StaleAfter)
	}
	if !cfg.TextGenEnabled() || cfg.TextGen.Model != "anthropic.claude-3-sonnet" {
		t.Errorf("TextGen = %+v", cfg.TextGen)
	}
	if cfg.TextGen.Temperature != 0.2 {
		t.Errorf("TextGen.Temperature = %v, want 0.2", cfg.TextGen.Temperature)
	}
	if cfg.Export.S3.Bucket != "plans" {
		t.Errorf("Export.S3.Bucket = %v, want plans", cfg.Export.S3.Bucket)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.RateLimit.RequestsPerHour != 20 {
		t.Errorf("RateLimit.RequestsPerHour = %v, want 20", cfg.RateLimit.RequestsPerHour)
	}
	if !cfg.Readiness.ScoreAdvisory {
		t.Error("Readiness.ScoreAdvisory = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
auth:
  jwt_secret: "` + testSecret + `"
storage:
  path: "/data/flowry.db"
`
	cfg, err := Load(writeConfig(t, t.TempDir(), content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %v, want :8080", cfg.API.ListenAddr)
	}
	if cfg.API.MaxBodyBytes != 1<<20 {
		t.Errorf("API.MaxBodyBytes = %v, want 1MB", cfg.API.MaxBodyBytes)
	}
	if cfg.Jobs.Workers != 2 {
		t.Errorf("Jobs.Workers = %v, want 2", cfg.Jobs.Workers)
	}
	if cfg.Jobs.Retention != 7*24*time.Hour {
		t.Errorf("Jobs.Retention = %v, want 168h", cfg.Jobs.Retention)
	}
	if cfg.Jobs.StaleAfter != 0 {
		t.Errorf("Jobs.StaleAfter = %v, want disabled", cfg.Jobs.StaleAfter)
	}
	if cfg.TextGenEnabled() {
		t.Error("TextGenEnabled() = true, want false by default")
	}
	if cfg.Export.Sink != "dir" || cfg.Export.Dir != "/data/exports" {
		t.Errorf("Export = %+v, want dir sink under /data/exports", cfg.Export)
	}
	if cfg.Auth.Issuer != "flowry" {
		t.Errorf("Auth.Issuer = %v, want flowry", cfg.Auth.Issuer)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
	if cfg.Metrics.ListenAddr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoadExpandsEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FLOWRY_TEST_SECRET="+testSecret+"\nFLOWRY_TEST_REDIS=cache:6380\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("FLOWRY_TEST_SECRET")
		os.Unsetenv("FLOWRY_TEST_REDIS")
	})

	content := `
auth:
  jwt_secret: "${FLOWRY_TEST_SECRET}"
cache:
  addr: "${FLOWRY_TEST_REDIS}"
`
	cfg, err := Load(writeConfig(t, dir, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want value from .env", cfg.Auth.JWTSecret)
	}
	if cfg.Cache.Addr != "cache:6380" {
		t.Errorf("Cache.Addr = %q, want cache:6380", cfg.Cache.Addr)
	}
}

func TestLoadEnvironmentWinsOverEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secrets.env"), []byte("FLOWRY_TEST_SECRET2=from-file-0123456789abcdef0123456789\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLOWRY_TEST_SECRET2", testSecret)

	content := `
env_file: secrets.env
auth:
  jwt_secret: "${FLOWRY_TEST_SECRET2}"
`
	cfg, err := Load(writeConfig(t, dir, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want environment value", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	content := `
env_file: missing.env
auth:
  jwt_secret: "` + testSecret + `"
`
	if _, err := Load(writeConfig(t, t.TempDir(), content)); err == nil {
		t.Error("Load() should fail when env_file does not exist")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should fail for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("AWS_REGION", "")

	valid := func() *Config {
		c := &Config{Auth: AuthConfig{JWTSecret: testSecret}}
		c.setDefaults()
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no credentials", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret or api.keys"},
		{"keys only", func(c *Config) {
			c.Auth.JWTSecret = ""
			c.API.Keys = []APIKey{{Owner: "a", Hash: "h"}}
		}, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32"},
		{"key without owner", func(c *Config) { c.API.Keys = []APIKey{{Hash: "h"}} }, "api.keys[0].owner"},
		{"key without hash", func(c *Config) { c.API.Keys = []APIKey{{Owner: "a"}} }, "api.keys[0].hash"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad provider", func(c *Config) { c.TextGen.Provider = "openai" }, "textgen.provider"},
		{"bedrock without region", func(c *Config) { c.TextGen.Provider = "bedrock" }, "textgen.region"},
		{"bad temperature", func(c *Config) { c.TextGen.Temperature = 1.5 }, "temperature"},
		{"bad sink", func(c *Config) { c.Export.Sink = "ftp" }, "export.sink"},
		{"s3 without bucket", func(c *Config) { c.Export.Sink = "s3" }, "export.s3.bucket"},
		{"negative quota", func(c *Config) { c.RateLimit.RequestsPerHour = -1 }, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
