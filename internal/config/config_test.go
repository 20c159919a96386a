package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
api:
  base_url: "https://wa.example.com"
  key: "tenant-key"
poll:
  interval: 2s
relay:
  port: 4000
log:
  format: text
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.BaseURL != "https://wa.example.com" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://wa.example.com")
	}
	if cfg.API.Key != "tenant-key" {
		t.Errorf("API.Key = %q, want %q", cfg.API.Key, "tenant-key")
	}
	if cfg.Poll.Interval != 2*time.Second {
		t.Errorf("Poll.Interval = %v, want 2s", cfg.Poll.Interval)
	}
	if cfg.Relay.Port != 4000 {
		t.Errorf("Relay.Port = %d, want 4000", cfg.Relay.Port)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Poll.Ceiling != 5*time.Minute {
		t.Errorf("Poll.Ceiling = %v, want default 5m", cfg.Poll.Ceiling)
	}
	if cfg.Relay.MaxEvents != 100 {
		t.Errorf("Relay.MaxEvents = %d, want default 100", cfg.Relay.MaxEvents)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:3000" {
		t.Errorf("API.BaseURL = %q, want default", cfg.API.BaseURL)
	}
	if cfg.Poll.Interval != 3*time.Second {
		t.Errorf("Poll.Interval = %v, want default 3s", cfg.Poll.Interval)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WACONSOLE_API_URL", "http://api.local:9000/")
	t.Setenv("WACONSOLE_API_KEY", "from-env")
	t.Setenv("WACONSOLE_POLL_CEILING", "90s")

	cfg := defaultConfig()
	cfg.Relay.Port = 4000
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.API.BaseURL != "http://api.local:9000" {
		t.Errorf("API.BaseURL = %q, want trailing slash trimmed", cfg.API.BaseURL)
	}
	if cfg.API.Key != "from-env" {
		t.Errorf("API.Key = %q, want from-env", cfg.API.Key)
	}
	if cfg.Poll.Ceiling != 90*time.Second {
		t.Errorf("Poll.Ceiling = %v, want 90s", cfg.Poll.Ceiling)
	}
	// Unset variables keep the file value.
	if cfg.Relay.Port != 4000 {
		t.Errorf("Relay.Port = %d, want 4000", cfg.Relay.Port)
	}
}

func TestApplyEnvInvalidDuration(t *testing.T) {
	t.Setenv("WACONSOLE_POLL_INTERVAL", "soon")
	cfg := defaultConfig()
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("ApplyEnv() with invalid duration should return error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("WACONSOLE_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WACONSOLE_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}
	if got := os.Getenv("WACONSOLE_TEST_DOTENV"); got != "loaded" {
		t.Errorf("WACONSOLE_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }, true},
		{"zero interval", func(c *Config) { c.Poll.Interval = 0 }, true},
		{"ceiling below interval", func(c *Config) { c.Poll.Ceiling = time.Second }, true},
		{"no event buffer", func(c *Config) { c.Relay.MaxEvents = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
