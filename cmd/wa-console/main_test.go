package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wa-console.yaml")
	yaml := "api:\n  base_url: http://file:3000\npoll:\n  interval: 2s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WACONSOLE_API_KEY", "from-env")
	t.Setenv("WACONSOLE_POLL_INTERVAL", "4s")

	cfg, err := loadConfig(&rootFlags{configPath: path, apiURL: "http://flag:3000", relayURL: "off"})
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.API.BaseURL != "http://flag:3000" {
		t.Errorf("BaseURL = %q, flag should win", cfg.API.BaseURL)
	}
	if cfg.API.Key != "from-env" {
		t.Errorf("Key = %q", cfg.API.Key)
	}
	if cfg.Poll.Interval != 4*time.Second {
		t.Errorf("Interval = %v, env should override the file", cfg.Poll.Interval)
	}
	if cfg.Relay.URL != "" {
		t.Errorf("Relay.URL = %q, want disabled", cfg.Relay.URL)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("WACONSOLE_POLL_INTERVAL", "0s")
	if _, err := loadConfig(&rootFlags{configPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("zero poll interval should be rejected")
	}
}

func TestCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"dash", "watch", "health"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q missing: %v", name, err)
		}
	}
}
