package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nuxlab.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NUX_USERNAME", "")
	t.Setenv("NUX_PASSWORD", "")
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.URL != DefaultAPIURL {
		t.Errorf("api.url = %q, want %q", cfg.API.URL, DefaultAPIURL)
	}
	if cfg.Wait.Attempts != 20 {
		t.Errorf("wait.attempts = %d, want 20", cfg.Wait.Attempts)
	}
	if cfg.Wait.Interval != 5*time.Second {
		t.Errorf("wait.interval = %s, want 5s", cfg.Wait.Interval)
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled by default")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadFileValues(t *testing.T) {
	t.Setenv("NUX_USERNAME", "")
	t.Setenv("NUX_PASSWORD", "")
	t.Setenv("LAB_SECRET", "s3cret")
	path := writeConfig(t, `
auth:
  username: alice
  password: ${LAB_SECRET}
api:
  url: http://127.0.0.1:9999/api
wait:
  attempts: 3
  interval: 250ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Username != "alice" {
		t.Errorf("username = %q, want alice", cfg.Auth.Username)
	}
	if cfg.Auth.Password != "s3cret" {
		t.Errorf("password = %q, want expanded env value", cfg.Auth.Password)
	}
	if cfg.API.URL != "http://127.0.0.1:9999/api" {
		t.Errorf("api.url = %q", cfg.API.URL)
	}
	if cfg.Wait.Attempts != 3 || cfg.Wait.Interval != 250*time.Millisecond {
		t.Errorf("wait = %+v, want 3 attempts every 250ms", cfg.Wait)
	}
}

func TestLoadEnvCredentials(t *testing.T) {
	t.Setenv("NUX_USERNAME", "env-user")
	t.Setenv("NUX_PASSWORD", "env-pass")
	path := writeConfig(t, "auth:\n  username: file-user\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Username != "env-user" {
		t.Errorf("username = %q, want env-user", cfg.Auth.Username)
	}
	if cfg.Auth.Password != "env-pass" {
		t.Errorf("password = %q, want env-pass", cfg.Auth.Password)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestLoadExpandsPaths(t *testing.T) {
	t.Setenv("NUX_USERNAME", "")
	t.Setenv("NUX_PASSWORD", "")
	t.Setenv("LAB_STATE", "/var/lib/nuxlab")
	path := writeConfig(t, `
journal:
  enabled: true
  db_path: ${LAB_STATE}/runs.db
locks:
  dir: ${LAB_STATE}/locks
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Journal.DBPath != "/var/lib/nuxlab/runs.db" {
		t.Errorf("journal.db_path = %q", cfg.Journal.DBPath)
	}
	if cfg.Locks.Dir != "/var/lib/nuxlab/locks" {
		t.Errorf("locks.dir = %q", cfg.Locks.Dir)
	}
}
