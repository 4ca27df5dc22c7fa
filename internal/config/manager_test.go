package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [1000]
  operator_chat_id: 1000
  poll_timeout: "10s"
logging:
  level: "debug"
  console: true
storage:
  driver: "sqlite"
  path: "/tmp/snipebot.db"
catalog:
  base_url: "https://example.test/courses"
  year: 2026
  term: "9"
  campus: "NB"
sniper:
  scan_interval: "2s"
  default_max_snipes: 10
  default_notif_limit: 5
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 1000 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Sniper.ScanInterval != "2s" {
		t.Fatalf("scan interval = %q", cfg.Sniper.ScanInterval)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validYAML, "sniper:", "snipper:", 1)
	m := NewManager(writeConfig(t, "config.yaml", bad))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error on unknown top-level key")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}},
			Storage:  StorageConfig{Path: "/tmp/x.db"},
			Catalog:  CatalogConfig{BaseURL: "https://x"},
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil token", func(c *Config) { c.Telegram.Token = " " }},
		{"no owners", func(c *Config) { c.Telegram.OwnerUserIDs = nil }},
		{"no storage path", func(c *Config) { c.Storage.Path = "" }},
		{"no catalog url", func(c *Config) { c.Catalog.BaseURL = "" }},
		{"bad duration", func(c *Config) { c.Sniper.ScanInterval = "fast" }},
		{"notif limit high", func(c *Config) { c.Sniper.DefaultNotifLimit = 21 }},
		{"notif limit low", func(c *Config) { c.Sniper.DefaultNotifLimit = -1 }},
		{"negative quota", func(c *Config) { c.Sniper.DefaultMaxSnipes = -1 }},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", "1500ms"); err != nil || d != 1500*time.Millisecond {
		t.Fatalf("1500ms: (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatal("garbage duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 4*time.Second); err != nil || d != 4*time.Second {
		t.Fatalf("default: (%v, %v)", d, err)
	}
}

func TestWatchReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	updated := strings.Replace(validYAML, `level: "debug"`, `level: "info"`, 1)
	// Give the watcher a moment to register before the write lands.
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "info" {
			t.Fatalf("reloaded level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatchIgnoresInvalidEdit(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	broken := strings.Replace(validYAML, `token: "123:abc"`, `token: ""`, 1)
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		t.Fatalf("invalid config was published: %+v", cfg)
	case <-time.After(1500 * time.Millisecond):
	}
	if m.Get().Telegram.Token != "123:abc" {
		t.Fatal("committed config changed despite failed validation")
	}
}
