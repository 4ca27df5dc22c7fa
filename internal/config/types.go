package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Catalog  CatalogConfig  `json:"catalog"`
	Sniper   SniperConfig   `json:"sniper"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// OwnerUserIDs are operator accounts: full admin rights plus the target
	// for global-watch alerts and scan notices.
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// OperatorChatID receives forwarded log lines and operator alerts.
	// Usually the first owner's private chat, but may be a group.
	OperatorChatID int64 `json:"operator_chat_id"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence backend. Only "sqlite" is supported;
// the driver field stays so configs remain explicit about the choice.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// CatalogConfig points at the course catalog endpoint. The query is built
// from year/term/campus; CacheTTL bounds how long one payload is reused.
type CatalogConfig struct {
	BaseURL  string `json:"base_url"`
	Year     int    `json:"year"`
	Term     string `json:"term"`
	Campus   string `json:"campus"`
	CacheTTL string `json:"cache_ttl,omitempty"` // default "60s"
	Timeout  string `json:"timeout,omitempty"`   // per-request, default "8s"
}

type SniperConfig struct {
	// ScanInterval is the poll cadence, a Go duration string. Default "2s".
	ScanInterval string `json:"scan_interval,omitempty"`

	// ScanNotifyCooldown gates the per-cycle operator summary. Default "5m".
	ScanNotifyCooldown string `json:"scan_notify_cooldown,omitempty"`

	// Defaults applied when a user config row is first created.
	DefaultMaxSnipes  int `json:"default_max_snipes,omitempty"`  // default 10
	DefaultNotifLimit int `json:"default_notif_limit,omitempty"` // default 5

	// RatePerSec caps outbound notification DMs. Default 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// Validate rejects configs that cannot possibly run. Called on initial load
// and before a hot-reload is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		return errors.New("telegram.owner_user_ids must name at least one operator")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		return errors.New("catalog.base_url is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"catalog.cache_ttl", cfg.Catalog.CacheTTL},
		{"catalog.timeout", cfg.Catalog.Timeout},
		{"sniper.scan_interval", cfg.Sniper.ScanInterval},
		{"sniper.scan_notify_cooldown", cfg.Sniper.ScanNotifyCooldown},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if n := cfg.Sniper.DefaultNotifLimit; n != 0 && (n < 1 || n > 20) {
		return fmt.Errorf("sniper.default_notif_limit must be in [1,20], got %d", n)
	}
	if cfg.Sniper.DefaultMaxSnipes < 0 {
		return errors.New("sniper.default_max_snipes must be >= 0")
	}
	return nil
}
