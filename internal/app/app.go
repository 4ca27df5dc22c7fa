// Package app assembles the daemon: config, logging, storage, the catalog
// client, the Telegram adapter, the scheduler and the sniper core, and runs
// them under one lifecycle.
package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"snipebot/internal/catalog"
	"snipebot/internal/config"
	"snipebot/internal/router"
	"snipebot/internal/scheduler"
	"snipebot/internal/sniper"
	"snipebot/internal/storage"
	"snipebot/internal/transport"
	"snipebot/internal/transport/telegram"
	"snipebot/pkg/logx"
)

const shutdownGrace = 10 * time.Second

type App struct {
	log    logx.Logger
	logSvc *logx.Service

	cfgMgr  *config.Manager
	store   storage.Store
	cat     *catalog.Client
	adapter *telegram.Adapter
	sched   *scheduler.Service
	snipe   *sniper.Service
	cmds    *router.Manager

	updates chan transport.Update
	wg      sync.WaitGroup
}

// New loads the config file and wires every component. Nothing is started.
func New(configPath string) (*App, error) {
	cfgMgr := config.NewManager(configPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg), nil)
	cfgMgr.SetLogger(log.With(logx.String("svc", "config")))

	storeCfg, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("svc", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	catCfg, err := catalogConfig(cfg)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(catCfg, log.With(logx.String("svc", "catalog")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("svc", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	logSvc.SetSender(adapter)
	logSvc.SetTelegramTarget(cfg.Telegram.OperatorChatID)

	sched := scheduler.New(scheduler.Config{}, log.With(logx.String("svc", "scheduler")))

	snipeCfg, err := sniperConfig(cfg)
	if err != nil {
		return nil, err
	}
	snipe := sniper.New(snipeCfg, store, cat, adapter, sched, log.With(logx.String("svc", "sniper")))

	cmds := router.NewManager(log.With(logx.String("svc", "router")), adapter, snipe.IsAdmin)
	cmds.SetCommands(snipe.Commands())

	return &App{
		log:     log,
		logSvc:  logSvc,
		cfgMgr:  cfgMgr,
		store:   store,
		cat:     cat,
		adapter: adapter,
		sched:   sched,
		snipe:   snipe,
		cmds:    cmds,
		updates: make(chan transport.Update, 128),
	}, nil
}

// Run starts everything and blocks until ctx is cancelled, then shuts down
// in reverse order under a bounded grace period.
func (a *App) Run(ctx context.Context) error {
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	if err := a.snipe.Start(ctx); err != nil {
		return fmt.Errorf("register schedules: %w", err)
	}
	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cmds.DispatchLoop(ctx, a.updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(ctx)
	}()

	sub := a.cfgMgr.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.notifyReady(ctx)
	a.log.Info("snipebot running")

	<-ctx.Done()
	return a.shutdown()
}

// applyReload pushes a hot-reloaded config into the running components.
// Storage path and bot token changes need a restart and are only logged.
func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(loggingConfig(cfg))
	a.logSvc.SetTelegramTarget(cfg.Telegram.OperatorChatID)

	if catCfg, err := catalogConfig(cfg); err == nil {
		a.cat.Apply(catCfg)
	} else {
		a.log.Warn("reload: bad catalog config", logx.Err(err))
	}

	if snipeCfg, err := sniperConfig(cfg); err == nil {
		if err := a.snipe.Apply(snipeCfg); err != nil {
			a.log.Warn("reload: sniper apply failed", logx.Err(err))
		}
	} else {
		a.log.Warn("reload: bad sniper config", logx.Err(err))
	}
	a.log.Info("config applied")
}

// notifyReady tells systemd we are up and starts the watchdog pinger when
// one is configured. Both are no-ops outside systemd.
func (a *App) notifyReady(ctx context.Context) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify unavailable", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func (a *App) shutdown() error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.sched.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop", logx.Err(err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown grace elapsed with goroutines pending")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("bye")
	return a.logSvc.Close()
}

// ---- config mapping ----

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		Defaults: storage.Defaults{
			MaxSnipes:  cfg.Sniper.DefaultMaxSnipes,
			NotifLimit: cfg.Sniper.DefaultNotifLimit,
		},
	}, nil
}

func catalogConfig(cfg *config.Config) (catalog.Config, error) {
	ttl, err := config.ParseDurationField("catalog.cache_ttl", cfg.Catalog.CacheTTL)
	if err != nil {
		return catalog.Config{}, err
	}
	timeout, err := config.ParseDurationField("catalog.timeout", cfg.Catalog.Timeout)
	if err != nil {
		return catalog.Config{}, err
	}
	return catalog.Config{
		BaseURL:  cfg.Catalog.BaseURL,
		Year:     cfg.Catalog.Year,
		Term:     cfg.Catalog.Term,
		Campus:   cfg.Catalog.Campus,
		CacheTTL: ttl,
		Timeout:  timeout,
	}, nil
}

func sniperConfig(cfg *config.Config) (sniper.Config, error) {
	scan, err := config.ParseDurationOrDefault("sniper.scan_interval", cfg.Sniper.ScanInterval, 2*time.Second)
	if err != nil {
		return sniper.Config{}, err
	}
	cooldown, err := config.ParseDurationOrDefault("sniper.scan_notify_cooldown", cfg.Sniper.ScanNotifyCooldown, 5*time.Minute)
	if err != nil {
		return sniper.Config{}, err
	}
	owners := make([]string, len(cfg.Telegram.OwnerUserIDs))
	for i, id := range cfg.Telegram.OwnerUserIDs {
		owners[i] = strconv.FormatInt(id, 10)
	}
	return sniper.Config{
		ScanInterval:       scan,
		ScanNotifyCooldown: cooldown,
		RatePerSec:         cfg.Sniper.RatePerSec,
		Owners:             owners,
		OperatorChatID:     cfg.Telegram.OperatorChatID,
	}, nil
}
