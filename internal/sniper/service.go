package sniper

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"snipebot/internal/catalog"
	"snipebot/internal/diag"
	"snipebot/internal/scheduler"
	"snipebot/internal/storage"
	"snipebot/internal/transport"
	"snipebot/pkg/logx"
)

// scanTaskName is the schedule key for the poll cycle; Apply replaces the
// schedule under the same name.
const scanTaskName = "catalog-scan"

type Service struct {
	log     logx.Logger
	store   storage.Store
	catalog *catalog.Client
	adapter transport.Adapter
	sched   *scheduler.Service
	ballast *diag.Ballast

	// dmLimit paces notification sends; one limiter for all recipients keeps
	// ordering deterministic and the Bot API happy.
	dmLimit *rate.Limiter

	mu  sync.Mutex
	cfg Config

	// Runtime toggles. Process-scoped on purpose: they reset on restart.
	globalWatch bool
	scanNotify  bool
	lastNotice  time.Time

	// lastSeen maps section index to the open state observed last cycle,
	// maintained only while global watch is on.
	lastSeen map[string]bool

	lastReport CycleReport
}

func New(cfg Config, store storage.Store, cat *catalog.Client, adapter transport.Adapter, sched *scheduler.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		store:   store,
		catalog: cat,
		adapter: adapter,
		sched:   sched,
		ballast: diag.NewBallast(),
		dmLimit: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		cfg:     cfg,
	}
}

// Start registers the scan schedule and a daily stats line.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if err := s.sched.AddSchedule(scanTaskName, cfg.ScanInterval.String(), cfg.ScanInterval*4, s.Scan); err != nil {
		return err
	}
	return s.sched.AddSchedule("daily-stats", "cron:0 6 * * *", time.Minute, s.logDailyStats)
}

// Apply swaps runtime knobs on config hot reload. Toggles and the global
// watch baseline are preserved.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	s.dmLimit.SetLimit(rate.Limit(cfg.RatePerSec))
	s.dmLimit.SetBurst(cfg.RatePerSec)

	if cfg.ScanInterval != prev.ScanInterval {
		if err := s.sched.AddSchedule(scanTaskName, cfg.ScanInterval.String(), cfg.ScanInterval*4, s.Scan); err != nil {
			return err
		}
		s.log.Info("scan interval updated", logx.Duration("interval", cfg.ScanInterval))
	}
	return nil
}

// IsAdmin reports whether the user is an operator or a stored moderator.
func (s *Service) IsAdmin(ctx context.Context, userID string) bool {
	s.mu.Lock()
	owners := s.cfg.Owners
	s.mu.Unlock()
	if slices.Contains(owners, userID) {
		return true
	}
	uc, err := s.store.GetOrCreateUserConfig(ctx, userID)
	if err != nil {
		s.log.Warn("admin check failed", logx.String("user", userID), logx.Err(err))
		return false
	}
	return uc.Moderator
}

// SetGlobalWatch toggles catalog-wide transition alerts. Turning it on
// clears the baseline so the first cycle observes without alerting.
func (s *Service) SetGlobalWatch(on bool) {
	s.mu.Lock()
	s.globalWatch = on
	s.lastSeen = nil
	s.mu.Unlock()
}

func (s *Service) GlobalWatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalWatch
}

// SetScanNotify toggles the cooldown-gated operator scan summary.
func (s *Service) SetScanNotify(on bool) {
	s.mu.Lock()
	s.scanNotify = on
	s.lastNotice = time.Time{}
	s.mu.Unlock()
}

func (s *Service) ScanNotify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanNotify
}

// LastReport returns the most recent completed cycle summary.
func (s *Service) LastReport() CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

func (s *Service) Ballast() *diag.Ballast { return s.ballast }

func (s *Service) logDailyStats(ctx context.Context) error {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return err
	}
	fetches, failures := s.catalog.Counters()
	s.log.Info("daily stats",
		logx.Int("watches", st.Watches),
		logx.Int("users", st.Users),
		logx.Int("banned", st.Banned),
		logx.Int("moderators", st.Moderators),
		logx.Uint64("fetches", fetches),
		logx.Uint64("fetch_failures", failures))
	return nil
}
