package chat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// SweeperConfig bundles the sweeper's stores and timing policy.
type SweeperConfig struct {
	Conversations *ConversationStore
	Usage         *UsageLedger
	Interval      time.Duration // how often to sweep
	SessionTTL    time.Duration // conversation idle lifetime
	UsageTTL      time.Duration // usage-entry idle lifetime
	Logger        *slog.Logger
}

// Sweeper periodically evicts expired entries from the conversation store and
// the usage ledger. It runs as a single background goroutine, decoupled from
// request handling: requests never trigger eviction, and the sweeper never
// inspects request state.
type Sweeper struct {
	conversations *ConversationStore
	usage         *UsageLedger
	interval      time.Duration
	sessionTTL    time.Duration
	usageTTL      time.Duration
	logger        *slog.Logger

	started atomic.Bool
}

// NewSweeper creates a sweeper. It does not start sweeping; call Start once
// during process initialization.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		conversations: cfg.Conversations,
		usage:         cfg.Usage,
		interval:      cfg.Interval,
		sessionTTL:    cfg.SessionTTL,
		usageTTL:      cfg.UsageTTL,
		logger:        logger,
	}
}

// Start launches the background sweep loop. Start is idempotent: the first
// call spawns the goroutine, any later call is a no-op — there is never a
// second concurrent sweeper. The goroutine exits when ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Debug("sweeper already started, ignoring start call")
		return
	}

	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	s.logger.Info("chat sweeper started",
		"interval", s.interval,
		"session_ttl", s.sessionTTL,
		"usage_ttl", s.usageTTL,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("chat sweeper stopped")
			return
		case now := <-ticker.C:
			s.sweepOnce(now)
		}
	}
}

// sweepOnce runs one eviction pass. A panic in a store must not kill the
// loop: the sweeper logs and keeps running.
func (s *Sweeper) sweepOnce(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweep pass panicked", "panic", r)
		}
	}()

	before := s.conversations.Len() + s.usage.Len()
	s.conversations.Sweep(s.sessionTTL, now)
	s.usage.Sweep(s.usageTTL, now)
	after := s.conversations.Len() + s.usage.Len()

	if evicted := before - after; evicted > 0 {
		s.logger.Debug("swept expired chat entries",
			"evicted", evicted,
			"sessions", s.conversations.Len(),
			"fingerprints", s.usage.Len(),
		)
	}
}
