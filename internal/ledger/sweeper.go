package ledger

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultExpiry is how long a quote stays in the ledger without a newer
	// one from the same provider.
	DefaultExpiry = 15 * time.Second

	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = 15 * time.Second
)

// Sweeper periodically evicts entries older than Expiry.
type Sweeper struct {
	ledger   *Ledger
	expiry   time.Duration
	interval time.Duration
	now      func() time.Time
	onSweep  func(removed int)
	logger   *slog.Logger
}

// SweeperConfig configures a Sweeper. Zero durations fall back to the
// defaults.
type SweeperConfig struct {
	Expiry   time.Duration
	Interval time.Duration
	Now      func() time.Time
	// OnSweep is called after every sweep, including empty ones.
	OnSweep func(removed int)
}

// NewSweeper creates a Sweeper for l.
func NewSweeper(l *Ledger, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		ledger:   l,
		expiry:   cfg.Expiry,
		interval: cfg.Interval,
		now:      cfg.Now,
		onSweep:  cfg.OnSweep,
		logger:   logger.With(slog.String("component", "ledger_sweeper")),
	}
}

// Sweep runs one eviction pass and returns the number of removed entries.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.expiry).UnixMilli()
	removed := s.ledger.EvictOlderThan(cutoff)
	if removed > 0 {
		s.logger.Debug("evicted stale quotes",
			slog.Int("removed", removed),
			slog.Int("remaining", s.ledger.Len()),
		)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}
