package analytics

import (
	"context"
	"sort"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

// DefaultIdentifyInterval is how often the scheduler checks for a pending
// identify request.
const DefaultIdentifyInterval = time.Hour

// TraitSource produces a fresh Snapshot. *TraitCollector implements it.
type TraitSource interface {
	Collect(ctx context.Context) Snapshot
}

// MessageDispatcher accepts messages without blocking. *Dispatcher
// implements it.
type MessageDispatcher interface {
	Dispatch(msg Message)
}

// UsageTraits are the usage facts added to an Identify by the scheduler.
type UsageTraits struct {
	ElapsedSeconds int64    `json:"Elapsed since start (in secs)"`
	IndexCount     int      `json:"Number of indexes"`
	DocumentCounts []uint64 `json:"Number of documents"`
	DatabaseSize   uint64   `json:"Database size"`
	UserEmail      *string  `json:"User email,omitempty"`
	ServerProvider *string  `json:"Server provider,omitempty"`
}

// IdentifyTraits are the traits of an Identify sent by the scheduler. Both
// halves are flattened into a single mapping on the wire.
type IdentifyTraits struct {
	Snapshot
	UsageTraits
}

type SchedulerOptions struct {
	Logger     slog.Logger
	Clock      quartz.Clock
	Interval   time.Duration
	UserID     string
	Stats      StatsProvider
	Traits     TraitSource
	Dispatcher MessageDispatcher
	Metrics    *Metrics

	// UserEmail and ServerProvider are reported when not empty.
	UserEmail      string
	ServerProvider string
}

// Scheduler sends at most one Identify per interval, and only when one was
// requested since the previous tick.
type Scheduler struct {
	opts      SchedulerOptions
	startedAt time.Time
	pending   atomic.Bool
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultIdentifyInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Scheduler{
		opts:      opts,
		startedAt: opts.Clock.Now(),
	}
}

// RequestIdentify marks an Identify as pending for the next tick. Calls
// within one interval coalesce. It never blocks.
func (s *Scheduler) RequestIdentify() {
	s.pending.Store(true)
}

// Start runs the tick loop until ctx is canceled. The returned waiter
// returns once the loop has exited.
func (s *Scheduler) Start(ctx context.Context) quartz.Waiter {
	return s.opts.Clock.TickerFunc(ctx, s.opts.Interval, func() error {
		s.tick(ctx)
		// Never stop the loop on a failed tick.
		return nil
	}, "analytics", "identify")
}

func (s *Scheduler) tick(ctx context.Context) {
	logger := s.opts.Logger
	if !s.pending.Swap(false) {
		s.opts.Metrics.IdentifyTicks.WithLabelValues(outcomeSkipped).Inc()
		return
	}

	identify, err := s.buildIdentify(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Keep the request pending so the next interval tries again.
		s.pending.Store(true)
		s.opts.Metrics.IdentifyTicks.WithLabelValues(outcomeStatsUnavailable).Inc()
		logger.Warn(ctx, "skipping identify, index stats unavailable", slog.Error(err))
		return
	}
	logger.Debug(ctx, "dispatching identify")
	s.opts.Dispatcher.Dispatch(identify)
	s.opts.Metrics.IdentifyTicks.WithLabelValues(outcomeDispatched).Inc()
}

func (s *Scheduler) buildIdentify(ctx context.Context) (Identify, error) {
	var (
		stats    Stats
		snapshot Snapshot
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		stats, err = s.opts.Stats.AllStats(egCtx)
		if err != nil {
			return xerrors.Errorf("get all stats: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		snapshot = s.opts.Traits.Collect(egCtx)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Identify{}, err
	}

	usage := UsageTraits{
		ElapsedSeconds: int64(s.opts.Clock.Since(s.startedAt) / time.Second),
		IndexCount:     len(stats.Indexes),
		DocumentCounts: documentCounts(stats),
		DatabaseSize:   stats.DatabaseSize,
	}
	if s.opts.UserEmail != "" {
		email := s.opts.UserEmail
		usage.UserEmail = &email
	}
	if s.opts.ServerProvider != "" {
		provider := s.opts.ServerProvider
		usage.ServerProvider = &provider
	}
	return Identify{
		UserID: s.opts.UserID,
		Traits: IdentifyTraits{Snapshot: snapshot, UsageTraits: usage},
	}, nil
}

// documentCounts orders counts by index name so that consecutive
// identifies are comparable.
func documentCounts(stats Stats) []uint64 {
	names := make([]string, 0, len(stats.Indexes))
	for name := range stats.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	counts := make([]uint64, 0, len(names))
	for _, name := range names {
		counts = append(counts, stats.Indexes[name].DocumentCount)
	}
	return counts
}
