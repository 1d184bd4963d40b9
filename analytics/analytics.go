package analytics

import (
	"context"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

// EventFirstLaunch is published once, the first time an installation starts.
const EventFirstLaunch = "Launched for the first time"

type Options struct {
	Logger slog.Logger
	Clock  quartz.Clock
	// FS holds the data directory. Defaults to the OS filesystem.
	FS afero.Fs
	// DataDir is where the installation identity is persisted.
	DataDir string
	// NewID generates a new installation identity.
	NewID func() string

	Sink   Sink
	Stats  StatsProvider
	Traits TraitSource

	// IdentifyInterval defaults to one hour.
	IdentifyInterval time.Duration
	UserEmail        string
	ServerProvider   string

	Registerer prometheus.Registerer
}

// Reporter is the surface request-handling code talks to. None of its
// methods block on the network or report errors.
type Reporter interface {
	// Publish records a discrete usage event. The top level of properties
	// is copied, so the caller may reuse the map once Publish returns.
	Publish(event string, properties map[string]any)
	// RequestIdentify asks for a refreshed snapshot at the next tick.
	RequestIdentify()
	// UserID is the installation identity.
	UserID() string
	Close()
}

// New loads or creates the installation identity, reports the startup
// Identify (plus the first-launch Track on a fresh data directory) and
// starts the identify scheduler.
func New(ctx context.Context, options Options) (Reporter, error) {
	if options.Sink == nil {
		return nil, xerrors.New("sink is required")
	}
	if options.Stats == nil {
		return nil, xerrors.New("stats provider is required")
	}
	if options.DataDir == "" {
		return nil, xerrors.New("data directory is required")
	}
	if options.FS == nil {
		options.FS = afero.NewOsFs()
	}
	if options.Clock == nil {
		options.Clock = quartz.NewReal()
	}
	if options.Traits == nil {
		options.Traits = NewTraitCollector(InstanceConfig{})
	}
	logger := options.Logger.Named("analytics")
	metrics := NewMetrics(options.Registerer)

	userID, firstRun := LoadOrCreateIdentity(options.FS, filepath.Join(options.DataDir, IdentityFile), options.NewID)
	logger.Info(ctx, "analytics enabled", slog.F("user_id", userID), slog.F("first_run", firstRun))

	dispatcher := NewDispatcher(logger.Named("dispatcher"), options.Sink, metrics)
	scheduler := NewScheduler(SchedulerOptions{
		Logger:         logger.Named("scheduler"),
		Clock:          options.Clock,
		Interval:       options.IdentifyInterval,
		UserID:         userID,
		Stats:          options.Stats,
		Traits:         options.Traits,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		UserEmail:      options.UserEmail,
		ServerProvider: options.ServerProvider,
	})

	r := &reporter{
		logger:     logger,
		userID:     userID,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}
	dispatcher.Dispatch(Identify{
		UserID: userID,
		Traits: options.Traits.Collect(ctx),
	})
	if firstRun {
		r.Publish(EventFirstLaunch, map[string]any{})
	}

	var runCtx context.Context
	runCtx, r.cancel = context.WithCancel(context.Background())
	r.waiter = scheduler.Start(runCtx)
	return r, nil
}

type reporter struct {
	logger     slog.Logger
	userID     string
	dispatcher *Dispatcher
	scheduler  *Scheduler

	cancel    context.CancelFunc
	waiter    quartz.Waiter
	closeOnce sync.Once
}

func (r *reporter) Publish(event string, properties map[string]any) {
	if properties == nil {
		properties = map[string]any{}
	} else {
		properties = maps.Clone(properties)
	}
	r.dispatcher.Dispatch(Track{
		UserID:     r.userID,
		Event:      event,
		Properties: properties,
	})
}

func (r *reporter) RequestIdentify() {
	r.logger.Debug(context.Background(), "identify requested for the next tick")
	r.scheduler.RequestIdentify()
}

func (r *reporter) UserID() string {
	return r.userID
}

// Close stops the scheduler and waits for messages already dispatched.
func (r *reporter) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		err := r.waiter.Wait()
		if err != nil && !xerrors.Is(err, context.Canceled) {
			r.logger.Warn(context.Background(), "identify scheduler exited", slog.Error(err))
		}
		r.dispatcher.Close()
	})
}

// NewNoop returns a Reporter that discards everything, for when analytics
// are disabled.
func NewNoop() Reporter {
	return noopReporter{}
}

type noopReporter struct{}

func (noopReporter) Publish(string, map[string]any) {}
func (noopReporter) RequestIdentify()               {}
func (noopReporter) UserID() string                 { return "" }
func (noopReporter) Close()                         {}
