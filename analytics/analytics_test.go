package analytics_test

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/xerrors"

	"github.com/coder/quartz"
	"github.com/searchd/analytics/analytics"
	coretestutil "github.com/searchd/analytics/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, coretestutil.GoleakOptions...)
}

func TestAnalytics(t *testing.T) {
	t.Parallel()

	t.Run("FirstLaunch", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)
		fs := afero.NewMemMapFs()

		sink := newChanSink()
		reporter := newReporter(ctx, t, analytics.Options{
			FS:    fs,
			NewID: func() string { return "u1" },
			Sink:  sink,
		})
		require.Equal(t, "u1", reporter.UserID())
		reporter.Close()

		messages := sink.drain()
		require.Len(t, messages, 2)
		require.Equal(t, analytics.Identify{UserID: "u1", Traits: analytics.Snapshot{}}, messages[0])
		require.Equal(t, analytics.Track{
			UserID:     "u1",
			Event:      analytics.EventFirstLaunch,
			Properties: map[string]any{},
		}, messages[1])

		raw, err := afero.ReadFile(fs, "data.ms/"+analytics.IdentityFile)
		require.NoError(t, err)
		require.Equal(t, "u1", string(raw))

		// A second start with the same data directory keeps the identity
		// and does not announce a first launch again.
		sink = newChanSink()
		reporter = newReporter(ctx, t, analytics.Options{
			FS:    fs,
			NewID: func() string { return "u2" },
			Sink:  sink,
		})
		require.Equal(t, "u1", reporter.UserID())
		reporter.Close()

		messages = sink.drain()
		require.Len(t, messages, 1)
		require.Equal(t, analytics.MessageTypeIdentify, messages[0].Type())
		require.Equal(t, "u1", messages[0].Subject())
	})

	t.Run("PublishDoesNotBlock", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)

		release := make(chan struct{})
		sink := analytics.SinkFunc(func(context.Context, analytics.Message) error {
			<-release
			return nil
		})
		reporter := newReporter(ctx, t, analytics.Options{Sink: sink})

		returned := make(chan struct{}, 1)
		go func() {
			start := time.Now()
			reporter.Publish("Documents Added", map[string]any{"index_creation": true})
			reporter.RequestIdentify()
			if time.Since(start) > time.Second {
				t.Error("publish waited on the transport")
			}
			returned <- struct{}{}
		}()
		coretestutil.RequireReceive(ctx, t, returned)

		close(release)
		reporter.Close()
	})

	t.Run("PublishCopiesProperties", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)

		marshaled := make(chan string, 1)
		sink := analytics.SinkFunc(func(_ context.Context, msg analytics.Message) error {
			track, ok := msg.(analytics.Track)
			if !ok || track.Event != "Search" {
				return nil
			}
			data, err := json.Marshal(track.Properties)
			if err != nil {
				return err
			}
			marshaled <- string(data)
			return nil
		})
		reporter := newReporter(ctx, t, analytics.Options{Sink: sink})

		props := map[string]any{"q": 0}
		reporter.Publish("Search", props)
		// Keep writing while the send marshals the event.
		var data string
		for i := 1; data == ""; i++ {
			props["q"] = i
			select {
			case data = <-marshaled:
			case <-ctx.Done():
				t.Fatal("timed out waiting for the send")
			default:
			}
		}
		require.JSONEq(t, `{"q":0}`, data)
		reporter.Close()
	})

	t.Run("TransportFailure", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)
		clock := quartz.NewMock(t)
		registry := prometheus.NewRegistry()

		sink := analytics.SinkFunc(func(context.Context, analytics.Message) error {
			return xerrors.New("connection refused")
		})
		reporter := newReporter(ctx, t, analytics.Options{
			Clock:      clock,
			NewID:      func() string { return "u1" },
			Sink:       sink,
			Registerer: registry,
		})
		require.NotPanics(t, func() {
			reporter.Publish("Search", nil)
			reporter.RequestIdentify()
		})
		clock.Advance(time.Hour).MustWait(ctx)
		reporter.Close()

		require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP searchd_analytics_messages_total The number of analytics messages handed to the transport, by type and result.
# TYPE searchd_analytics_messages_total counter
searchd_analytics_messages_total{result="failed",type="identify"} 2
searchd_analytics_messages_total{result="failed",type="track"} 2
`), "searchd_analytics_messages_total"))
	})

	t.Run("PeriodicIdentify", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)
		clock := quartz.NewMock(t)

		sink := newChanSink()
		reporter := newReporter(ctx, t, analytics.Options{
			Clock:            clock,
			NewID:            func() string { return "u1" },
			Sink:             sink,
			IdentifyInterval: 10 * time.Minute,
			Stats: staticStats(analytics.Stats{
				DatabaseSize: 100,
				Indexes: map[string]analytics.IndexStats{
					"products": {DocumentCount: 2},
					"movies":   {DocumentCount: 7},
				},
			}),
		})
		// Startup identify and first launch track.
		coretestutil.RequireReceive(ctx, t, sink.ch)
		coretestutil.RequireReceive(ctx, t, sink.ch)

		reporter.RequestIdentify()
		clock.Advance(10 * time.Minute).MustWait(ctx)
		msg := coretestutil.RequireReceive(ctx, t, sink.ch)
		traits := msg.(analytics.Identify).Traits.(analytics.IdentifyTraits)
		require.Equal(t, int64(600), traits.ElapsedSeconds)
		require.Equal(t, 2, traits.IndexCount)
		require.Equal(t, []uint64{7, 2}, traits.DocumentCounts)

		// Nothing was requested since, so the next tick stays quiet.
		clock.Advance(10 * time.Minute).MustWait(ctx)
		coretestutil.RequireNoReceive(t, sink.ch)

		reporter.Close()
		require.Empty(t, sink.drain())
	})

	t.Run("CloseTwice", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)
		reporter := newReporter(ctx, t, analytics.Options{Sink: newChanSink()})
		reporter.Close()
		reporter.Close()
		// Dropped silently.
		reporter.Publish("Search", nil)
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		t.Parallel()
		ctx := coretestutil.Context(t, coretestutil.WaitShort)

		_, err := analytics.New(ctx, analytics.Options{})
		require.Error(t, err)
		_, err = analytics.New(ctx, analytics.Options{Sink: newChanSink()})
		require.Error(t, err)
		_, err = analytics.New(ctx, analytics.Options{Sink: newChanSink(), Stats: staticStats(analytics.Stats{})})
		require.Error(t, err)
	})

	t.Run("Noop", func(t *testing.T) {
		t.Parallel()
		reporter := analytics.NewNoop()
		reporter.Publish("Search", nil)
		reporter.RequestIdentify()
		require.Empty(t, reporter.UserID())
		reporter.Close()
	})
}

// newReporter fills in the options every test shares.
func newReporter(ctx context.Context, t *testing.T, opts analytics.Options) analytics.Reporter {
	t.Helper()
	opts.Logger = coretestutil.Logger(t)
	if opts.FS == nil {
		opts.FS = afero.NewMemMapFs()
	}
	if opts.DataDir == "" {
		opts.DataDir = "data.ms"
	}
	if opts.Stats == nil {
		opts.Stats = staticStats(analytics.Stats{})
	}
	if opts.Traits == nil {
		opts.Traits = emptyTraits{}
	}
	reporter, err := analytics.New(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(reporter.Close)
	return reporter
}

type chanSink struct {
	ch chan analytics.Message
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan analytics.Message, 64)}
}

func (s *chanSink) Send(_ context.Context, msg analytics.Message) error {
	s.ch <- msg
	return nil
}

// drain returns the buffered messages, identifies first.
func (s *chanSink) drain() []analytics.Message {
	var messages []analytics.Message
	for {
		select {
		case msg := <-s.ch:
			messages = append(messages, msg)
		default:
			sort.SliceStable(messages, func(i, j int) bool {
				return messages[i].Type() < messages[j].Type()
			})
			return messages
		}
	}
}

type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []analytics.Message
}

func (d *fakeDispatcher) Dispatch(msg analytics.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
}

func (d *fakeDispatcher) messages() []analytics.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]analytics.Message(nil), d.msgs...)
}

func staticStats(stats analytics.Stats) analytics.StatsProvider {
	return analytics.StatsProviderFunc(func(context.Context) (analytics.Stats, error) {
		return stats, nil
	})
}

type emptyTraits struct{}

func (emptyTraits) Collect(context.Context) analytics.Snapshot {
	return analytics.Snapshot{}
}

type staticTraits struct{}

func (staticTraits) Collect(context.Context) analytics.Snapshot {
	return analytics.Snapshot{
		System:   analytics.SystemTraits{CPUCount: 4},
		Instance: analytics.InstanceTraits{Version: "v1.0.0", Environment: "development"},
	}
}
