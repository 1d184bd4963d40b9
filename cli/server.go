package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/serpent"
	"github.com/searchd/analytics/analytics"
	"github.com/searchd/analytics/analytics/analyticsapi"
	"github.com/searchd/analytics/analytics/indexstats"
)

func (r *RootCmd) server() *serpent.Command {
	var (
		instance         instanceFlags
		noAnalytics      bool
		analyticsURL     url.URL
		writeKey         string
		identifyInterval time.Duration
		statsURL         url.URL
		statsAPIKey      string
		httpAddress      string
		userEmail        string
		serverProvider   string
	)
	opts := instance.options()
	opts = append(opts,
		serpent.Option{
			Name:        "No Analytics",
			Flag:        "no-analytics",
			Env:         envPrefix + "NO_ANALYTICS",
			Description: "Disable anonymized usage analytics. Nothing is sent and no identity is created.",
			Value:       serpent.BoolOf(&noAnalytics),
		},
		serpent.Option{
			Name:        "Analytics URL",
			Flag:        "analytics-url",
			Env:         envPrefix + "ANALYTICS_URL",
			Default:     analytics.DefaultCollectorURL.String(),
			Description: "Base URL of the Segment-compatible collector.",
			Value:       serpent.URLOf(&analyticsURL),
			Hidden:      true,
		},
		serpent.Option{
			Name:        "Analytics Write Key",
			Flag:        "analytics-write-key",
			Env:         envPrefix + "ANALYTICS_WRITE_KEY",
			Default:     analytics.DefaultWriteKey,
			Description: "Write key sent to the collector.",
			Value:       serpent.StringOf(&writeKey),
			Hidden:      true,
		},
		serpent.Option{
			Name:        "Analytics Identify Interval",
			Flag:        "analytics-identify-interval",
			Env:         envPrefix + "ANALYTICS_IDENTIFY_INTERVAL",
			Default:     analytics.DefaultIdentifyInterval.String(),
			Description: "How often a requested identify is sent.",
			Value:       serpent.DurationOf(&identifyInterval),
			Hidden:      true,
		},
		serpent.Option{
			Name:        "Stats URL",
			Flag:        "stats-url",
			Env:         envPrefix + "STATS_URL",
			Default:     "http://localhost:7700",
			Description: "Base URL of the searchd instance whose stats are reported.",
			Value:       serpent.URLOf(&statsURL),
		},
		serpent.Option{
			Name:        "Stats API Key",
			Flag:        "stats-api-key",
			Env:         envPrefix + "STATS_API_KEY",
			Description: "API key used to read stats from the searchd instance.",
			Value:       serpent.StringOf(&statsAPIKey),
		},
		serpent.Option{
			Name:        "HTTP Address",
			Flag:        "http-address",
			Env:         envPrefix + "HTTP_ADDRESS",
			Default:     "localhost:7701",
			Description: "Address serving the analytics control API and Prometheus metrics.",
			Value:       serpent.StringOf(&httpAddress),
		},
		serpent.Option{
			Name:        "User Email",
			Flag:        "user-email",
			Env:         envPrefix + "USER_EMAIL",
			Description: "Contact email reported with the instance traits.",
			Value:       serpent.StringOf(&userEmail),
		},
		serpent.Option{
			Name:        "Server Provider",
			Flag:        "server-provider",
			Env:         envPrefix + "SERVER_PROVIDER",
			Description: "Hosting provider reported with the instance traits.",
			Value:       serpent.StringOf(&serverProvider),
		},
	)

	return &serpent.Command{
		Use:     "server",
		Short:   "Report anonymized usage analytics for a searchd instance",
		Options: opts,
		Handler: func(inv *serpent.Invocation) error {
			ctx, stop := inv.SignalNotifyContext(inv.Context(), StopSignals...)
			defer stop()

			logger, closeLog, err := r.logger(inv)
			if err != nil {
				return xerrors.Errorf("make logger: %w", err)
			}
			defer closeLog()

			registry := prometheus.NewRegistry()
			reporter := analytics.NewNoop()
			if noAnalytics {
				logger.Info(ctx, "analytics disabled")
			} else {
				reporter, err = analytics.New(ctx, analytics.Options{
					Logger:           logger,
					DataDir:          instance.dbPath,
					Sink:             analytics.NewSegmentSink(&analyticsURL, writeKey),
					Stats:            indexstats.New(&statsURL, indexstats.WithAPIKey(statsAPIKey)),
					Traits:           instance.traitCollector(),
					IdentifyInterval: identifyInterval,
					UserEmail:        userEmail,
					ServerProvider:   serverProvider,
					Registerer:       registry,
				})
				if err != nil {
					return xerrors.Errorf("start analytics: %w", err)
				}
			}
			// Waits for messages in flight, so runs after the listener
			// has stopped accepting new ones.
			defer reporter.Close()

			mux := chi.NewRouter()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			mux.Mount("/", analyticsapi.New(logger.Named("api"), reporter))

			closeListener, addr, err := serveHandler(ctx, logger, mux, httpAddress, "http")
			if err != nil {
				return err
			}
			defer closeListener()
			_, _ = fmt.Fprintf(inv.Stdout, "Listening on http://%s\n", addr)

			<-ctx.Done()
			logger.Info(context.Background(), "shutting down, flushing analytics")
			return nil
		},
	}
}

// serveHandler serves handler on addr until the returned func is called.
// The returned func waits for the server goroutine to exit.
func serveHandler(ctx context.Context, logger slog.Logger, handler http.Handler, addr, name string) (closeFunc func(), listenAddr string, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return func() {}, "", xerrors.Errorf("listen %s on %q: %w", name, addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Minute,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := srv.Serve(ln)
		if err != nil && !xerrors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "serve "+name, slog.Error(err))
		}
	}()
	logger.Info(ctx, "started "+name+" server", slog.F("address", ln.Addr().String()))

	return func() {
		_ = srv.Close()
		<-done
	}, ln.Addr().String(), nil
}
