// Package analyticsapi exposes a Reporter over HTTP so that request
// handlers running in another process can publish usage events.
package analyticsapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cdr.dev/slog/v3"
	"github.com/searchd/analytics/analytics"
	"github.com/searchd/analytics/httpapi"
)

// TrackRequest is the body of POST /track.
type TrackRequest struct {
	Event      string         `json:"event" validate:"required"`
	Properties map[string]any `json:"properties"`
}

type API struct {
	logger   slog.Logger
	reporter analytics.Reporter
}

// New returns the control API router. Handlers hand work to the reporter
// and return without waiting for the collector.
func New(logger slog.Logger, reporter analytics.Reporter) http.Handler {
	api := &API{
		logger:   logger,
		reporter: reporter,
	}
	r := chi.NewRouter()
	r.Post("/track", api.track)
	r.Post("/identify", api.identify)
	return r
}

func (api *API) track(rw http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}
	api.logger.Debug(r.Context(), "track requested", slog.F("event", req.Event))
	api.reporter.Publish(req.Event, req.Properties)
	httpapi.Write(rw, http.StatusAccepted, httpapi.Response{
		Message: "Event accepted.",
	})
}

func (api *API) identify(rw http.ResponseWriter, _ *http.Request) {
	api.reporter.RequestIdentify()
	httpapi.Write(rw, http.StatusAccepted, httpapi.Response{
		Message: "Identify scheduled.",
	})
}
