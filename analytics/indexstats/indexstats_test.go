package indexstats_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/searchd/analytics/analytics"
	"github.com/searchd/analytics/analytics/indexstats"
	"github.com/searchd/analytics/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testutil.GoleakOptions...)
}

func TestAllStats(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		srvURL := statsServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer master-key", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{
				"databaseSize": 447819776,
				"lastUpdate": "2019-11-15T11:15:22.092896Z",
				"indexes": {
					"movies": {"numberOfDocuments": 19654, "isIndexing": false},
					"books": {"numberOfDocuments": 5}
				}
			}`))
		})

		client := indexstats.New(srvURL, indexstats.WithAPIKey("master-key"))
		stats, err := client.AllStats(ctx)
		require.NoError(t, err)
		require.Equal(t, analytics.Stats{
			DatabaseSize: 447819776,
			Indexes: map[string]analytics.IndexStats{
				"movies": {DocumentCount: 19654},
				"books":  {DocumentCount: 5},
			},
		}, stats)
	})

	t.Run("NoIndexes", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		srvURL := statsServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"databaseSize": 0, "indexes": {}}`))
		})

		stats, err := indexstats.New(srvURL).AllStats(ctx)
		require.NoError(t, err)
		require.Empty(t, stats.Indexes)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		srvURL := statsServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := indexstats.New(srvURL).AllStats(ctx)
		require.ErrorContains(t, err, "401")
	})

	t.Run("BadPayload", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		srvURL := statsServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"indexes": [`))
		})

		_, err := indexstats.New(srvURL).AllStats(ctx)
		require.ErrorContains(t, err, "decode stats")
	})
}

func statsServer(t *testing.T, handler http.HandlerFunc) *url.URL {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/stats", handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	srvURL, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return srvURL
}
