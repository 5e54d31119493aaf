package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/stargazing-forecast/internal/adapter/http"
	"github.com/couchcryptid/stargazing-forecast/internal/domain"
)

type mockSource struct {
	bundle *domain.ForecastBundle
	err    error
}

func (m *mockSource) CheckReadiness(_ context.Context) error { return m.err }

func (m *mockSource) Latest() (domain.ForecastBundle, bool) {
	if m.bundle == nil {
		return domain.ForecastBundle{}, false
	}
	return *m.bundle, true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Three days after the 2024-01-18 first quarter; full moon is 2024-01-25 17:54 UTC.
var waxingGibbous = time.Date(2024, 1, 21, 12, 0, 0, 0, time.UTC)

func newTestServer(src *mockSource, opts ...httpadapter.Option) *httpadapter.Server {
	opts = append([]httpadapter.Option{httpadapter.WithClock(clockwork.NewFakeClockAt(waxingGibbous))}, opts...)
	return httpadapter.NewServer(":0", src, discardLogger(), opts...)
}

func testBundle() *domain.ForecastBundle {
	t0 := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	return &domain.ForecastBundle{
		ID:       "b-1",
		TimeZone: "UTC",
		Location: domain.MustGeoPoint(40.015, -105.27, 1655),
		Geomagnetic: domain.GeomagneticReport{
			Observed: []domain.KpSample{
				{Time: t0, Kp: 3.0, Level: domain.StormNone},
				{Time: t0.Add(3 * time.Hour), Kp: 5.67, Level: domain.StormG2},
			},
		},
	}
}

func get(t *testing.T, srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(&mockSource{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(&mockSource{}), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(&mockSource{err: fmt.Errorf("not ready yet")}), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&mockSource{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestForecast(t *testing.T) {
	t.Run("no bundle yet", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{}), "/forecast")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("latest bundle", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{bundle: testBundle()}), "/forecast")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "b-1", body["id"])
		assert.Equal(t, map[string]any{"lat": 40.015, "lon": -105.27, "elevation_m": 1655.0}, body["location"])
	})
}

func TestGeomagneticSummary(t *testing.T) {
	t.Run("storm", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{bundle: testBundle()}), "/geomagnetic/summary")
		require.Equal(t, http.StatusOK, rec.Code)

		var summary domain.KpSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.True(t, summary.IsStorm)
		assert.Contains(t, summary.Header, "G2")
		assert.Contains(t, summary.Message, "Current Kp: 5.67")
		assert.Equal(t, domain.StormG2, summary.Current.Level)
	})

	t.Run("no observations", func(t *testing.T) {
		b := testBundle()
		b.Geomagnetic.Observed = nil
		rec := get(t, newTestServer(&mockSource{bundle: b}), "/geomagnetic/summary")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no bundle yet", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{}), "/geomagnetic/summary")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMoon(t *testing.T) {
	type moonBody struct {
		Current   domain.MoonPhase `json:"current"`
		NextPhase string           `json:"next_phase"`
		NextDate  string           `json:"next_date"`
	}

	t.Run("current phase", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{}), "/moon")
		require.Equal(t, http.StatusOK, rec.Code)

		var body moonBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.WaxingGibbous, body.Current.Label)
		assert.Empty(t, body.NextDate)
	})

	t.Run("next full moon", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{}), "/moon?phase=full+moon")
		require.Equal(t, http.StatusOK, rec.Code)

		var body moonBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, string(domain.FullMoon), body.NextPhase)
		assert.Equal(t, "2024-01-25", body.NextDate)
	})

	t.Run("unknown phase", func(t *testing.T) {
		rec := get(t, newTestServer(&mockSource{}), "/moon?phase=blue+moon")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not within search bound", func(t *testing.T) {
		srv := newTestServer(&mockSource{}, httpadapter.WithPhaseSearchDays(2))
		rec := get(t, srv, "/moon?phase=New+Moon")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
