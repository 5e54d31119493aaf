package swpc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
)

const kpJSON = `[["time_tag","Kp","a_running","station_count"],["2024-05-10 18:00:00.000","8.67","207","8"]]`

const forecastText = `:Product: 3-Day Forecast
NOAA Kp index breakdown May 11-May 13 2024

             May 11       May 12       May 13
00-03UT       8.00 (G4)    5.67 (G2)    3.67
Rationale: Severe storming is likely.
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/noaa-planetary-k-index.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stargazing-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(kpJSON))
	})
	mux.HandleFunc("GET /text/3-day-forecast.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(forecastText))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(base string) *Client {
	return NewClient(
		base+"/products/noaa-planetary-k-index.json",
		base+"/text/3-day-forecast.txt",
		"stargazing-test", 5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
	)
}

func TestClient_Observations(t *testing.T) {
	c := newTestClient(newTestServer(t).URL)

	raw, err := c.Observations(context.Background())
	require.NoError(t, err)

	samples, err := domain.ParseObservations(raw, domain.DefaultObservationWindow)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, domain.StormG4, samples[0].Level)
}

func TestClient_Predictions(t *testing.T) {
	c := newTestClient(newTestServer(t).URL)

	text, err := c.Predictions(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "NOAA Kp index breakdown")

	samples, err := domain.ParsePredictions(text, time.Date(2024, 5, 11, 0, 30, 0, 0, time.UTC), domain.DefaultPredictionTolerance)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, domain.StormG4, samples[0].Level)
}

func TestClient_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Observations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kp observations")

	_, err = c.Predictions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kp predictions")
}
