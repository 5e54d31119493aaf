package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/observability"
	"github.com/couchcryptid/stargazing-forecast/internal/pipeline"
)

type stubAssembler struct {
	calls atomic.Int64
	err   error
}

func (s *stubAssembler) Assemble(_ context.Context, loc domain.GeoPoint, _ domain.Window) (domain.ForecastBundle, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return domain.ForecastBundle{}, s.err
	}
	return domain.ForecastBundle{ID: fmt.Sprintf("bundle-%d", n), Location: loc}, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.ForecastBundle
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, b domain.ForecastBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, b)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func TestPipeline_RefreshNow(t *testing.T) {
	asm := &stubAssembler{}
	pub := &mockPublisher{}
	metrics := newTestMetrics()
	p := pipeline.New(asm, observer, time.Hour, discardLogger(), metrics, pipeline.WithPublisher(pub))

	_, ok := p.Latest()
	assert.False(t, ok)
	require.Error(t, p.CheckReadiness(context.Background()))

	require.NoError(t, p.RefreshNow(context.Background()))

	b, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, "bundle-1", b.ID)
	assert.Equal(t, observer, b.Location)
	require.NoError(t, p.CheckReadiness(context.Background()))
	require.Len(t, pub.published, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BundlesPublished), 0)

	require.NoError(t, p.RefreshNow(context.Background()))
	b, _ = p.Latest()
	assert.Equal(t, "bundle-2", b.ID, "newest bundle replaces the previous one")
}

func TestPipeline_RefreshNow_FailureKeepsPrevious(t *testing.T) {
	asm := &stubAssembler{}
	p := pipeline.New(asm, observer, time.Hour, discardLogger(), newTestMetrics())
	require.NoError(t, p.RefreshNow(context.Background()))

	asm.err = domain.NewIncompleteForecastError(pipeline.SourceGrid, domain.ErrEmptyGrid)
	err := p.RefreshNow(context.Background())
	require.ErrorIs(t, err, domain.ErrIncompleteForecast)

	b, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, "bundle-1", b.ID)
}

func TestPipeline_RefreshNow_PublishError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	metrics := newTestMetrics()
	p := pipeline.New(&stubAssembler{}, observer, time.Hour, discardLogger(), metrics, pipeline.WithPublisher(pub))

	err := p.RefreshNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	_, ok := p.Latest()
	assert.True(t, ok, "bundle is kept even when publishing fails")
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.BundlesPublished), 0)
}

func TestPipeline_Run(t *testing.T) {
	asm := &stubAssembler{}
	metrics := newTestMetrics()
	p := pipeline.New(asm, observer, time.Hour, discardLogger(), metrics, pipeline.WithRefreshTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := p.Latest()
		return ok
	}, 2*time.Second, 10*time.Millisecond, "first refresh runs on start")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SchedulerRunning), 0)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, int64(1), asm.calls.Load())
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.SchedulerRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	p := pipeline.New(&stubAssembler{err: errors.New("offline")}, observer, time.Hour, discardLogger(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	_, ok := p.Latest()
	assert.False(t, ok)
}
