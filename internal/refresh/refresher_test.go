package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-dashboard/internal/observability"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

// scriptedLoader returns the scripted errors in order, then succeeds.
type scriptedLoader struct {
	mu     sync.Mutex
	errs   []error
	called chan struct{}
}

func newScriptedLoader(errs ...error) *scriptedLoader {
	return &scriptedLoader{errs: errs, called: make(chan struct{}, 16)}
}

func (l *scriptedLoader) RefreshStations(context.Context) (int, error) {
	l.mu.Lock()
	var err error
	if len(l.errs) > 0 {
		err, l.errs = l.errs[0], l.errs[1:]
	}
	l.mu.Unlock()
	l.called <- struct{}{}
	if err != nil {
		return 0, err
	}
	return 84, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterValue(t *testing.T, c prometheus.Collector, label string) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type harness struct {
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T, loader StationLoader, interval time.Duration) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		clock:   clockwork.NewFakeClock(),
		metrics: observability.NewMetricsForTesting(),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	r := New(loader, interval, h.clock, discardLogger(), h.metrics)
	go func() { h.done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

// advance waits for the loop to park on its timer, then moves time forward.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1), "refresher never waited on its timer")
	h.clock.Advance(d)
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

func waitCall(t *testing.T, l *scriptedLoader) {
	t.Helper()
	select {
	case <-l.called:
	case <-time.After(2 * time.Second):
		t.Fatal("loader was not called")
	}
}

func TestRun_RefreshesEveryInterval(t *testing.T) {
	loader := newScriptedLoader()
	h := start(t, loader, 4*time.Minute)

	h.advance(t, 4*time.Minute)
	waitCall(t, loader)
	h.advance(t, 4*time.Minute)
	waitCall(t, loader)

	h.stop(t)
	assert.Equal(t, 2.0, counterValue(t, h.metrics.StationRefreshes, "success"))
	assert.Zero(t, counterValue(t, h.metrics.StationRefreshes, "error"))
}

func TestRun_DoesNotRefreshBeforeInterval(t *testing.T) {
	loader := newScriptedLoader()
	h := start(t, loader, 4*time.Minute)

	h.advance(t, 3*time.Minute)
	select {
	case <-loader.called:
		t.Fatal("refreshed before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}
	h.stop(t)
}

func TestRun_BacksOffAfterFailure(t *testing.T) {
	upstream := errors.New("upstream 503")
	loader := newScriptedLoader(upstream, upstream)
	h := start(t, loader, 4*time.Minute)

	h.advance(t, 4*time.Minute)
	waitCall(t, loader)
	h.advance(t, time.Second)
	waitCall(t, loader)
	h.advance(t, 2*time.Second)
	waitCall(t, loader)

	h.stop(t)
	assert.Equal(t, 2.0, counterValue(t, h.metrics.StationRefreshes, "error"))
	assert.Equal(t, 1.0, counterValue(t, h.metrics.StationRefreshes, "success"))
}

func TestRun_StopsWithoutGroundProvider(t *testing.T) {
	loader := newScriptedLoader(source.ErrProviderDisabled)
	h := start(t, loader, time.Minute)

	h.advance(t, time.Minute)
	waitCall(t, loader)

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher kept running without a ground provider")
	}
}

func TestRun_DisabledInterval(t *testing.T) {
	r := New(newScriptedLoader(), 0, clockwork.NewFakeClock(), discardLogger(), observability.NewMetricsForTesting())
	assert.NoError(t, r.Run(context.Background()))
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current, ceiling, want time.Duration
	}{
		{time.Second, time.Minute, 2 * time.Second},
		{16 * time.Second, time.Minute, 32 * time.Second},
		{32 * time.Second, time.Minute, time.Minute},
		{time.Minute, time.Minute, time.Minute},
		{10 * time.Second, 15 * time.Second, 15 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextBackoff(tt.current, tt.ceiling))
	}
}
