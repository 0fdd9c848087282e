package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
	"github.com/couchcryptid/air-quality-dashboard/internal/observability"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

// --- fakes ---

type fakeSource struct {
	obs      domain.Observation
	stations []domain.Observation
	calls    atomic.Int32
	lastSel  source.Selector
	mu       sync.Mutex
}

func (f *fakeSource) Resolve(_ context.Context, sel source.Selector) (domain.Observation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastSel = sel
	f.mu.Unlock()
	return f.obs, nil
}

func (f *fakeSource) Normalize(_ context.Context, sel source.Selector) (source.Selector, error) {
	return sel.Normalize()
}

func (f *fakeSource) Stations(_ context.Context) []domain.Observation {
	return f.stations
}

func (f *fakeSource) Locations(_ context.Context) []domain.Location {
	return domain.Counties()
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, snap Snapshot) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

var generatedAt = time.Date(2024, 4, 26, 7, 0, 0, 0, time.UTC)

func xitunObservation() domain.Observation {
	return domain.Observation{
		County: "臺中市", SiteName: "西屯", AQI: 87,
		PM25: domain.Known(28), PM10: domain.Unknown(), O3: domain.Known(41.2),
		CO: domain.Known(0.38), NO2: domain.Known(17.4), SO2: domain.Known(1.9),
		Geo:        domain.Geo{Lat: 24.162, Lon: 120.617},
		Provenance: domain.ProvenanceLive,
	}
}

func newTestService(src ObservationSource, pub Publisher) (*Service, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	svc := New(src, domain.NewSynthesizer(nil), pub, Options{
		PastHours:   12,
		FutureHours: 8,
		Clock:       clockwork.NewFakeClockAt(generatedAt),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
	return svc, metrics
}

func newServiceWithoutPublisher(src ObservationSource) (*Service, *observability.Metrics) {
	return newTestService(src, nil)
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// --- render ---

func TestRender_HappyPath(t *testing.T) {
	src := &fakeSource{obs: xitunObservation()}
	pub := &fakePublisher{}
	svc, metrics := newTestService(src, pub)

	snap, err := svc.Render(context.Background(), Request{
		Selector:   source.Selector{County: "台中市"},
		Conditions: []domain.Condition{domain.ConditionRespiratory},
		Activity:   domain.ActivityLight,
	})
	require.NoError(t, err)

	_, err = uuid.Parse(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, generatedAt, snap.GeneratedAt)
	assert.Equal(t, "county:臺中市", snap.Selector)
	assert.Equal(t, "臺中市", src.lastSel.County, "selector normalized before resolve")

	// (20 + 30) × 1.2 = 60
	assert.Equal(t, domain.TierCaution, snap.Assessment.Tier)
	assert.InDelta(t, 60, snap.Assessment.Score, 1e-9)

	require.Len(t, snap.Forecast.Past, 12)
	require.Len(t, snap.Forecast.Forward, 9)
	assert.Equal(t, 87, snap.Forecast.Forward[0].Value)
	assert.Empty(t, snap.Forecast.Policy)

	assert.Equal(t, domain.ReportFields(snap.Observation, snap.Assessment), snap.Report)

	require.Len(t, pub.snaps, 1)
	if diff := cmp.Diff(snap, pub.snaps[0]); diff != "" {
		t.Errorf("published snapshot mismatch (-rendered +published):\n%s", diff)
	}

	assert.InDelta(t, 1, counterValue(t, metrics.Renders), 0)
	assert.InDelta(t, 1, counterValue(t, metrics.SnapshotsPublished), 0)
	assert.InDelta(t, 0, counterValue(t, metrics.SnapshotPublishErrors), 0)
	assert.InDelta(t, 1, counterValue(t, metrics.RiskAssessments), 0)
}

func TestRender_UniqueSnapshotIDs(t *testing.T) {
	svc, _ := newServiceWithoutPublisher(&fakeSource{obs: xitunObservation()})

	a, err := svc.Render(context.Background(), Request{})
	require.NoError(t, err)
	b, err := svc.Render(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRender_CustomForecastShape(t *testing.T) {
	svc, _ := newServiceWithoutPublisher(&fakeSource{obs: xitunObservation()})

	snap, err := svc.Render(context.Background(), Request{
		PastHours:   6,
		FutureHours: 12,
		Bounds:      true,
		Policy:      &domain.PolicyIntensity{Traffic: 0.5, Industry: 0.5},
	})
	require.NoError(t, err)

	assert.Len(t, snap.Forecast.Past, 6)
	assert.Len(t, snap.Forecast.Forward, 13)
	require.Len(t, snap.Forecast.Policy, 13)
	assert.Equal(t, 87, snap.Forecast.Policy[0].Value)
	assert.True(t, snap.Forecast.Seeded, "policy scenarios are seeded")
	require.NotNil(t, snap.Forecast.Forward[1].Upper)
}

func TestRender_StableForecastRepeats(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(generatedAt))
	t.Cleanup(func() { domain.SetClock(nil) })

	svc, _ := newServiceWithoutPublisher(&fakeSource{obs: xitunObservation()})
	req := Request{Stable: true}

	a, err := svc.Render(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Render(context.Background(), req)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Forecast, b.Forecast); diff != "" {
		t.Errorf("stable forecast differs between renders (-first +second):\n%s", diff)
	}
}

func TestRender_SyntheticObservationStillRenders(t *testing.T) {
	obs := xitunObservation()
	obs.Provenance = domain.ProvenanceSynthetic
	obs.Status = "備援"
	svc, _ := newServiceWithoutPublisher(&fakeSource{obs: obs})

	snap, err := svc.Render(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceSynthetic, snap.Observation.Provenance)
	assert.Contains(t, snap.Report, domain.ReportField{Key: "provenance", Label: "數據源", Value: "備援系統"})
}

func TestRender_InvalidInputSkipsSource(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		check func(error) bool
	}{
		{
			name:  "unknown condition",
			req:   Request{Conditions: []domain.Condition{"asthma"}},
			check: domain.IsInvalidInput,
		},
		{
			name:  "unknown activity",
			req:   Request{Activity: "sprinting"},
			check: domain.IsInvalidInput,
		},
		{
			name:  "unsupported past hours",
			req:   Request{PastHours: 24},
			check: domain.IsInvalidInput,
		},
		{
			name:  "policy out of range",
			req:   Request{Policy: &domain.PolicyIntensity{Traffic: 1.5}},
			check: domain.IsInvalidInput,
		},
		{
			name:  "coordinates out of range",
			req:   Request{Selector: source.Selector{Geo: &domain.Geo{Lat: 95, Lon: 121}}},
			check: domain.IsInvalidInput,
		},
		{
			name:  "unknown county",
			req:   Request{Selector: source.Selector{County: "東京都"}},
			check: domain.IsNotFound,
		},
		{
			name:  "unknown site",
			req:   Request{Selector: source.Selector{Site: "不存在"}},
			check: domain.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{obs: xitunObservation()}
			pub := &fakePublisher{}
			svc, metrics := newTestService(src, pub)

			_, err := svc.Render(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error class: %v", err)
			assert.Equal(t, int32(0), src.calls.Load())
			assert.Empty(t, pub.snaps)
			assert.InDelta(t, 0, counterValue(t, metrics.Renders), 0)
		})
	}
}

func TestRender_PublishFailureDoesNotFailRender(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	svc, metrics := newTestService(&fakeSource{obs: xitunObservation()}, pub)

	snap, err := svc.Render(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.InDelta(t, 1, counterValue(t, metrics.SnapshotPublishErrors), 0)
	assert.InDelta(t, 0, counterValue(t, metrics.SnapshotsPublished), 0)
}

func TestRender_PublishSurvivesCancelledRequest(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newTestService(&fakeSource{obs: xitunObservation()}, pub)

	ctx, cancel := context.WithCancel(context.Background())
	svc.publish(ctx, Snapshot{ID: "snap-1"})
	cancel()
	svc.publish(ctx, Snapshot{ID: "snap-2"})

	require.Len(t, pub.snaps, 2)
}

// --- direct operations ---

func TestAssess_CountsTier(t *testing.T) {
	svc, metrics := newServiceWithoutPublisher(&fakeSource{})

	a, err := svc.Assess(151, []domain.Condition{domain.ConditionElderly, domain.ConditionInfant}, domain.ActivityResting)
	require.NoError(t, err)
	assert.Equal(t, domain.TierDanger, a.Tier)
	assert.InDelta(t, 1, counterValue(t, metrics.RiskAssessments.WithLabelValues(string(domain.TierDanger))), 0)

	_, err = svc.Assess(-1, nil, "")
	require.ErrorIs(t, err, domain.ErrNegativeAQI)
}

func TestForecast_AppliesDefaults(t *testing.T) {
	svc, _ := newServiceWithoutPublisher(&fakeSource{})

	f, err := svc.Forecast(domain.ForecastRequest{Current: 50, Geo: domain.Geo{Lat: 24.1, Lon: 120.6}})
	require.NoError(t, err)
	assert.Len(t, f.Past, 12)
	assert.Len(t, f.Forward, 9)

	_, err = svc.Forecast(domain.ForecastRequest{Current: 50, PastHours: 7})
	require.ErrorIs(t, err, domain.ErrInvalidForecastLength)
}

func TestStations_PassThrough(t *testing.T) {
	stations := []domain.Observation{xitunObservation()}
	svc, _ := newServiceWithoutPublisher(&fakeSource{stations: stations})

	assert.Equal(t, stations, svc.Stations(context.Background()))
}

// --- readiness ---

func TestCheckReadiness_AfterWarmup(t *testing.T) {
	src := &fakeSource{stations: []domain.Observation{xitunObservation()}}
	svc, _ := newServiceWithoutPublisher(src)

	require.Error(t, svc.CheckReadiness(context.Background()))

	svc.Warmup(context.Background())
	require.NoError(t, svc.CheckReadiness(context.Background()))
}

func TestCheckReadiness_WarmupWithoutStations(t *testing.T) {
	svc, _ := newServiceWithoutPublisher(&fakeSource{})

	svc.Warmup(context.Background())
	require.NoError(t, svc.CheckReadiness(context.Background()))
}
