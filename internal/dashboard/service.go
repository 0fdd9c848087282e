// Package dashboard runs the render cycle: resolve an observation, score it
// against the health profile, synthesize the forecast and assemble a snapshot.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
	"github.com/couchcryptid/air-quality-dashboard/internal/observability"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

// ObservationSource resolves observations and the station map.
// It is implemented by source.Source.
type ObservationSource interface {
	Normalize(ctx context.Context, sel source.Selector) (source.Selector, error)
	Resolve(ctx context.Context, sel source.Selector) (domain.Observation, error)
	Stations(ctx context.Context) []domain.Observation
	Locations(ctx context.Context) []domain.Location
}

// Publisher emits completed snapshots. It is implemented by kafka.Writer.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Request is the user input of one render cycle.
type Request struct {
	Selector   source.Selector
	Conditions []domain.Condition
	Activity   domain.Activity
	// Zero hours use the configured defaults.
	PastHours   int
	FutureHours int
	Bounds      bool
	Stable      bool
	Policy      *domain.PolicyIntensity
}

// Snapshot is the output of one render cycle.
type Snapshot struct {
	ID          string               `json:"id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Selector    string               `json:"selector"`
	Observation domain.Observation   `json:"observation"`
	Assessment  domain.Assessment    `json:"assessment"`
	Forecast    domain.Forecast      `json:"forecast"`
	Report      []domain.ReportField `json:"report"`
}

// Options configures forecast defaults and publishing.
type Options struct {
	PastHours      int
	FutureHours    int
	PublishTimeout time.Duration
	Clock          clockwork.Clock
}

// Service orchestrates render cycles.
type Service struct {
	source    ObservationSource
	forecast  *domain.Synthesizer
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Service. A nil publisher disables snapshot publishing.
func New(src ObservationSource, forecast *domain.Synthesizer, pub Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PastHours == 0 {
		opts.PastHours = 6
	}
	if opts.FutureHours == 0 {
		opts.FutureHours = domain.DefaultFutureHours
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &Service{
		source:    src,
		forecast:  forecast,
		publisher: pub,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Render runs one cycle. Only invalid input fails; provider outages surface
// as synthetic or partial provenance on the observation.
func (s *Service) Render(ctx context.Context, req Request) (Snapshot, error) {
	start := time.Now()

	sel, err := s.source.Normalize(ctx, req.Selector)
	if err != nil {
		return Snapshot{}, err
	}

	// Reject a bad profile or forecast shape before any provider is queried.
	if _, err := domain.Assess(0, req.Conditions, req.Activity); err != nil {
		return Snapshot{}, err
	}
	if err := s.forecastRequest(req, 0, domain.Geo{}).Validate(); err != nil {
		return Snapshot{}, err
	}

	obs, err := s.source.Resolve(ctx, sel)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve observation: %w", err)
	}

	assessment, err := domain.Assess(obs.AQI, req.Conditions, req.Activity)
	if err != nil {
		return Snapshot{}, fmt.Errorf("assess: %w", err)
	}
	s.metrics.RiskAssessments.WithLabelValues(string(assessment.Tier)).Inc()

	forecast, err := s.forecast.Synthesize(s.forecastRequest(req, obs.AQI, obs.Geo))
	if err != nil {
		return Snapshot{}, fmt.Errorf("forecast: %w", err)
	}

	snap := Snapshot{
		ID:          uuid.NewString(),
		GeneratedAt: s.opts.Clock.Now(),
		Selector:    sel.Key(),
		Observation: obs,
		Assessment:  assessment,
		Forecast:    forecast,
		Report:      domain.ReportFields(obs, assessment),
	}

	s.metrics.Renders.Inc()
	s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("render complete",
		"snapshot_id", snap.ID,
		"selector", snap.Selector,
		"provenance", obs.Provenance,
		"aqi", obs.AQI,
		"tier", assessment.Tier,
	)

	s.publish(ctx, snap)
	return snap, nil
}

// Assess scores a reading without resolving an observation.
func (s *Service) Assess(aqi int, conds []domain.Condition, activity domain.Activity) (domain.Assessment, error) {
	a, err := domain.Assess(aqi, conds, activity)
	if err != nil {
		return domain.Assessment{}, err
	}
	s.metrics.RiskAssessments.WithLabelValues(string(a.Tier)).Inc()
	return a, nil
}

// Forecast synthesizes series for an explicit reading. Zero hours use the
// configured defaults.
func (s *Service) Forecast(req domain.ForecastRequest) (domain.Forecast, error) {
	if req.PastHours == 0 {
		req.PastHours = s.opts.PastHours
	}
	if req.FutureHours == 0 {
		req.FutureHours = s.opts.FutureHours
	}
	return s.forecast.Synthesize(req)
}

// Observe resolves the current observation for a selector.
func (s *Service) Observe(ctx context.Context, sel source.Selector) (domain.Observation, error) {
	return s.source.Resolve(ctx, sel)
}

// Stations returns the station map data.
func (s *Service) Stations(ctx context.Context) []domain.Observation {
	return s.source.Stations(ctx)
}

// Locations returns the counties with their selectable sites.
func (s *Service) Locations(ctx context.Context) []domain.Location {
	return s.source.Locations(ctx)
}

// Warmup performs the first station fetch and marks the service ready.
// Readiness does not depend on the fetch succeeding: the synthetic fallback
// always yields data.
func (s *Service) Warmup(ctx context.Context) {
	stations := s.source.Stations(ctx)
	provenance := domain.ProvenanceSynthetic
	if len(stations) > 0 {
		provenance = stations[0].Provenance
	}
	s.logger.Info("warm-up complete", "stations", len(stations), "provenance", provenance)
	s.ready.Store(true)
}

// CheckReadiness returns nil once the warm-up fetch has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("dashboard has not completed its warm-up fetch")
	}
	return nil
}

func (s *Service) forecastRequest(req Request, current int, geo domain.Geo) domain.ForecastRequest {
	past, future := req.PastHours, req.FutureHours
	if past == 0 {
		past = s.opts.PastHours
	}
	if future == 0 {
		future = s.opts.FutureHours
	}
	return domain.ForecastRequest{
		Current:     current,
		Geo:         geo,
		PastHours:   past,
		FutureHours: future,
		Bounds:      req.Bounds,
		Policy:      req.Policy,
		Stable:      req.Stable,
	}
}

// publish sends the snapshot best-effort. Failures are logged and counted.
func (s *Service) publish(ctx context.Context, snap Snapshot) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, snap); err != nil {
		s.metrics.SnapshotPublishErrors.Inc()
		s.logger.Warn("snapshot publish failed", "snapshot_id", snap.ID, "error", err)
		return
	}
	s.metrics.SnapshotsPublished.Inc()
}
