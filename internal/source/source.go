// Package source resolves one observation per selector from the configured
// providers, falling back to synthetic data when live data is unavailable.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
	"github.com/couchcryptid/air-quality-dashboard/internal/observability"
)

// GroundProvider returns every ground-sensor station in one call.
type GroundProvider interface {
	Stations(ctx context.Context) ([]domain.Observation, error)
}

// SatelliteProvider returns model readings for a coordinate, in ground-sensor units.
type SatelliteProvider interface {
	Current(ctx context.Context, geo domain.Geo) (domain.Observation, error)
}

// Options tunes timeouts and caching.
type Options struct {
	// GroundTimeout bounds the ground query in single-provider mode.
	GroundTimeout time.Duration
	// MultiProviderTimeout bounds each query when both providers are used.
	MultiProviderTimeout time.Duration
	CacheTTL             time.Duration
	CacheSize            int
	Clock                clockwork.Clock
}

const stationsKey = "stations"

// Source is the Observation Source. A nil ground provider disables live ground
// data; a nil satellite provider selects single-provider mode.
type Source struct {
	ground    GroundProvider
	satellite SatelliteProvider
	gen       *domain.Generator
	opts      Options
	obsCache  *ttlCache[domain.Observation]
	listCache *ttlCache[[]domain.Observation]
	group     singleflight.Group
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Source.
func New(ground GroundProvider, satellite SatelliteProvider, gen *domain.Generator, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Source {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.GroundTimeout <= 0 {
		opts.GroundTimeout = 10 * time.Second
	}
	if opts.MultiProviderTimeout <= 0 {
		opts.MultiProviderTimeout = 3 * time.Second
	}
	return &Source{
		ground:    ground,
		satellite: satellite,
		gen:       gen,
		opts:      opts,
		obsCache:  newTTLCache[domain.Observation](opts.CacheSize, opts.CacheTTL, opts.Clock),
		listCache: newTTLCache[[]domain.Observation](1, opts.CacheTTL, opts.Clock),
		logger:    logger,
		metrics:   metrics,
	}
}

// MultiProvider reports whether both providers are consulted.
func (s *Source) MultiProvider() bool { return s.satellite != nil }

// LiveEnabled reports whether any live provider is configured.
func (s *Source) LiveEnabled() bool { return s.ground != nil || s.satellite != nil }

// Resolve returns exactly one observation for the selector. Provider failures
// never surface as errors; only an invalid selector does.
func (s *Source) Resolve(ctx context.Context, sel Selector) (domain.Observation, error) {
	sel, err := s.Normalize(ctx, sel)
	if err != nil {
		return domain.Observation{}, err
	}
	key := sel.Key()

	if obs, ok := s.obsCache.get(key); ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return obs, nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	v, _, _ := s.group.Do(key, func() (any, error) {
		obs := s.resolve(ctx, sel)
		if obs.Provenance != domain.ProvenanceSynthetic {
			s.obsCache.put(key, obs)
		}
		return obs, nil
	})
	return v.(domain.Observation), nil
}

func (s *Source) resolve(ctx context.Context, sel Selector) domain.Observation {
	tgt := sel.target()
	timeout := s.opts.GroundTimeout
	if s.MultiProvider() {
		timeout = s.opts.MultiProviderTimeout
	}

	ground := s.fetchGround(ctx, sel, timeout)
	var satellite Result
	if s.MultiProvider() {
		satellite = s.fetchSatellite(ctx, tgt.geo, timeout)
	}

	obs := Select(ground, satellite, func() domain.Observation {
		return s.gen.Station(tgt.loc, tgt.site)
	})

	s.metrics.Observations.WithLabelValues(string(obs.Provenance)).Inc()
	if obs.Provenance != domain.ProvenanceLive {
		s.logger.Info("observation fallback",
			"selector", sel.Key(),
			"provenance", obs.Provenance,
			"ground_outcome", ground.Outcome,
			"satellite_outcome", satellite.Outcome,
		)
	}
	return obs
}

// Normalize validates a selector. A site missing from the registry is looked
// up in the live station list, which carries stations the registry does not.
func (s *Source) Normalize(ctx context.Context, sel Selector) (Selector, error) {
	norm, err := sel.Normalize()
	if err == nil || !errors.Is(err, domain.ErrUnknownSite) || s.ground == nil {
		return norm, err
	}
	stations, lerr := s.groundStations(ctx, s.opts.GroundTimeout)
	if lerr != nil {
		return Selector{}, err
	}
	county := domain.NormalizeCounty(sel.County)
	for _, st := range stations {
		if st.SiteName != sel.Site {
			continue
		}
		if county != "" && county != st.County {
			break
		}
		return Selector{County: st.County, Site: st.SiteName}, nil
	}
	return Selector{}, err
}

// Locations returns the counties in display order. When the live station list
// is available each county lists its live sites; otherwise the registry sites.
func (s *Source) Locations(ctx context.Context) []domain.Location {
	counties := domain.Counties()
	if s.ground == nil {
		return counties
	}
	stations, err := s.groundStations(ctx, s.opts.GroundTimeout)
	if err != nil {
		return counties
	}
	live := make(map[string][]string, len(counties))
	for _, st := range stations {
		live[st.County] = append(live[st.County], st.SiteName)
	}
	for i, loc := range counties {
		if sites := live[loc.County]; len(sites) > 0 {
			slices.Sort(sites)
			counties[i].Sites = slices.Compact(sites)
		}
	}
	return counties
}

// Stations returns the map data set: the live station list, or the synthetic
// registry when no live list is available.
func (s *Source) Stations(ctx context.Context) []domain.Observation {
	stations, err := s.groundStations(ctx, s.opts.GroundTimeout)
	if err == nil {
		out := make([]domain.Observation, len(stations))
		for i, st := range stations {
			st.Provenance = domain.ProvenanceLive
			out[i] = st
		}
		s.metrics.Observations.WithLabelValues(string(domain.ProvenanceLive)).Add(float64(len(out)))
		return out
	}
	s.logger.Info("station list fallback", "provenance", domain.ProvenanceSynthetic, "error", err)
	out := s.gen.Registry()
	s.metrics.Observations.WithLabelValues(string(domain.ProvenanceSynthetic)).Add(float64(len(out)))
	return out
}

func (s *Source) fetchGround(ctx context.Context, sel Selector, timeout time.Duration) Result {
	stations, err := s.groundStations(ctx, timeout)
	if err != nil {
		return failed(ProviderGround, err)
	}
	obs, ok := pickStation(stations, sel)
	if !ok {
		s.logger.Warn("provider returned no station for selector", "provider", ProviderGround, "selector", sel.Key())
		return failed(ProviderGround, fmt.Errorf("%w: %s", ErrStationNotFound, sel.Key()))
	}
	return Result{Provider: ProviderGround, Observation: obs, Stations: stations, Outcome: OutcomeSuccess}
}

// groundStations fetches the live station list through the list cache.
// Concurrent misses share one upstream request.
func (s *Source) groundStations(ctx context.Context, timeout time.Duration) ([]domain.Observation, error) {
	if s.ground == nil {
		return nil, ErrProviderDisabled
	}
	if stations, ok := s.listCache.get(stationsKey); ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return stations, nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()
	return s.loadStations(ctx, timeout)
}

// RefreshStations reloads the live station list, replacing the cached copy
// on success. It returns ErrProviderDisabled without a ground provider.
func (s *Source) RefreshStations(ctx context.Context) (int, error) {
	if s.ground == nil {
		return 0, ErrProviderDisabled
	}
	stations, err := s.loadStations(ctx, s.opts.GroundTimeout)
	return len(stations), err
}

func (s *Source) loadStations(ctx context.Context, timeout time.Duration) ([]domain.Observation, error) {
	v, err, _ := s.group.Do(stationsKey, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		stations, err := s.ground.Stations(ctx)
		s.metrics.ProviderDuration.WithLabelValues(ProviderGround).Observe(time.Since(start).Seconds())
		if err == nil && len(stations) == 0 {
			err = domain.ErrEmptyPayload
		}
		if err != nil {
			res := failed(ProviderGround, err)
			s.metrics.ProviderRequests.WithLabelValues(ProviderGround, res.Outcome).Inc()
			s.logger.Warn("provider request failed", "provider", ProviderGround, "error", err)
			return nil, err
		}
		s.metrics.ProviderRequests.WithLabelValues(ProviderGround, OutcomeSuccess).Inc()
		s.listCache.put(stationsKey, stations)
		return stations, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Observation), nil
}

func (s *Source) fetchSatellite(ctx context.Context, geo domain.Geo, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	obs, err := s.satellite.Current(ctx, geo)
	s.metrics.ProviderDuration.WithLabelValues(ProviderSatellite).Observe(time.Since(start).Seconds())
	if err != nil {
		res := failed(ProviderSatellite, err)
		s.metrics.ProviderRequests.WithLabelValues(ProviderSatellite, res.Outcome).Inc()
		s.logger.Warn("provider request failed", "provider", ProviderSatellite, "error", err,
			"lat", geo.Lat, "lon", geo.Lon)
		return res
	}
	s.metrics.ProviderRequests.WithLabelValues(ProviderSatellite, OutcomeSuccess).Inc()
	return Result{Provider: ProviderSatellite, Observation: obs, Outcome: OutcomeSuccess}
}
