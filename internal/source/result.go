package source

import (
	"errors"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

// Provider names used in results, metrics and FieldSources.
const (
	ProviderGround    = "moenv"
	ProviderSatellite = "openmeteo"
	ProviderSynthetic = "synthetic"
)

// Outcome labels for provider calls.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeEmpty    = "empty"
	OutcomeDisabled = "disabled"
)

var (
	// ErrProviderDisabled marks a provider that is not configured.
	ErrProviderDisabled = errors.New("provider disabled")
	// ErrStationNotFound means the live data had no station for the selector.
	ErrStationNotFound = errors.New("no live station matches selector")
)

// Result is the explicit outcome of one provider query.
type Result struct {
	Provider    string
	Observation domain.Observation
	Stations    []domain.Observation
	Err         error
	Outcome     string
}

// OK reports whether the provider returned usable data.
func (r Result) OK() bool {
	return r.Provider != "" && r.Err == nil
}

// Queried reports whether the provider took part in the render cycle.
func (r Result) Queried() bool {
	return r.Provider != ""
}

func failed(provider string, err error) Result {
	outcome := OutcomeError
	switch {
	case errors.Is(err, ErrProviderDisabled):
		outcome = OutcomeDisabled
	case errors.Is(err, ErrStationNotFound), errors.Is(err, domain.ErrEmptyPayload):
		outcome = OutcomeEmpty
	}
	return Result{Provider: provider, Err: err, Outcome: outcome}
}

// groundFields are owned by the ground-sensor provider.
var groundFields = []domain.Field{domain.FieldPM25, domain.FieldPM10}

// satelliteFields are owned by the satellite provider.
var satelliteFields = []domain.Field{domain.FieldO3, domain.FieldCO, domain.FieldNO2, domain.FieldSO2}

var allFields = append([]domain.Field{domain.FieldAQI}, domain.PollutantFields...)

// Select composes the final observation from the provider results. A
// satellite result that was never queried means single-provider mode.
//
//   - single provider: ground ok gives live, otherwise synthetic.
//   - multi provider: both ok gives a live merge; one ok gives partial; none
//     gives synthetic.
//
// A partial observation keeps every field the surviving provider supplied.
// Only fields owned by the failed provider that the survivor left unknown are
// drawn from fallback, along with the station metadata when the ground
// provider failed. fallback is only called when something must be synthesized.
func Select(ground, satellite Result, fallback func() domain.Observation) domain.Observation {
	multi := satellite.Queried()

	switch {
	case ground.OK() && (!multi || satellite.OK()):
		obs := ground.Observation
		obs.Provenance = domain.ProvenanceLive
		obs.FieldSources = ownedBy(ProviderGround, groundFields)
		obs.FieldSources[domain.FieldAQI] = ProviderGround
		if !multi {
			for _, f := range satelliteFields {
				obs.FieldSources[f] = ProviderGround
			}
			return obs
		}
		return mergeLive(obs, satellite.Observation)

	case ground.OK():
		obs := ground.Observation
		obs.FieldSources = ownedBy(ProviderGround, groundFields)
		obs.FieldSources[domain.FieldAQI] = ProviderGround
		var missing []domain.Field
		for _, f := range satelliteFields {
			if obs.Reading(f).Known {
				obs.FieldSources[f] = ProviderGround
			} else {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			obs = backfill(obs, fallback(), missing)
		}
		obs.Provenance = domain.ProvenancePartial
		return obs

	case multi && satellite.OK():
		obs := fromSatellite(satellite.Observation, fallback())
		obs.Provenance = domain.ProvenancePartial
		return obs

	default:
		obs := fallback()
		obs.Provenance = domain.ProvenanceSynthetic
		obs.FieldSources = ownedBy(ProviderSynthetic, allFields)
		return obs
	}
}

// fromSatellite builds a partial observation around live satellite readings.
// The synthetic station supplies the metadata and any ground-owned field the
// satellite left unknown; satellite-owned gaps stay unknown.
func fromSatellite(sat, syn domain.Observation) domain.Observation {
	obs := syn
	obs.MissingAQI = false
	obs.FieldSources = ownedBy(ProviderSatellite, satelliteFields)
	for _, f := range satelliteFields {
		obs = obs.WithReading(f, sat.Reading(f))
	}

	if sat.Reading(domain.FieldAQI).Known {
		obs.AQI = sat.AQI
		obs.FieldSources[domain.FieldAQI] = ProviderSatellite
	} else {
		obs.FieldSources[domain.FieldAQI] = ProviderSynthetic
	}
	for _, f := range groundFields {
		if r := sat.Reading(f); r.Known {
			obs = obs.WithReading(f, r)
			obs.FieldSources[f] = ProviderSatellite
		} else {
			obs.FieldSources[f] = ProviderSynthetic
		}
	}

	if sat.Geo.Valid() && sat.Geo != (domain.Geo{}) {
		obs.Geo = sat.Geo
	}
	if !sat.PublishedAt.IsZero() {
		obs.PublishedAt = sat.PublishedAt
	}
	return obs
}

// mergeLive applies field precedence between two live observations: each
// provider wins its own fields, and the other fills any it left unknown.
func mergeLive(ground, sat domain.Observation) domain.Observation {
	obs := ground
	for _, f := range groundFields {
		if !ground.Reading(f).Known && sat.Reading(f).Known {
			obs = obs.WithReading(f, sat.Reading(f))
			obs.FieldSources[f] = ProviderSatellite
		}
	}
	for _, f := range satelliteFields {
		if sat.Reading(f).Known || !ground.Reading(f).Known {
			obs = obs.WithReading(f, sat.Reading(f))
			obs.FieldSources[f] = ProviderSatellite
		} else {
			obs.FieldSources[f] = ProviderGround
		}
	}
	return obs
}

// backfill replaces fields with synthetic values.
func backfill(obs, syn domain.Observation, fields []domain.Field) domain.Observation {
	for _, f := range fields {
		obs = obs.WithReading(f, syn.Reading(f))
		obs.FieldSources[f] = ProviderSynthetic
	}
	return obs
}

func ownedBy(provider string, fields []domain.Field) map[domain.Field]string {
	m := make(map[domain.Field]string, len(domain.PollutantFields)+1)
	for _, f := range fields {
		m[f] = provider
	}
	return m
}
