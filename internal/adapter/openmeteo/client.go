// Package openmeteo fetches modelled air-quality readings for a coordinate
// from the Open-Meteo air-quality API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/air-quality-dashboard/internal/config"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

const currentVariables = "us_aqi,pm10,pm2_5,carbon_monoxide,nitrogen_dioxide,sulphur_dioxide,ozone"

// Mass-concentration to mixing-ratio divisors at 25°C and 1 atm.
const (
	ugm3PerPPBO3  = 1.96
	ugm3PerPPBNO2 = 1.88
	ugm3PerPPBSO2 = 2.62
	ugm3PerPPMCO  = 1145.0
)

// timeLayout is the "current.time" format returned with timezone set.
const timeLayout = "2006-01-02T15:04"

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Client implements source.SatelliteProvider.
type Client struct {
	http    *resty.Client
	apiKey  string
	breaker *gobreaker.CircuitBreaker[domain.Observation]
	logger  *slog.Logger
}

// NewClient creates an Open-Meteo client. Requests are not retried; the
// caller's deadline bounds each query.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return newClient(cfg.OpenMeteoBaseURL, cfg.OpenMeteoAPIKey, cfg.MultiProviderTimeout, logger)
}

func newClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	return &Client{
		http:    rc,
		apiKey:  apiKey,
		breaker: newBreaker("openmeteo"),
		logger:  logger,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[domain.Observation] {
	return gobreaker.NewCircuitBreaker[domain.Observation](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

type currentResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   struct {
		Time            string   `json:"time"`
		USAQI           *float64 `json:"us_aqi"`
		PM10            *float64 `json:"pm10"`
		PM25            *float64 `json:"pm2_5"`
		CarbonMonoxide  *float64 `json:"carbon_monoxide"`
		NitrogenDioxide *float64 `json:"nitrogen_dioxide"`
		SulphurDioxide  *float64 `json:"sulphur_dioxide"`
		Ozone           *float64 `json:"ozone"`
	} `json:"current"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Current returns the latest modelled readings at geo. Gas readings are
// converted to ground-sensor units (ppb, CO in ppm). Null values are unknown.
func (c *Client) Current(ctx context.Context, geo domain.Geo) (domain.Observation, error) {
	obs, err := c.breaker.Execute(func() (domain.Observation, error) {
		return c.fetch(ctx, geo)
	})
	if err != nil {
		return domain.Observation{}, fmt.Errorf("openmeteo current: %w", err)
	}
	return obs, nil
}

func (c *Client) fetch(ctx context.Context, geo domain.Geo) (domain.Observation, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":  strconv.FormatFloat(geo.Lat, 'f', 4, 64),
			"longitude": strconv.FormatFloat(geo.Lon, 'f', 4, 64),
			"current":   currentVariables,
			"timezone":  "Asia/Taipei",
		})
	if c.apiKey != "" {
		req.SetQueryParam("apikey", c.apiKey)
	}

	resp, err := req.Get("/air-quality")
	if err != nil {
		return domain.Observation{}, fmt.Errorf("request: %w", err)
	}
	if resp.IsError() {
		var apiErr errorResponse
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Reason != "" {
			return domain.Observation{}, fmt.Errorf("openmeteo API error: status %d: %s", resp.StatusCode(), apiErr.Reason)
		}
		return domain.Observation{}, fmt.Errorf("openmeteo API error: status %d", resp.StatusCode())
	}

	var payload currentResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return domain.Observation{}, fmt.Errorf("decode response: %w", err)
	}

	obs := toObservation(payload, geo)
	if !anyKnown(obs) {
		return domain.Observation{}, fmt.Errorf("%w: no current values at %.4f,%.4f", domain.ErrEmptyPayload, geo.Lat, geo.Lon)
	}
	c.logger.Debug("openmeteo current fetched", "lat", geo.Lat, "lon", geo.Lon)
	return obs, nil
}

func toObservation(p currentResponse, requested domain.Geo) domain.Observation {
	cur := p.Current
	obs := domain.Observation{
		PM25:       reading(cur.PM25, 1),
		PM10:       reading(cur.PM10, 1),
		O3:         reading(cur.Ozone, ugm3PerPPBO3),
		CO:         reading(cur.CarbonMonoxide, ugm3PerPPMCO),
		NO2:        reading(cur.NitrogenDioxide, ugm3PerPPBNO2),
		SO2:        reading(cur.SulphurDioxide, ugm3PerPPBSO2),
		Provenance: domain.ProvenanceLive,
		Geo:        requested,
	}
	if cur.USAQI != nil && !math.IsNaN(*cur.USAQI) && *cur.USAQI >= 0 {
		obs.AQI = int(math.Round(*cur.USAQI))
	} else {
		obs.MissingAQI = true
	}
	if g := (domain.Geo{Lat: p.Latitude, Lon: p.Longitude}); g != (domain.Geo{}) && g.Valid() {
		obs.Geo = g
	}
	if t, err := time.ParseInLocation(timeLayout, cur.Time, taipei); err == nil {
		obs.PublishedAt = t
	}
	return obs
}

// reading converts a nullable concentration by divisor, rounding to 0.1 (0.01 for CO).
func reading(v *float64, divisor float64) domain.Reading {
	if v == nil || math.IsNaN(*v) || *v < 0 {
		return domain.Unknown()
	}
	places := 10.0
	if divisor == ugm3PerPPMCO {
		places = 100.0
	}
	return domain.Known(math.Round(*v/divisor*places) / places)
}

func anyKnown(obs domain.Observation) bool {
	if obs.Reading(domain.FieldAQI).Known {
		return true
	}
	for _, f := range domain.PollutantFields {
		if obs.Reading(f).Known {
			return true
		}
	}
	return false
}
