// Package domain models Taiwan air-quality observations and the decision logic
// built on top of them: the location registry, the synthetic station generator,
// the personal risk engine and the forecast synthesizer.
//
// # Data Source
//
// Live readings come from the Ministry of Environment (MOENV) open data
// platform, dataset aqx_p_432 ("空氣品質指標(AQI)"), which publishes one record per
// monitoring station per hour. The response is either a bare JSON list or an
// envelope with a "records" list. Every value in a record is a string, and any
// of them may be empty or "-" when a sensor is offline.
//
// # Data Conventions
//
// County names:
//
//	MOENV mixes the variant character 台 with the official 臺 (e.g. "台北市").
//	Names are normalised to 臺 before lookup. See [NormalizeCounty].
//
// Pollutant units (as published by MOENV):
//
//	PM2.5, PM10       μg/m³
//	O3, NO2, SO2      ppb
//	CO                ppm
//
// Unknown values:
//
//	A reading that is missing or fails to parse is [Unknown], never zero. Only
//	AQI is required; records without AQI, site name or county are dropped.
//
// AQI breakpoints used for risk scoring:
//
//	≤50 good | ≤100 moderate | ≤150 unhealthy for sensitive groups | >150 unhealthy
//
// Risk tiers:
//
//	The engine adds condition weights to the AQI base score, multiplies by the
//	activity factor and maps the result onto four tiers:
//
//	  <40 安全 (safe) | <80 注意 (caution) | <120 警告 (warning) | ≥120 危險 (danger)
//
// # Forecasts
//
// The forecast is a bounded random walk anchored at the current AQI, not a
// trained model. Past and forward series, uncertainty bands and the policy
// scenario are all derived from the same step strategy. See [Synthesizer].
package domain
