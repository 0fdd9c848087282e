package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// AQIFloor is the smallest AQI the synthetic generator and forecast walks produce.
const AQIFloor = 10

// Reading is an optional pollutant value. The zero value is unknown.
type Reading struct {
	Value float64
	Known bool
}

// Known wraps a measured value.
func Known(v float64) Reading { return Reading{Value: v, Known: true} }

// Unknown is a reading the source did not supply or that failed to parse.
func Unknown() Reading { return Reading{} }

// Or returns r when known, otherwise fallback.
func (r Reading) Or(fallback Reading) Reading {
	if r.Known {
		return r
	}
	return fallback
}

// String formats the value for display, "N/A" when unknown.
func (r Reading) String() string {
	if !r.Known {
		return "N/A"
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// MarshalJSON encodes an unknown reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Known {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Unknown()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Known(v)
	return nil
}

// Provenance tags where an observation's values came from.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenancePartial   Provenance = "partial"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Field names a pollutant field of an Observation.
type Field string

const (
	FieldAQI  Field = "aqi"
	FieldPM25 Field = "pm2.5"
	FieldPM10 Field = "pm10"
	FieldO3   Field = "o3"
	FieldCO   Field = "co"
	FieldNO2  Field = "no2"
	FieldSO2  Field = "so2"
)

// PollutantFields lists the optional readings in display order.
var PollutantFields = []Field{FieldPM25, FieldPM10, FieldO3, FieldCO, FieldNO2, FieldSO2}

// Observation is one monitoring location's current readings. It is built once
// per fetch and not modified after it leaves the source.
type Observation struct {
	County      string     `json:"county"`
	SiteName    string     `json:"sitename"`
	AQI         int        `json:"aqi"`
	PM25        Reading    `json:"pm2.5"`
	PM10        Reading    `json:"pm10"`
	O3          Reading    `json:"o3"`
	CO          Reading    `json:"co"`
	NO2         Reading    `json:"no2"`
	SO2         Reading    `json:"so2"`
	Geo         Geo        `json:"geo"`
	Status      string     `json:"status,omitempty"`
	PublishedAt time.Time  `json:"published_at,omitzero"`
	Provenance  Provenance `json:"provenance"`

	// MissingAQI marks a provider observation that carried no index. Merged
	// observations always have one.
	MissingAQI bool `json:"-"`

	// FieldSources names the provider that supplied each field of a merged
	// observation ("moenv", "openmeteo" or "synthetic").
	FieldSources map[Field]string `json:"field_sources,omitempty"`
}

// Reading returns the pollutant reading for f. FieldAQI is known unless
// MissingAQI is set.
func (o Observation) Reading(f Field) Reading {
	switch f {
	case FieldAQI:
		if o.MissingAQI {
			return Unknown()
		}
		return Known(float64(o.AQI))
	case FieldPM25:
		return o.PM25
	case FieldPM10:
		return o.PM10
	case FieldO3:
		return o.O3
	case FieldCO:
		return o.CO
	case FieldNO2:
		return o.NO2
	case FieldSO2:
		return o.SO2
	default:
		return Unknown()
	}
}

// WithReading returns a copy of o with the pollutant field f replaced.
// FieldAQI is ignored; the index is set directly.
func (o Observation) WithReading(f Field, r Reading) Observation {
	switch f {
	case FieldPM25:
		o.PM25 = r
	case FieldPM10:
		o.PM10 = r
	case FieldO3:
		o.O3 = r
	case FieldCO:
		o.CO = r
	case FieldNO2:
		o.NO2 = r
	case FieldSO2:
		o.SO2 = r
	}
	return o
}

// MapStatus is the three-bucket legend used on the station map.
type MapStatus struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// StatusForAQI buckets an AQI into the map legend.
func StatusForAQI(aqi int) MapStatus {
	switch {
	case aqi <= 50:
		return MapStatus{Label: "良好 (0-50)", Color: "#00cc96"}
	case aqi <= 100:
		return MapStatus{Label: "普通 (51-100)", Color: "#ffc107"}
	default:
		return MapStatus{Label: "不健康 (>100)", Color: "#d62728"}
	}
}
