package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// taipei is the fixed UTC+8 zone MOENV timestamps and commute hours are expressed in.
var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// publishTimeLayout is the MOENV "publishtime" format, e.g. "2024/04/26 15:00:00".
const publishTimeLayout = "2006/01/02 15:04:05"

// FlexValue holds a record value that MOENV may send as a JSON string or number.
type FlexValue string

// UnmarshalJSON accepts strings, numbers and null.
func (v *FlexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FlexValue(s)
	default:
		*v = FlexValue(data)
	}
	return nil
}

// RawStationRecord is one station row of the aqx_p_432 dataset.
type RawStationRecord struct {
	SiteName    FlexValue `json:"sitename"`
	County      FlexValue `json:"county"`
	AQI         FlexValue `json:"aqi"`
	Status      FlexValue `json:"status"`
	PM25        FlexValue `json:"pm2.5"`
	PM10        FlexValue `json:"pm10"`
	O3          FlexValue `json:"o3"`
	CO          FlexValue `json:"co"`
	SO2         FlexValue `json:"so2"`
	NO2         FlexValue `json:"no2"`
	Longitude   FlexValue `json:"longitude"`
	Latitude    FlexValue `json:"latitude"`
	PublishTime FlexValue `json:"publishtime"`
}

type stationEnvelope struct {
	Records []RawStationRecord `json:"records"`
}

// DecodeStationPayload decodes either a bare record list or an envelope with
// a "records" list. An empty record set is an error.
func DecodeStationPayload(data []byte) ([]RawStationRecord, error) {
	data = bytes.TrimSpace(data)
	var records []RawStationRecord
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode station list: %w", err)
		}
	} else {
		var env stationEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode station envelope: %w", err)
		}
		records = env.Records
	}
	if len(records) == 0 {
		return nil, ErrEmptyPayload
	}
	return records, nil
}

// ParseStationRecord converts a raw record into a live Observation. It returns
// false when the record lacks AQI, site name or county.
func ParseStationRecord(rec RawStationRecord) (Observation, bool) {
	site := strings.TrimSpace(string(rec.SiteName))
	county := NormalizeCounty(string(rec.County))
	aqi := parseReading(rec.AQI)
	if site == "" || county == "" || !aqi.Known || aqi.Value < 0 {
		return Observation{}, false
	}

	obs := Observation{
		County:      county,
		SiteName:    site,
		AQI:         int(math.Round(aqi.Value)),
		PM25:        parseReading(rec.PM25),
		PM10:        parseReading(rec.PM10),
		O3:          parseReading(rec.O3),
		CO:          parseReading(rec.CO),
		NO2:         parseReading(rec.NO2),
		SO2:         parseReading(rec.SO2),
		Status:      strings.TrimSpace(string(rec.Status)),
		PublishedAt: parsePublishTime(string(rec.PublishTime)),
		Provenance:  ProvenanceLive,
	}

	lat, lon := parseReading(rec.Latitude), parseReading(rec.Longitude)
	if geo := (Geo{Lat: lat.Value, Lon: lon.Value}); lat.Known && lon.Known && geo.Valid() {
		obs.Geo = geo
	} else {
		obs.Geo = CentroidFor(county)
	}
	return obs, true
}

// ParseStationPayload decodes and parses a full payload, dropping incomplete rows.
func ParseStationPayload(data []byte) ([]Observation, error) {
	records, err := DecodeStationPayload(data)
	if err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(records))
	for _, rec := range records {
		if obs, ok := ParseStationRecord(rec); ok {
			out = append(out, obs)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: all %d records incomplete", ErrEmptyPayload, len(records))
	}
	return out, nil
}

// parseReading parses a numeric string, returning Unknown on failure.
func parseReading(v FlexValue) Reading {
	s := strings.TrimSpace(string(v))
	if s == "" || s == "-" || strings.EqualFold(s, "ND") {
		return Unknown()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Unknown()
	}
	return Known(f)
}

func parsePublishTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(publishTimeLayout, s, taipei)
	if err != nil {
		return time.Time{}
	}
	return t
}
