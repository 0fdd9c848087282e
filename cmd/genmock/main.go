// Command genmock writes a synthetic station fixture in the MOENV aqx_p_432
// payload format. A fixed seed and clock make the output reproducible, so the
// fixture can back a mock MOENV server or the moenv adapter tests.
//
// Usage:
//
//	go run ./cmd/genmock -seed 42 -out data/mock/aqx_p_432.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

// fixtureTime is the publish hour stamped on every generated station.
var fixtureTime = time.Date(2024, time.April, 26, 7, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	seed := flag.Uint64("seed", 42, "generator seed")
	out := flag.String("out", "", "output path for the station fixture")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	stations := domain.NewGenerator(*seed).Registry()
	records := make([]domain.RawStationRecord, len(stations))
	for i, st := range stations {
		records[i] = toRecord(st)
	}

	if err := writeJSON(*out, map[string]any{
		"fields":  fixtureFields,
		"records": records,
	}); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d stations to %s (seed %d)", len(records), *out, *seed)

	printStats(stations)
	return nil
}

// fixtureFields mirrors the field listing MOENV returns alongside records.
var fixtureFields = []map[string]string{
	{"id": "sitename", "type": "text"},
	{"id": "county", "type": "text"},
	{"id": "aqi", "type": "text"},
	{"id": "status", "type": "text"},
	{"id": "pm2.5", "type": "text"},
	{"id": "pm10", "type": "text"},
	{"id": "o3", "type": "text"},
	{"id": "co", "type": "text"},
	{"id": "so2", "type": "text"},
	{"id": "no2", "type": "text"},
	{"id": "longitude", "type": "text"},
	{"id": "latitude", "type": "text"},
	{"id": "publishtime", "type": "text"},
}

// toRecord renders an observation the way MOENV does: every value a string.
func toRecord(obs domain.Observation) domain.RawStationRecord {
	return domain.RawStationRecord{
		SiteName:    domain.FlexValue(obs.SiteName),
		County:      domain.FlexValue(obs.County),
		AQI:         domain.FlexValue(strconv.Itoa(obs.AQI)),
		Status:      domain.FlexValue(obs.Status),
		PM25:        flex(obs.PM25, 0),
		PM10:        flex(obs.PM10, 0),
		O3:          flex(obs.O3, 1),
		CO:          flex(obs.CO, 2),
		SO2:         flex(obs.SO2, 1),
		NO2:         flex(obs.NO2, 1),
		Longitude:   domain.FlexValue(strconv.FormatFloat(obs.Geo.Lon, 'f', 6, 64)),
		Latitude:    domain.FlexValue(strconv.FormatFloat(obs.Geo.Lat, 'f', 6, 64)),
		PublishTime: domain.FlexValue(obs.PublishedAt.Format("2006/01/02 15:04:05")),
	}
}

func flex(r domain.Reading, places int) domain.FlexValue {
	if !r.Known {
		return ""
	}
	return domain.FlexValue(strconv.FormatFloat(r.Value, 'f', places, 64))
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func printStats(stations []domain.Observation) {
	buckets := map[string]int{}
	counties := map[string]bool{}
	for _, st := range stations {
		buckets[domain.StatusForAQI(st.AQI).Label]++
		counties[st.County] = true
	}
	fmt.Printf("\n=== Fixture Statistics ===\n")
	fmt.Printf("Counties: %d\n", len(counties))
	fmt.Printf("Stations: %d\n", len(stations))
	for _, label := range []string{"良好", "普通", "不健康"} {
		fmt.Printf("  %-6s %d\n", label, buckets[label])
	}
}
