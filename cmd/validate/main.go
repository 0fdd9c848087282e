// Command validate checks a station fixture in the MOENV aqx_p_432 format
// against the location registry and the synthetic data invariants. It parses
// the file with the same code the moenv adapter uses, so a fixture that passes
// here can stand in for a live release.
//
// Usage:
//
//	go run ./cmd/validate -in data/mock/aqx_p_432.json
//	go run ./cmd/validate -in data/mock/aqx_p_432.json -live
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

// taiwanBounds covers the main island and the outlying islands, Kinmen included.
var taiwanBounds = struct{ minLat, maxLat, minLon, maxLon float64 }{21.5, 26.5, 118.0, 122.5}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	in := flag.String("in", "", "path to the station fixture")
	live := flag.Bool("live", false, "fixture is a captured live release: skip synthetic ratio checks and registry coverage")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*in, *live))
}

func run(path string, live bool) int {
	fmt.Println("=== Station Fixture Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read fixture: %v\n", err)
		return 1
	}
	records, err := domain.DecodeStationPayload(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode fixture: %v\n", err)
		return 1
	}

	parse := &phase{name: "Record parsing"}
	stations := make([]domain.Observation, 0, len(records))
	for i, rec := range records {
		obs, ok := domain.ParseStationRecord(rec)
		if !ok {
			parse.errorf("record %d (%q): missing AQI, site name or county", i, rec.SiteName)
			continue
		}
		stations = append(stations, obs)
	}

	phases := []*phase{
		parse,
		validateRegistry(stations, live),
		validateRanges(stations),
	}
	if !live {
		phases = append(phases, validateSyntheticRatios(stations))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d in file, %d parsed\n", len(records), len(stations))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateRegistry checks every station's county and site against the
// registry. Synthetic fixtures must also cover every registered site once.
func validateRegistry(stations []domain.Observation, live bool) *phase {
	p := &phase{name: "Registry membership"}
	seen := map[string]int{}
	for _, st := range stations {
		loc, err := domain.LookupCounty(st.County)
		if err != nil {
			if !live {
				p.errorf("%s: %v", st.SiteName, err)
			}
			continue
		}
		seen[st.SiteName]++
		if !live && !loc.HasSite(st.SiteName) {
			p.errorf("%s: not a registered site of %s", st.SiteName, st.County)
		}
	}
	if live {
		return p
	}
	for _, loc := range domain.Counties() {
		for _, site := range loc.Sites {
			switch n := seen[site]; {
			case n == 0:
				p.errorf("%s/%s: missing from fixture", loc.County, site)
			case n > 1:
				p.errorf("%s/%s: appears %d times", loc.County, site, n)
			}
		}
	}
	return p
}

func validateRanges(stations []domain.Observation) *phase {
	p := &phase{name: "Value ranges"}
	b := taiwanBounds
	for _, st := range stations {
		if st.AQI < domain.AQIFloor {
			p.errorf("%s: AQI %d below floor %d", st.SiteName, st.AQI, domain.AQIFloor)
		}
		if !st.Geo.Valid() || st.Geo.Lat < b.minLat || st.Geo.Lat > b.maxLat || st.Geo.Lon < b.minLon || st.Geo.Lon > b.maxLon {
			p.errorf("%s: coordinates %.4f,%.4f outside Taiwan", st.SiteName, st.Geo.Lat, st.Geo.Lon)
		}
		for _, f := range domain.PollutantFields {
			if r := st.Reading(f); r.Known && r.Value < 0 {
				p.errorf("%s: %s is negative (%g)", st.SiteName, f, r.Value)
			}
		}
	}
	return p
}

// validateSyntheticRatios checks the fixed relations the generator guarantees:
// PM2.5 = ⌊0.4·AQI⌋, PM10 = ⌊0.8·AQI⌋, gases within their draw ranges.
func validateSyntheticRatios(stations []domain.Observation) *phase {
	p := &phase{name: "Synthetic field relations"}
	for _, st := range stations {
		aqi := float64(st.AQI)
		checkEqual(p, st.SiteName, domain.FieldPM25, st.PM25, math.Floor(aqi*0.4))
		checkEqual(p, st.SiteName, domain.FieldPM10, st.PM10, math.Floor(aqi*0.8))
		checkRange(p, st.SiteName, domain.FieldO3, st.O3, 20, 80)
		checkRange(p, st.SiteName, domain.FieldCO, st.CO, 0.1, 1.0)
		checkRange(p, st.SiteName, domain.FieldNO2, st.NO2, 5, 40)
		checkRange(p, st.SiteName, domain.FieldSO2, st.SO2, 1, 5)
		if st.Status != domain.SyntheticStatus {
			p.errorf("%s: status %q, want %q", st.SiteName, st.Status, domain.SyntheticStatus)
		}
	}
	return p
}

func checkEqual(p *phase, site string, f domain.Field, r domain.Reading, want float64) {
	if !r.Known {
		p.errorf("%s: %s unknown", site, f)
		return
	}
	if r.Value != want {
		p.errorf("%s: %s = %g, want %g", site, f, r.Value, want)
	}
}

// checkRange allows the upper bound itself, which rounding can reach.
func checkRange(p *phase, site string, f domain.Field, r domain.Reading, lo, hi float64) {
	if !r.Known {
		p.errorf("%s: %s unknown", site, f)
		return
	}
	if r.Value < lo || r.Value > hi {
		p.errorf("%s: %s = %g outside [%g, %g]", site, f, r.Value, lo, hi)
	}
}
