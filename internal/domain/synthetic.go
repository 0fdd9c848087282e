package domain

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// SyntheticStatus is the status label carried by generated stations.
const SyntheticStatus = "備援"

// lowBaseCounties draw their base AQI from the cleaner range.
var lowBaseCounties = map[string]bool{"臺北市": true, "新北市": true}

// Generator produces plausible stand-in observations when no live data is
// available. Values vary per call; the field set and ranges do not. A
// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator with a fixed seed, for fixtures and tests.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomGenerator returns a generator seeded from the runtime's entropy.
func NewRandomGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Registry generates one observation for every registered site, in display order.
func (g *Generator) Registry() []Observation {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Observation
	for _, loc := range Counties() {
		base := g.baseAQI(loc.County)
		for _, site := range loc.Sites {
			out = append(out, g.station(loc, site, base))
		}
	}
	return out
}

// Station generates a single observation for one site of loc. An empty site
// name uses the county's first station.
func (g *Generator) Station(loc Location, site string) Observation {
	g.mu.Lock()
	defer g.mu.Unlock()

	if site == "" && len(loc.Sites) > 0 {
		site = loc.Sites[0]
	}
	if loc.Centroid == (Geo{}) {
		loc.Centroid = CentroidFor(loc.County)
	}
	return g.station(loc, site, g.baseAQI(loc.County))
}

func (g *Generator) station(loc Location, site string, base int) Observation {
	aqi := max(AQIFloor, base+g.intRange(-15, 15))
	now := clock.Now()
	return Observation{
		County:      loc.County,
		SiteName:    site,
		AQI:         aqi,
		PM25:        Known(math.Floor(float64(aqi) * 0.4)),
		PM10:        Known(math.Floor(float64(aqi) * 0.8)),
		O3:          Known(float64(g.intRange(20, 80))),
		CO:          Known(round(0.1+g.rng.Float64()*0.9, 2)),
		NO2:         Known(float64(g.intRange(5, 40))),
		SO2:         Known(round(1+g.rng.Float64()*4, 1)),
		Geo:         g.jitter(loc.Centroid),
		Status:      SyntheticStatus,
		PublishedAt: now.In(taipei).Truncate(time.Hour),
		Provenance:  ProvenanceSynthetic,
	}
}

func (g *Generator) baseAQI(county string) int {
	if lowBaseCounties[NormalizeCounty(county)] {
		return g.intRange(20, 60)
	}
	return g.intRange(60, 140)
}

// jitter spreads sites of one county so they do not overlap on a map.
func (g *Generator) jitter(c Geo) Geo {
	return Geo{
		Lat: c.Lat + g.rng.NormFloat64()*0.02,
		Lon: c.Lon + g.rng.NormFloat64()*0.02,
	}
}

// intRange returns a value in [lo, hi).
func (g *Generator) intRange(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
