package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// DefaultCounty is preselected when the caller does not name a county.
const DefaultCounty = "臺中市"

// earthRadiusKm is the mean Earth radius used for nearest-station lookups.
const earthRadiusKm = 6371.0

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the pair lies within [-90,90] x [-180,180].
func (g Geo) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180 &&
		!math.IsNaN(g.Lat) && !math.IsNaN(g.Lon)
}

// DistanceKm returns the great-circle distance between two points.
func (g Geo) DistanceKm(o Geo) float64 {
	lat1, lat2 := g.Lat*math.Pi/180, o.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLon := (o.Lon - g.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Location is one county with its nominal centroid and monitoring stations.
type Location struct {
	County   string   `json:"county"`
	Centroid Geo      `json:"centroid"`
	Sites    []string `json:"sites"`
}

// HasSite reports whether site is one of the county's stations.
func (l Location) HasSite(site string) bool {
	return slices.Contains(l.Sites, site)
}

// CountyOrder is the display order: north to south, then the outlying islands.
var CountyOrder = []string{
	"基隆市", "臺北市", "新北市", "桃園市", "新竹市", "新竹縣", "苗栗縣", "臺中市",
	"彰化縣", "南投縣", "雲林縣", "嘉義市", "嘉義縣", "臺南市", "高雄市", "屏東縣",
	"宜蘭縣", "花蓮縣", "臺東縣", "澎湖縣", "金門縣", "連江縣",
}

var registry = map[string]Location{
	"基隆市": {County: "基隆市", Centroid: Geo{25.13, 121.74}, Sites: []string{"基隆"}},
	"臺北市": {County: "臺北市", Centroid: Geo{25.04, 121.56}, Sites: []string{"士林", "中山", "萬華", "古亭", "松山"}},
	"新北市": {County: "新北市", Centroid: Geo{25.01, 121.46}, Sites: []string{"板橋", "土城", "新店", "汐止", "林口"}},
	"桃園市": {County: "桃園市", Centroid: Geo{24.99, 121.30}, Sites: []string{"桃園", "中壢"}},
	"新竹市": {County: "新竹市", Centroid: Geo{24.80, 120.96}, Sites: []string{"新竹"}},
	"新竹縣": {County: "新竹縣", Centroid: Geo{24.84, 121.01}, Sites: []string{"竹東"}},
	"苗栗縣": {County: "苗栗縣", Centroid: Geo{24.56, 120.82}, Sites: []string{"苗栗"}},
	"臺中市": {County: "臺中市", Centroid: Geo{24.15, 120.66}, Sites: []string{"西屯", "忠明", "大里"}},
	"彰化縣": {County: "彰化縣", Centroid: Geo{24.08, 120.54}, Sites: []string{"彰化"}},
	"南投縣": {County: "南投縣", Centroid: Geo{23.97, 120.68}, Sites: []string{"南投"}},
	"雲林縣": {County: "雲林縣", Centroid: Geo{23.70, 120.43}, Sites: []string{"斗六"}},
	"嘉義市": {County: "嘉義市", Centroid: Geo{23.48, 120.45}, Sites: []string{"嘉義"}},
	"嘉義縣": {County: "嘉義縣", Centroid: Geo{23.45, 120.25}, Sites: []string{"朴子"}},
	"臺南市": {County: "臺南市", Centroid: Geo{23.00, 120.20}, Sites: []string{"臺南", "安南"}},
	"高雄市": {County: "高雄市", Centroid: Geo{22.62, 120.31}, Sites: []string{"左營", "前金", "小港"}},
	"屏東縣": {County: "屏東縣", Centroid: Geo{22.66, 120.48}, Sites: []string{"屏東"}},
	"宜蘭縣": {County: "宜蘭縣", Centroid: Geo{24.75, 121.75}, Sites: []string{"宜蘭"}},
	"花蓮縣": {County: "花蓮縣", Centroid: Geo{23.99, 121.60}, Sites: []string{"花蓮"}},
	"臺東縣": {County: "臺東縣", Centroid: Geo{22.75, 121.14}, Sites: []string{"臺東"}},
	"澎湖縣": {County: "澎湖縣", Centroid: Geo{23.57, 119.56}, Sites: []string{"馬公"}},
	"金門縣": {County: "金門縣", Centroid: Geo{24.43, 118.31}, Sites: []string{"金門"}},
	"連江縣": {County: "連江縣", Centroid: Geo{26.15, 119.93}, Sites: []string{"馬祖"}},
}

// fallbackCentroid is used for counties that appear in live data but not in the registry.
var fallbackCentroid = Geo{Lat: 24, Lon: 121}

// NormalizeCounty rewrites the variant 台 to the official 臺 and trims whitespace.
func NormalizeCounty(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "台", "臺")
}

// Counties returns every registered location in display order.
func Counties() []Location {
	out := make([]Location, 0, len(CountyOrder))
	for _, name := range CountyOrder {
		out = append(out, cloneLocation(registry[name]))
	}
	return out
}

// LookupCounty finds a registered county, accepting either 台 or 臺.
func LookupCounty(name string) (Location, error) {
	loc, ok := registry[NormalizeCounty(name)]
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrUnknownCounty, name)
	}
	return cloneLocation(loc), nil
}

// CentroidFor returns the registered centroid or the island-wide fallback.
func CentroidFor(county string) Geo {
	if loc, ok := registry[NormalizeCounty(county)]; ok {
		return loc.Centroid
	}
	return fallbackCentroid
}

// CountyForSite returns the county that owns a registered site.
func CountyForSite(site string) (string, error) {
	for _, name := range CountyOrder {
		if registry[name].HasSite(site) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSite, site)
}

// SortCounties orders names by CountyOrder; unregistered names go last in
// their original relative order.
func SortCounties(names []string) []string {
	out := slices.Clone(names)
	slices.SortStableFunc(out, func(a, b string) int {
		return countyRank(a) - countyRank(b)
	})
	return out
}

func countyRank(name string) int {
	if i := slices.Index(CountyOrder, NormalizeCounty(name)); i >= 0 {
		return i
	}
	return len(CountyOrder)
}

func cloneLocation(l Location) Location {
	l.Sites = slices.Clone(l.Sites)
	return l
}
