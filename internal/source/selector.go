package source

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

// Selector identifies the observation a caller wants. Site takes precedence
// over Geo, and Geo over County. An empty selector means DefaultCounty.
type Selector struct {
	County string      `json:"county,omitempty"`
	Site   string      `json:"site,omitempty"`
	Geo    *domain.Geo `json:"geo,omitempty"`
}

// Normalize validates the selector against the registry and fills the county
// of a site selector. Unknown counties and sites are not-found errors; out of
// range coordinates are invalid input.
func (s Selector) Normalize() (Selector, error) {
	s.County = domain.NormalizeCounty(s.County)

	switch {
	case s.Site != "":
		county, err := domain.CountyForSite(s.Site)
		if err != nil {
			return Selector{}, err
		}
		if s.County != "" && s.County != county {
			return Selector{}, fmt.Errorf("%w: %q is not in %s", domain.ErrUnknownSite, s.Site, s.County)
		}
		s.County = county
		s.Geo = nil
	case s.Geo != nil:
		if !s.Geo.Valid() {
			return Selector{}, fmt.Errorf("%w: lat=%g lon=%g", domain.ErrInvalidCoordinates, s.Geo.Lat, s.Geo.Lon)
		}
		g := *s.Geo
		s.Geo = &g
		s.County = ""
	default:
		if s.County == "" {
			s.County = domain.DefaultCounty
		}
		if _, err := domain.LookupCounty(s.County); err != nil {
			return Selector{}, err
		}
	}
	return s, nil
}

// Key identifies the selector in the observation cache. Call it on a
// normalized selector.
func (s Selector) Key() string {
	switch {
	case s.Site != "":
		return "site:" + s.Site
	case s.Geo != nil:
		return fmt.Sprintf("geo:%.4f,%.4f", s.Geo.Lat, s.Geo.Lon)
	default:
		return "county:" + s.County
	}
}

// target is where a normalized selector points in the registry.
type target struct {
	loc  domain.Location
	site string
	geo  domain.Geo
}

func (s Selector) target() target {
	switch {
	case s.Site != "":
		loc, _ := domain.LookupCounty(s.County)
		return target{loc: loc, site: s.Site, geo: loc.Centroid}
	case s.Geo != nil:
		return target{loc: nearestCounty(*s.Geo), geo: *s.Geo}
	default:
		loc, _ := domain.LookupCounty(s.County)
		return target{loc: loc, geo: loc.Centroid}
	}
}

func nearestCounty(g domain.Geo) domain.Location {
	counties := domain.Counties()
	return slices.MinFunc(counties, func(a, b domain.Location) int {
		return cmp.Compare(g.DistanceKm(a.Centroid), g.DistanceKm(b.Centroid))
	})
}

// pickStation finds the live station a selector refers to. By site it matches
// the name; by county it takes the lexically first site; by coordinates the
// nearest station.
func pickStation(stations []domain.Observation, s Selector) (domain.Observation, bool) {
	var candidates []domain.Observation
	switch {
	case s.Site != "":
		for _, st := range stations {
			if st.SiteName == s.Site {
				return st, true
			}
		}
		return domain.Observation{}, false
	case s.Geo != nil:
		candidates = stations
	default:
		for _, st := range stations {
			if st.County == s.County {
				candidates = append(candidates, st)
			}
		}
	}
	if len(candidates) == 0 {
		return domain.Observation{}, false
	}

	if s.Geo != nil {
		g := *s.Geo
		return slices.MinFunc(candidates, func(a, b domain.Observation) int {
			return cmp.Compare(g.DistanceKm(a.Geo), g.DistanceKm(b.Geo))
		}), true
	}
	return slices.MinFunc(candidates, func(a, b domain.Observation) int {
		return cmp.Compare(a.SiteName, b.SiteName)
	}), true
}
