package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/air-quality-dashboard/internal/dashboard"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

var errBadRequest = errors.New("bad request")

// Profile is the health profile shared by assess, dashboard and report requests.
type Profile struct {
	Conditions []string `json:"conditions" validate:"dive,required"`
	Activity   string   `json:"activity"`
}

func (p Profile) parse() ([]domain.Condition, domain.Activity, error) {
	conds := make([]domain.Condition, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		cond, err := domain.ParseCondition(c)
		if err != nil {
			return nil, "", err
		}
		conds = append(conds, cond)
	}
	activity, err := domain.ParseActivity(p.Activity)
	if err != nil {
		return nil, "", err
	}
	return conds, activity, nil
}

// Scenario holds the forecast options shared by forecast and dashboard requests.
type Scenario struct {
	PastHours   int      `json:"past_hours" validate:"omitempty,oneof=6 12"`
	FutureHours int      `json:"future_hours" validate:"omitempty,oneof=6 8 12"`
	Bounds      bool     `json:"bounds"`
	Stable      bool     `json:"stable"`
	Traffic     *float64 `json:"traffic" validate:"omitempty,gte=0,lte=1"`
	Industry    *float64 `json:"industry" validate:"omitempty,gte=0,lte=1"`
}

// policy returns nil unless either intensity was given.
func (s Scenario) policy() *domain.PolicyIntensity {
	if s.Traffic == nil && s.Industry == nil {
		return nil
	}
	var p domain.PolicyIntensity
	if s.Traffic != nil {
		p.Traffic = *s.Traffic
	}
	if s.Industry != nil {
		p.Industry = *s.Industry
	}
	return &p
}

type assessRequest struct {
	AQI *int `json:"aqi" validate:"required,gte=0"`
	Profile
}

type forecastRequest struct {
	Current *int    `json:"current" validate:"required,gte=0"`
	Lat     float64 `json:"lat" validate:"latitude"`
	Lon     float64 `json:"lon" validate:"longitude"`
	Scenario
}

type dashboardRequest struct {
	County string   `json:"county"`
	Site   string   `json:"site"`
	Lat    *float64 `json:"lat" validate:"required_with=Lon,omitempty,latitude"`
	Lon    *float64 `json:"lon" validate:"required_with=Lat,omitempty,longitude"`
	Profile
	Scenario
}

func (d dashboardRequest) selector() source.Selector {
	sel := source.Selector{County: d.County, Site: d.Site}
	if d.Lat != nil && d.Lon != nil {
		sel.Geo = &domain.Geo{Lat: *d.Lat, Lon: *d.Lon}
	}
	return sel
}

type stationResponse struct {
	domain.Observation
	MapStatus domain.MapStatus `json:"map_status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"counties": s.svc.Locations(r.Context())})
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations := s.svc.Stations(r.Context())
	out := make([]stationResponse, len(stations))
	for i, st := range stations {
		out[i] = stationResponse{Observation: st, MapStatus: domain.StatusForAQI(st.AQI)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": out})
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sel := source.Selector{County: q.Get("county"), Site: q.Get("site")}

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr != "" || lonStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lon, errLon := strconv.ParseFloat(lonStr, 64)
		if errLat != nil || errLon != nil {
			s.writeError(w, r, fmt.Errorf("%w: lat and lon must both be numbers", errBadRequest))
			return
		}
		sel.Geo = &domain.Geo{Lat: lat, Lon: lon}
	}

	obs, err := s.svc.Observe(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	conds, activity, err := req.parse()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.svc.Assess(*req.AQI, conds, activity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fc, err := s.svc.Forecast(domain.ForecastRequest{
		Current:     *req.Current,
		Geo:         domain.Geo{Lat: req.Lat, Lon: req.Lon},
		PastHours:   req.PastHours,
		FutureHours: req.FutureHours,
		Bounds:      req.Bounds,
		Stable:      req.Stable,
		Policy:      req.policy(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.render(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.render(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, reportFilename(snap)))
	w.WriteHeader(http.StatusOK)
	if err := writeReport(w, snap); err != nil {
		s.logger.Error("report render failed", "snapshot_id", snap.ID, "error", err)
	}
}

// render decodes a dashboard request and runs one render cycle. It writes the
// error response itself and returns false on failure.
func (s *Server) render(w http.ResponseWriter, r *http.Request) (dashboard.Snapshot, bool) {
	var req dashboardRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return dashboard.Snapshot{}, false
	}
	conds, activity, err := req.parse()
	if err != nil {
		s.writeError(w, r, err)
		return dashboard.Snapshot{}, false
	}
	snap, err := s.svc.Render(r.Context(), dashboard.Request{
		Selector:    req.selector(),
		Conditions:  conds,
		Activity:    activity,
		PastHours:   req.PastHours,
		FutureHours: req.FutureHours,
		Bounds:      req.Bounds,
		Stable:      req.Stable,
		Policy:      req.policy(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return dashboard.Snapshot{}, false
	}
	return snap, true
}

// decode reads a JSON body into v and validates it. An empty body decodes as {}.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), domain.IsInvalidInput(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	}

	msg := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		}
		msg = "invalid request: " + strings.Join(fields, "; ")
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client disconnects are not actionable
}
