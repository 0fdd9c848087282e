// Package httpadapter exposes the dashboard over HTTP: the JSON API under
// /api/v1, a plain-text report download, and health, readiness and metrics.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/air-quality-dashboard/internal/dashboard"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

// Dashboard is the application surface the API serves.
// It is implemented by dashboard.Service.
type Dashboard interface {
	sharedobs.ReadinessChecker
	Render(ctx context.Context, req dashboard.Request) (dashboard.Snapshot, error)
	Observe(ctx context.Context, sel source.Selector) (domain.Observation, error)
	Assess(aqi int, conds []domain.Condition, activity domain.Activity) (domain.Assessment, error)
	Forecast(req domain.ForecastRequest) (domain.Forecast, error)
	Stations(ctx context.Context) []domain.Observation
	Locations(ctx context.Context) []domain.Location
}

// Server exposes the dashboard API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        Dashboard
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API routes and /healthz, /readyz, /metrics.
func NewServer(addr string, svc Dashboard, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:      svc,
		validate: newValidator(),
		logger:   logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(svc))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/locations", s.handleLocations)
		r.Get("/stations", s.handleStations)
		r.Get("/observation", s.handleObservation)
		r.Post("/assess", s.handleAssess)
		r.Post("/forecast", s.handleForecast)
		r.Post("/dashboard", s.handleDashboard)
		r.Post("/report", s.handleReport)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
