// Package server exposes the aggregated energy views over HTTP JSON,
// the shape the web dashboard consumes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	gorilla "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Mouaidnasab/dair-home/internal/api"
	"github.com/Mouaidnasab/dair-home/internal/config"
	"github.com/Mouaidnasab/dair-home/internal/models"
	"github.com/Mouaidnasab/dair-home/internal/poller"
	"github.com/Mouaidnasab/dair-home/internal/server/middlewares"
	"github.com/Mouaidnasab/dair-home/internal/service"
)

// EnergyService is the aggregation core as consumed by the transport.
type EnergyService interface {
	GetDashboard(ctx context.Context) (*models.Dashboard, error)
	GetTrends(ctx context.Context, day string) (*models.TrendsSeries, error)
	GetHomeSeries(ctx context.Context, day string) ([]models.TimeSeriesPoint, error)
	GetInverterSeries(ctx context.Context, label, day string) ([]models.TimeSeriesPoint, error)
	GetGridOutages(ctx context.Context, day string) (*models.OutageReport, error)
	GetConsumption(ctx context.Context) (*models.ConsumptionBreakdown, error)
	ConsumptionBreakdown(snap models.PowerSnapshot) models.ConsumptionBreakdown
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Server routes dashboard requests to the aggregation service.
type Server struct {
	svc EnergyService
	log *logrus.Logger
}

// Setup builds the full handler chain: request ID, rate limiting,
// logging, metrics, then the router, wrapped in panic recovery and
// CORS for the browser client.
func Setup(svc EnergyService, cfg config.ServerConfig, log *logrus.Logger) http.Handler {
	registerMetrics()

	s := &Server{svc: svc, log: log}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	energy := r.PathPrefix("/api/energy").Subrouter()
	energy.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	energy.HandleFunc("/trends", s.handleTrends).Methods(http.MethodGet)
	energy.HandleFunc("/series/home", s.handleHomeSeries).Methods(http.MethodGet)
	energy.HandleFunc("/series/{label}", s.handleInverterSeries).Methods(http.MethodGet)
	energy.HandleFunc("/outages", s.handleOutages).Methods(http.MethodGet)
	energy.HandleFunc("/consumption", s.handleConsumption).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = middlewares.Metrics(handler)
	handler = middlewares.Logging(log)(handler)
	handler = middlewares.RateLimit(cfg.RateLimit, cfg.RateLimitBurst)(handler)
	handler = middlewares.RequestID(handler)
	handler = gorilla.RecoveryHandler()(handler)
	handler = gorilla.CORS(
		gorilla.AllowedOrigins([]string{"*"}),
		gorilla.AllowedMethods([]string{http.MethodGet}),
	)(handler)
	return handler
}

// registerMetrics tolerates duplicate registration so tests can build
// multiple handler chains in one process.
func registerMetrics() {
	for _, c := range []prometheus.Collector{
		middlewares.Requests,
		middlewares.Latency,
		poller.Polls,
	} {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.svc.GetDashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := s.svc.GetTrends(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trends)
}

func (s *Server) handleHomeSeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.svc.GetHomeSeries(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleInverterSeries(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	series, err := s.svc.GetInverterSeries(r.Context(), label, r.URL.Query().Get("day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleOutages(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.GetGridOutages(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleConsumption serves the live breakdown, or a pure computation
// over an explicit snapshot when ?load= is supplied.
func (s *Server) handleConsumption(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("load") {
		snap, err := snapshotFromQuery(q.Get("solar"), q.Get("load"), q.Get("battery"), q.Get("grid"))
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		breakdown := s.svc.ConsumptionBreakdown(snap)
		s.writeJSON(w, http.StatusOK, breakdown)
		return
	}

	breakdown, err := s.svc.GetConsumption(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, breakdown)
}

func snapshotFromQuery(solar, load, battery, grid string) (models.PowerSnapshot, error) {
	var snap models.PowerSnapshot
	var err error
	parse := func(s string) (float64, error) {
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	if snap.SolarW, err = parse(solar); err != nil {
		return snap, errors.New("invalid solar value")
	}
	if snap.LoadW, err = parse(load); err != nil {
		return snap, errors.New("invalid load value")
	}
	if snap.BatteryW, err = parse(battery); err != nil {
		return snap, errors.New("invalid battery value")
	}
	if snap.GridW, err = parse(grid); err != nil {
		return snap, errors.New("invalid grid value")
	}
	return snap, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDay), errors.Is(err, service.ErrUnknownInverter):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrNotReady):
		// First pass still running at startup; the client retries.
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Retryable: true})
	case errors.Is(err, api.ErrSourceUnavailable):
		// Retryable: the client keeps its last-known-good view visible.
		s.writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Retryable: true})
	default:
		s.log.WithFields(logrus.Fields{
			"request_id": middlewares.RequestIDFrom(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}
