// Package api exposes the HTTP surface: reading ingestion, alert
// management, simulator control and operational endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LuizPaulo1002/neuramaint/internal/alert"
	"github.com/LuizPaulo1002/neuramaint/internal/ingest"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/predict"
	"github.com/LuizPaulo1002/neuramaint/internal/sim"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	ingestor  *ingest.Ingestor
	lifecycle *alert.Lifecycle
	generator *sim.Generator
	predictor *predict.Client
	logger    *slog.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(ingestor *ingest.Ingestor, lifecycle *alert.Lifecycle, generator *sim.Generator, predictor *predict.Client, logger *slog.Logger) *Server {
	return &Server{
		ingestor:  ingestor,
		lifecycle: lifecycle,
		generator: generator,
		predictor: predictor,
		logger:    logger,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/readings", s.handleCreateReading)

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", s.handleCreateAlert)
			r.Get("/active", s.handleListActive)
			r.Get("/history", s.handleListHistory)
			r.Get("/stats", s.handleAlertStats)
			r.Put("/{id}/resolve", s.handleResolve)
			r.Put("/{id}/cancel", s.handleCancel)
		})

		r.Route("/predictions/cache", func(r chi.Router) {
			r.Get("/stats", s.handleCacheStats)
			r.Post("/clear", s.handleCacheClear)
		})

		r.Route("/simulator", func(r chi.Router) {
			r.Post("/start", s.handleSimStart)
			r.Post("/stop", s.handleSimStop)
			r.Post("/reset", s.handleSimReset)
			r.Put("/config", s.handleSimConfig)
			r.Get("/status", s.handleSimStatus)
			r.Get("/stats", s.handleSimStats)
			r.Post("/sensors/{id}/failure", s.handleSimForceFailure)
			r.Post("/sensors/{id}/generate", s.handleSimGenerateOne)
		})
	})

	return r
}

// requestLogger logs each request with the structured logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// caller extracts the opaque identity resolved by the external auth layer.
func caller(r *http.Request) model.Caller {
	return model.Caller{
		ID:   r.Header.Get("X-User-Id"),
		Role: model.Role(r.Header.Get("X-User-Role")),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	predictionUp := s.predictor.IsHealthy(r.Context())
	status := http.StatusOK
	writeJSON(w, status, map[string]interface{}{
		"status":             "ok",
		"prediction_service": predictionUp,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, s.logger, model.NewValidationError("body", "failed to read request body"))
		return
	}

	reading, err := s.ingestor.CreateReadingJSON(r.Context(), payload)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

type createAlertRequest struct {
	Type        model.AlertType `json:"type"`
	Severity    model.Severity  `json:"severity"`
	Message     string          `json:"message"`
	EquipmentID int64           `json:"equipmentId"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, model.NewValidationError("body", "payload is not valid JSON"))
		return
	}

	a, err := s.lifecycle.CreateManual(r.Context(), req.Type, req.Severity, req.Message, req.EquipmentID, caller(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	equipmentID, err := queryInt64(r, "equipmentId")
	if err != nil {
		writeError(w, s.logger, model.NewValidationError("equipmentId", "must be an integer"))
		return
	}
	severity := model.Severity(r.URL.Query().Get("severity"))

	alerts, err := s.lifecycle.ListActive(r.Context(), caller(r), equipmentID, severity)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := alert.HistoryQuery{}

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, s.logger, model.NewValidationError("from", "must be a valid RFC 3339 instant"))
			return
		}
		q.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, s.logger, model.NewValidationError("to", "must be a valid RFC 3339 instant"))
			return
		}
		q.To = t
	}

	var err error
	if q.EquipmentID, err = queryInt64(r, "equipmentId"); err != nil {
		writeError(w, s.logger, model.NewValidationError("equipmentId", "must be an integer"))
		return
	}
	q.Page = queryInt(r, "page", 1)
	q.PageSize = queryInt(r, "pageSize", 0)

	alerts, err := s.lifecycle.ListHistory(r.Context(), caller(r), q)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)

	stats, err := s.lifecycle.Statistics(r.Context(), caller(r), days)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, model.NewValidationError("body", "payload is not valid JSON"))
		return
	}

	a, err := s.lifecycle.Resolve(r.Context(), chi.URLParam(r, "id"), req.Note, caller(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	a, err := s.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.predictor.CacheStats(r.Context()))
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if caller(r).Role != model.RoleAdmin {
		writeError(w, s.logger, model.NewForbiddenError("only admins may clear the cache"))
		return
	}
	s.predictor.ClearCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type simStartRequest struct {
	Interval           string   `json:"interval,omitempty"`
	FailureProbability *float64 `json:"failureProbability,omitempty"`
	NoiseLevel         *float64 `json:"noiseLevel,omitempty"`
}

func (s *Server) handleSimStart(w http.ResponseWriter, r *http.Request) {
	var req simStartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.logger, model.NewValidationError("body", "payload is not valid JSON"))
			return
		}
	}

	cfg := sim.DefaultConfig()
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, s.logger, model.NewValidationError("interval", "must be a valid duration"))
			return
		}
		cfg.Interval = d
	}
	if req.FailureProbability != nil {
		cfg.FailureProbability = *req.FailureProbability
	}
	if req.NoiseLevel != nil {
		cfg.NoiseLevel = *req.NoiseLevel
	}

	if err := s.generator.Start(r.Context(), cfg); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleSimStop(w http.ResponseWriter, r *http.Request) {
	s.generator.Stop()
	writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleSimReset(w http.ResponseWriter, r *http.Request) {
	s.generator.ResetAll()
	writeJSON(w, http.StatusOK, s.generator.Status())
}

type simConfigRequest struct {
	Interval           *string  `json:"interval,omitempty"`
	FailureProbability *float64 `json:"failureProbability,omitempty"`
	NoiseLevel         *float64 `json:"noiseLevel,omitempty"`
	FailureDuration    *string  `json:"failureDuration,omitempty"`
}

func (s *Server) handleSimConfig(w http.ResponseWriter, r *http.Request) {
	var req simConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, model.NewValidationError("body", "payload is not valid JSON"))
		return
	}

	patch := sim.ConfigPatch{
		FailureProbability: req.FailureProbability,
		NoiseLevel:         req.NoiseLevel,
	}
	if req.Interval != nil {
		d, err := time.ParseDuration(*req.Interval)
		if err != nil {
			writeError(w, s.logger, model.NewValidationError("interval", "must be a valid duration"))
			return
		}
		patch.Interval = &d
	}
	if req.FailureDuration != nil {
		d, err := time.ParseDuration(*req.FailureDuration)
		if err != nil {
			writeError(w, s.logger, model.NewValidationError("failureDuration", "must be a valid duration"))
			return
		}
		patch.FailureDuration = &d
	}

	if err := s.generator.UpdateConfig(r.Context(), patch); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleSimStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleSimStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.generator.Statistics())
}

func (s *Server) handleSimForceFailure(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, model.NewValidationError("id", "must be an integer"))
		return
	}
	if err := s.generator.ForceFailure(id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "failure forced"})
}

func (s *Server) handleSimGenerateOne(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, model.NewValidationError("id", "must be an integer"))
		return
	}
	reading, err := s.generator.GenerateOne(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error to an HTTP status and a JSON body
// identifying the problem.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *model.DomainError
	if !errors.As(err, &de) {
		logger.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch de.Kind {
	case model.KindValidation:
		status = http.StatusBadRequest
	case model.KindForbidden:
		status = http.StatusForbidden
	case model.KindNotFound:
		status = http.StatusNotFound
	case model.KindInvalidState:
		status = http.StatusConflict
	case model.KindExternal:
		status = http.StatusBadGateway
	}

	body := map[string]string{"error": de.Message, "kind": string(de.Kind)}
	if de.Field != "" {
		body["field"] = de.Field
	}
	writeJSON(w, status, body)
}
