package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/auth"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/orchestrator"
)

const (
	codeBadRequest = "PLANNER_BAD_REQUEST"
	codeNotFound   = "PLANNER_NOT_FOUND"
	codeUpstream   = "PLANNER_UPSTREAM_FAULT"
	codeInternal   = "PLANNER_INTERNAL"

	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

type Options struct {
	// Verifier guards mutating routes; nil disables auth.
	Verifier       *auth.Verifier
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	Logger         logrus.FieldLogger
}

type Server struct {
	svc  *orchestrator.Service
	opts Options
}

func New(svc *orchestrator.Service, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 * 1024
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Server{svc: svc, opts: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/providers", s.handleProviders)

	r.Route("/plans", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.opts.Verifier))
			r.Post("/", s.handleCreatePlan)
			r.Post("/{key}/refine", s.handleRefinePlan)
		})
		r.Get("/", s.handleRecentPlans)
		r.Get("/{key}", s.handleGetPlan)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ready(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	caps, err := s.svc.Providers(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"providers": caps})
}

// planRequest is the wire form of models.ResourceRequest; the timeline travels
// as hours.
type planRequest struct {
	ResourceType  string             `json:"resourceType"`
	Requirements  map[string]float64 `json:"requirements"`
	Region        string             `json:"region"`
	Compliance    []string           `json:"compliance"`
	Budget        *float64           `json:"budget"`
	TimelineHours *float64           `json:"timelineHours"`
}

func (p planRequest) toModel() (models.ResourceRequest, error) {
	req := models.ResourceRequest{
		ResourceType: models.ResourceType(p.ResourceType),
		Requirements: p.Requirements,
		Region:       p.Region,
		Compliance:   p.Compliance,
		Budget:       p.Budget,
	}
	if p.TimelineHours != nil {
		h := *p.TimelineHours
		if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 || h > math.MaxInt64/float64(time.Hour) {
			return models.ResourceRequest{}, &models.ValidationError{Field: "timelineHours", Msg: "must be a finite non-negative number of hours"}
		}
		d := time.Duration(h * float64(time.Hour))
		req.Timeline = &d
	}
	if err := req.Validate(); err != nil {
		return models.ResourceRequest{}, err
	}
	return req, nil
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var body planRequest
	if err := decodeJSON(w, r, &body, s.opts.MaxBodyBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	req, err := body.toModel()
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	res, err := s.svc.Plan(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRefinePlan(w http.ResponseWriter, r *http.Request) {
	key, err := models.ParseContextKey(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	res, err := s.svc.RefineStored(r.Context(), key)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	key, err := models.ParseContextKey(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	rec, err := s.svc.Get(r.Context(), key)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.StoredPlan{Key: key, Record: rec})
}

func (s *Server) handleRecentPlans(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	plans, err := s.svc.Recent(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *models.ValidationError
		fault *models.CollaboratorFault
	)
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, codeBadRequest, verr.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "plan not found")
	case errors.As(err, &fault):
		s.opts.Logger.WithFields(logrus.Fields{
			"request_id":   middleware.GetReqID(r.Context()),
			"collaborator": fault.Collaborator,
		}).WithError(fault.Err).Error("[httpserver] collaborator fault")
		respondError(w, http.StatusBadGateway, codeUpstream, fault.Error())
	default:
		s.opts.Logger.WithField("request_id", middleware.GetReqID(r.Context())).
			WithError(err).Error("[httpserver] unexpected error")
		respondError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}).Debug("[httpserver] request")
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
