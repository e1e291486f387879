// Package api exposes the dialogue engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	contractx "github.com/cobsystems/careflow/agent/contract"
	"github.com/cobsystems/careflow/pkg/metrics"
)

// Engine is the dialogue surface the API depends on.
type Engine interface {
	ProcessMessage(ctx context.Context, sessionID, text string) (reply string, escalated bool, err error)
	ResetSession(ctx context.Context, sessionID string) error
}

type Server struct {
	engine Engine
	router chi.Router
}

func NewServer(engine Engine) *Server {
	s := &Server{engine: engine}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Delete("/sessions/{id}", s.handleResetSession)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type messageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Escalated bool   `json:"escalated"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reply, escalated, err := s.engine.ProcessMessage(r.Context(), req.SessionID, req.Text)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// The reply is still user-safe; surface it with the fault logged.
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("turn completed with operational fault")
	}
	if reply == "" {
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		SessionID: req.SessionID,
		Reply:     reply,
		Escalated: escalated,
	})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	if err := s.engine.ResetSession(r.Context(), id); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("session reset failed")
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// instrument records per-route request durations.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		metrics.RequestDuration.
			WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
