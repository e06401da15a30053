// Package api exposes the rate procedures over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gorates/internal"
	"gorates/internal/errors"
	"gorates/ports"
)

// maxBodyBytes bounds a request body, batches included
const maxBodyBytes = 4 << 20

// Server routes JSON requests to a ports.RateAnalyzer
type Server struct {
	analyzer ports.RateAnalyzer
	logger   *internal.Logger
	router   *chi.Mux
}

// NewServer creates a server with its middleware and routes installed
func NewServer(analyzer ports.RateAnalyzer, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		analyzer: analyzer,
		logger:   logger.With("api"),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		// Single rate
		r.Post("/poisson/confint", route(s, s.analyzer.ConfintPoisson))
		r.Post("/poisson/test", route(s, s.analyzer.TestPoisson))

		// Two independent rates
		r.Post("/poisson2/test", route(s, s.analyzer.TestPoisson2Indep))
		r.Post("/poisson2/etest", route(s, s.analyzer.EtestPoisson2Indep))
		r.Post("/poisson2/tost", route(s, s.analyzer.TostPoisson2Indep))
		r.Post("/poisson2/confint", route(s, s.analyzer.ConfintPoisson2Indep))

		// Study design
		r.Post("/power/ratio", route(s, s.analyzer.PowerRatio))
		r.Post("/power/equivalence", route(s, s.analyzer.PowerEquivalence))
		r.Post("/power/diff", route(s, s.analyzer.PowerDiff))

		r.Post("/dispersion", route(s, s.analyzer.EstimateDispersion))
		r.Post("/batch", route(s, s.analyzer.Batch))
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// route adapts an analyzer method to an HTTP handler that decodes Req
// from the body and encodes the response or the mapped error.
func route[Req any, Resp any](s *Server, fn func(context.Context, Req) (*Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			s.writeError(w, r, errors.InvalidInput(fmt.Sprintf("invalid request body: %v", err)))
			return
		}

		resp, err := fn(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := errors.FromDomain(err)
	status := errors.HTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	s.writeJSON(w, status, ports.ErrorBody{Code: appErr.Code, Message: appErr.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response: %v", err)
	}
}
