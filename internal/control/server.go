// Package control exposes the HTTP control surface for the audio route:
// lifecycle operations under /api/v1, a state and counter inspection
// endpoint, health probes, and the Prometheus metrics endpoint.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxduct/voxduct/internal/health"
	"github.com/voxduct/voxduct/internal/observe"
	"github.com/voxduct/voxduct/internal/route"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// RouteController is the subset of [route.Controller] the API drives.
type RouteController interface {
	Start(ctx context.Context, cfg route.Config) error
	Pause() error
	Resume() error
	Stop() error
	State() route.State
	FailureReason() string
	Stats() *route.Stats
}

// Server serves the control API. It is an [http.Handler]; use
// [Server.ListenAndServe] to run it standalone.
type Server struct {
	ctrl        RouteController
	routeCfg    route.Config
	extraChecks []health.Checker
	handler     http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithCheckers adds readiness checkers beyond the built-in route check.
func WithCheckers(checkers ...health.Checker) Option {
	return func(s *Server) {
		s.extraChecks = append(s.extraChecks, checkers...)
	}
}

// New builds a Server driving ctrl with the fixed route configuration
// routeCfg. Every /api/v1/start call starts the route with routeCfg;
// runtime reconfiguration goes through the config file, not the API.
func New(ctrl RouteController, routeCfg route.Config, metrics *observe.Metrics, opts ...Option) *Server {
	s := &Server{
		ctrl:     ctrl,
		routeCfg: routeCfg,
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/start", s.handleStart)
	mux.HandleFunc("POST /api/v1/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/stop", s.handleStop)
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.Handle("GET /metrics", promhttp.Handler())
	checkers := append([]health.Checker{health.RouteChecker(ctrl)}, s.extraChecks...)
	health.New(checkers...).Register(mux)

	s.handler = observe.Middleware(metrics)(mux)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves the control API on addr until ctx is cancelled,
// then drains in-flight requests and returns.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("control: shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control: serve: %w", err)
	}
}

// stateResponse is the JSON body of GET /api/v1/state and of successful
// lifecycle operations.
type stateResponse struct {
	State  string         `json:"state"`
	Reason string         `json:"reason,omitempty"`
	Stats  route.Snapshot `json:"stats"`
}

// errorResponse is the JSON body of failed lifecycle operations.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, func() error { return s.ctrl.Start(r.Context(), s.routeCfg) })
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.lifecycle(w, s.ctrl.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.lifecycle(w, s.ctrl.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.lifecycle(w, s.ctrl.Stop)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentState())
}

// lifecycle runs op and writes the resulting state, mapping rejected
// transitions to 409, configuration errors to 400, and runtime failures
// to 502.
func (s *Server) lifecycle(w http.ResponseWriter, op func() error) {
	if err := op(); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, route.ErrInvalidTransition):
			status = http.StatusConflict
		case errors.Is(err, route.ErrInvalidConfig):
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) currentState() stateResponse {
	return stateResponse{
		State:  s.ctrl.State().String(),
		Reason: s.ctrl.FailureReason(),
		Stats:  s.ctrl.Stats().Snapshot(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
