package control_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voxduct/voxduct/internal/control"
	"github.com/voxduct/voxduct/internal/health"
	"github.com/voxduct/voxduct/internal/observe"
	"github.com/voxduct/voxduct/internal/route"
	"github.com/voxduct/voxduct/pkg/agent"
	"github.com/voxduct/voxduct/pkg/device"
)

// stubController is a scripted RouteController for API tests.
type stubController struct {
	mu         sync.Mutex
	state      route.State
	reason     string
	stats      *route.Stats
	startErr   error
	pauseErr   error
	resumeErr  error
	stopErr    error
	startCalls []route.Config
}

func newStubController() *stubController {
	return &stubController{state: route.StateIdle, stats: &route.Stats{}}
}

func (s *stubController) Start(_ context.Context, cfg route.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls = append(s.startCalls, cfg)
	if s.startErr != nil {
		return s.startErr
	}
	s.state = route.StateLive
	return nil
}

func (s *stubController) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseErr != nil {
		return s.pauseErr
	}
	s.state = route.StatePaused
	return nil
}

func (s *stubController) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resumeErr != nil {
		return s.resumeErr
	}
	s.state = route.StateLive
	return nil
}

func (s *stubController) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopErr != nil {
		return s.stopErr
	}
	s.state = route.StateStopped
	return nil
}

func (s *stubController) State() route.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubController) FailureReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *stubController) Stats() *route.Stats {
	return s.stats
}

func testRouteConfig() route.Config {
	return route.Config{
		Capture:  device.StreamConfig{DeviceID: "mic", SampleRate: 16000, Channels: 1, FramesPerBuffer: 320},
		Playback: device.StreamConfig{DeviceID: "cable-in", SampleRate: 16000, Channels: 2, FramesPerBuffer: 320},
		Agent:    agent.Config{AgentID: "agent-1", APIKey: "key"},
	}
}

func newTestServer(t *testing.T, ctrl control.RouteController) *control.Server {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return control.New(ctrl, testRouteConfig(), m)
}

func doRequest(t *testing.T, srv *control.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func healthChecker(name string, err error) health.Checker {
	return health.Checker{
		Name:  name,
		Check: func(_ context.Context) error { return err },
	}
}

func TestStart_ReturnsLiveState(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "POST", "/api/v1/start")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body)
	}
	body := decodeState(t, rec)
	if body["state"] != "live" {
		t.Errorf("state = %v, want live", body["state"])
	}
	if len(ctrl.startCalls) != 1 {
		t.Fatalf("start calls = %d, want 1", len(ctrl.startCalls))
	}
	if got := ctrl.startCalls[0].Agent.AgentID; got != "agent-1" {
		t.Errorf("agent id = %q, want %q", got, "agent-1")
	}
}

func TestStart_InvalidTransition_Conflict(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.startErr = fmt.Errorf("route: start rejected in state live: %w", route.ErrInvalidTransition)
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "POST", "/api/v1/start")

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	body := decodeState(t, rec)
	if !strings.Contains(body["error"].(string), "rejected") {
		t.Errorf("error = %v, want rejection message", body["error"])
	}
}

func TestStart_InvalidConfig_BadRequest(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.startErr = fmt.Errorf("route: %w: agent id is required", route.ErrInvalidConfig)
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "POST", "/api/v1/start")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStart_RuntimeFailure_BadGateway(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.startErr = errors.New("route: dial agent: connection refused")
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "POST", "/api/v1/start")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestPauseResumeStop_HappyPath(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.state = route.StateLive
	srv := newTestServer(t, ctrl)

	steps := []struct {
		path      string
		wantState string
	}{
		{"/api/v1/pause", "paused"},
		{"/api/v1/resume", "live"},
		{"/api/v1/stop", "stopped"},
	}
	for _, step := range steps {
		rec := doRequest(t, srv, "POST", step.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want %d", step.path, rec.Code, http.StatusOK)
		}
		body := decodeState(t, rec)
		if body["state"] != step.wantState {
			t.Errorf("%s: state = %v, want %s", step.path, body["state"], step.wantState)
		}
	}
}

func TestPause_Rejected_Conflict(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.pauseErr = fmt.Errorf("route: pause rejected in state idle: %w", route.ErrInvalidTransition)
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "POST", "/api/v1/pause")

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestState_ReturnsStatsSnapshot(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.state = route.StateFailed
	ctrl.reason = "capture device stopped"
	ctrl.stats.FramesCaptured.Store(1234)
	ctrl.stats.QueueDepth.Store(5)
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "GET", "/api/v1/state")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		State  string         `json:"state"`
		Reason string         `json:"reason"`
		Stats  route.Snapshot `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.State != "failed" {
		t.Errorf("state = %q, want failed", body.State)
	}
	if body.Reason != "capture device stopped" {
		t.Errorf("reason = %q", body.Reason)
	}
	if body.Stats.FramesCaptured != 1234 {
		t.Errorf("frames captured = %d, want 1234", body.Stats.FramesCaptured)
	}
	if body.Stats.QueueDepth != 5 {
		t.Errorf("queue depth = %d, want 5", body.Stats.QueueDepth)
	}
}

func TestLifecycle_WrongMethod_NotAllowed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newStubController())

	rec := doRequest(t, srv, "GET", "/api/v1/start")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHealthz_OK(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newStubController())

	rec := doRequest(t, srv, "GET", "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyz_FailedRoute_Unavailable(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	ctrl.state = route.StateFailed
	ctrl.reason = "agent session closed"
	srv := newTestServer(t, ctrl)

	rec := doRequest(t, srv, "GET", "/readyz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeState(t, rec)
	checks := body["checks"].(map[string]any)
	if checks["route"] != "fail: agent session closed" {
		t.Errorf("route check = %v", checks["route"])
	}
}

func TestReadyz_ExtraCheckers(t *testing.T) {
	t.Parallel()
	ctrl := newStubController()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	srv := control.New(ctrl, testRouteConfig(), m,
		control.WithCheckers(healthChecker("cable", errors.New("not found"))),
	)

	rec := doRequest(t, srv, "GET", "/readyz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeState(t, rec)
	checks := body["checks"].(map[string]any)
	if checks["route"] != "ok" {
		t.Errorf("route check = %v, want ok", checks["route"])
	}
	if checks["cable"] != "fail: not found" {
		t.Errorf("cable check = %v", checks["cable"])
	}
}

func TestMetrics_Served(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newStubController())

	rec := doRequest(t, srv, "GET", "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() == 0 {
		t.Error("metrics body is empty")
	}
}

func TestMiddleware_SetsCorrelationHeader(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newStubController())

	rec := doRequest(t, srv, "GET", "/api/v1/state")

	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestListenAndServe_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newStubController())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
