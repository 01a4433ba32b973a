package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxduct/voxduct/internal/route"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestHealthz_ContentType(t *testing.T) {
	h := New()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	h := New(
		Checker{Name: "agent", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "devices", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks["agent"] != "ok" {
		t.Errorf("agent check = %q, want %q", body.Checks["agent"], "ok")
	}
	if body.Checks["devices"] != "ok" {
		t.Errorf("devices check = %q, want %q", body.Checks["devices"], "ok")
	}
}

func TestReadyz_CheckerFails(t *testing.T) {
	h := New(
		Checker{Name: "agent", Check: func(_ context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "devices", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["agent"] != "fail: connection refused" {
		t.Errorf("agent check = %q, want %q", body.Checks["agent"], "fail: connection refused")
	}
	if body.Checks["devices"] != "ok" {
		t.Errorf("devices check = %q, want %q", body.Checks["devices"], "ok")
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_AllCheckersFail(t *testing.T) {
	h := New(
		Checker{Name: "agent", Check: func(_ context.Context) error {
			return errors.New("timeout")
		}},
		Checker{Name: "devices", Check: func(_ context.Context) error {
			return errors.New("virtual cable not found")
		}},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["agent"] != "fail: timeout" {
		t.Errorf("agent check = %q", body.Checks["agent"])
	}
	if body.Checks["devices"] != "fail: virtual cable not found" {
		t.Errorf("devices check = %q", body.Checks["devices"])
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

type fakeReporter struct {
	state  route.State
	reason string
}

func (f fakeReporter) State() route.State    { return f.state }
func (f fakeReporter) FailureReason() string { return f.reason }

func TestRouteChecker_ReadyStates(t *testing.T) {
	states := []route.State{
		route.StateIdle,
		route.StateConnecting,
		route.StateLive,
		route.StatePaused,
		route.StateStopped,
	}
	for _, s := range states {
		t.Run(s.String(), func(t *testing.T) {
			c := RouteChecker(fakeReporter{state: s})
			if err := c.Check(context.Background()); err != nil {
				t.Errorf("Check() = %v, want nil", err)
			}
		})
	}
}

func TestRouteChecker_FailedState(t *testing.T) {
	c := RouteChecker(fakeReporter{state: route.StateFailed, reason: "capture device stopped"})
	err := c.Check(context.Background())
	if err == nil {
		t.Fatal("Check() = nil, want error")
	}
	if err.Error() != "capture device stopped" {
		t.Errorf("Check() = %q, want failure reason", err.Error())
	}
	if c.Name != "route" {
		t.Errorf("Name = %q, want %q", c.Name, "route")
	}
}

func TestRouteChecker_FailedStateNoReason(t *testing.T) {
	c := RouteChecker(fakeReporter{state: route.StateFailed})
	err := c.Check(context.Background())
	if err == nil {
		t.Fatal("Check() = nil, want error")
	}
}

func TestReadyz_RouteCheckerIntegration(t *testing.T) {
	h := New(RouteChecker(fakeReporter{state: route.StateFailed, reason: "agent session closed"}))

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Checks["route"] != "fail: agent session closed" {
		t.Errorf("route check = %q", body.Checks["route"])
	}
}
