package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/ezhuthu/internal/resilience"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func ready(t *testing.T, h *Handler, ctx context.Context) (*httptest.ResponseRecorder, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)
	return rec, decode(t, rec)
}

func ok(context.Context) error { return nil }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "database", Check: func(context.Context) error { return errors.New("down") }})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decode(t, rec); body.Status != StatusOK {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	failing := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "database", Check: ok},
				{Name: "augmenter", Check: ok, Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"database": "ok", "augmenter": "ok"},
		},
		{
			name: "optional fails",
			checkers: []Checker{
				{Name: "database", Check: ok},
				{Name: "augmenter", Check: failing("breaker open"), Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"database": "ok", "augmenter": "fail: breaker open"},
		},
		{
			name: "required fails",
			checkers: []Checker{
				{Name: "database", Check: failing("connection refused")},
				{Name: "augmenter", Check: ok, Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"database": "fail: connection refused", "augmenter": "ok"},
		},
		{
			name: "both fail",
			checkers: []Checker{
				{Name: "database", Check: failing("timeout")},
				{Name: "augmenter", Check: failing("breaker open"), Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"database": "fail: timeout", "augmenter": "fail: breaker open"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, body := ready(t, New(tt.checkers...), context.Background())
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("checks[%s] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, _ := ready(t, h, ctx)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "test", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestDatabase(t *testing.T) {
	t.Parallel()

	c := Database(pinger{})
	if c.Optional {
		t.Error("database check must be required")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("healthy ping: %v", err)
	}

	down := errors.New("dial tcp: refused")
	if err := Database(pinger{err: down}).Check(context.Background()); !errors.Is(err, down) {
		t.Errorf("err = %v, want wrapped %v", err, down)
	}
}

type breakers struct {
	healthy bool
	states  map[string]resilience.State
}

func (b breakers) Healthy() bool                             { return b.healthy }
func (b breakers) BreakerStates() map[string]resilience.State { return b.states }

func TestAugmenter(t *testing.T) {
	t.Parallel()

	c := Augmenter(breakers{healthy: true})
	if !c.Optional {
		t.Error("augmenter check must be optional")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("healthy: %v", err)
	}

	err := Augmenter(breakers{states: map[string]resilience.State{
		"openai": resilience.StateOpen,
		"ollama": resilience.StateOpen,
	}}).Check(context.Background())
	if !errors.Is(err, ErrAllBreakersOpen) {
		t.Fatalf("err = %v, want ErrAllBreakersOpen", err)
	}
	if !strings.Contains(err.Error(), "ollama=open, openai=open") {
		t.Errorf("err = %q, want sorted breaker list", err)
	}
}
