package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/opportune/internal/adapters/server/common"
	"github.com/hylla/opportune/internal/adapters/storage/memory"
	"github.com/hylla/opportune/internal/app"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newService(pingErr error) common.OpportunityService {
	svc := app.NewService(memory.New(), nil, nil, func() string { return "opp-1" }, time.Now, app.ServiceConfig{})
	return common.NewAppServiceAdapter(svc, stubPinger{err: pingErr}, nil)
}

func TestNewHandlerRoutes(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, Dependencies{Service: newService(nil)})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	cases := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz", want: http.StatusOK},
		{path: "/api/v1/opportunities", want: http.StatusOK},
		{path: "/api/v1/opportunities/missing", want: http.StatusNotFound},
	}
	for _, tt := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Fatalf("GET %s status = %d, want %d (%s)", tt.path, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestReadyzReportsUnavailableStore(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{Service: newService(errors.New("locked"))})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unavailable") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestDisableMCPLeavesEndpointUnrouted(t *testing.T) {
	handler, _, err := NewHandler(Config{DisableMCP: true}, Dependencies{Service: newService(nil)})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestNewHandlerValidation(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected missing service error")
	}
	if _, _, err := NewHandler(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}, Dependencies{Service: newService(nil)}); err == nil {
		t.Fatal("expected endpoint collision error")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":         "/api/v1",
		"/":        "/api/v1",
		"api/v2/":  "/api/v2",
		" /rest ":  "/rest",
		"//a//b//": "/a//b",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, "/api/v1"); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0", ShutdownTimeout: time.Second}, Dependencies{Service: newService(nil)})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
