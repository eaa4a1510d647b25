package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/opportune/internal/adapters/server/common"
	"github.com/hylla/opportune/internal/adapters/storage/memory"
	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

type handlerFixture struct {
	handler *Handler
	now     *time.Time
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("opp-%d", n)
	}
	clock := func() time.Time { return now }
	svc := app.NewService(memory.New(), nil, nil, ids, clock, app.ServiceConfig{})
	return handlerFixture{
		handler: NewHandler(common.NewAppServiceAdapter(svc, nil, clock)),
		now:     &now,
	}
}

func (f handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set(HeaderActorID, "sm-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

const createBody = `{
	"title": "Cloud Migration",
	"customer": {"id": "cust-1", "name": "Acme"},
	"sales_manager_id": "sm-1",
	"description": "Move billing to the cloud",
	"priority": "high",
	"annual_recurring_revenue": 250000,
	"geo": {"region_id": "eu", "region_name": "Europe", "allows_remote_work": true}
}`

func (f handlerFixture) createSubmittable(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/opportunities", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	id := decodeBody[domain.Opportunity](t, rec).ID
	steps := []struct{ path, body string }{
		{"/opportunities/" + id + "/problem-statement", fmt.Sprintf(`{"content": %q}`, strings.Repeat("legacy billing platform ", 8))},
		{"/opportunities/" + id + "/skills", `{"skill_id":"aws","skill_name":"AWS","type":"technical","importance":"must_have","minimum_proficiency":"expert"}`},
		{"/opportunities/" + id + "/timeline", `{"start":"2026-04-01","end":"2026-09-01"}`},
	}
	for _, step := range steps {
		if rec := f.do(t, http.MethodPost, step.path, step.body); rec.Code != http.StatusOK {
			t.Fatalf("POST %s status = %d body=%s", step.path, rec.Code, rec.Body.String())
		}
	}
	return id
}

func TestHandlerLifecycleFlow(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSubmittable(t)

	for _, action := range []string{"submit", "matching", "matches"} {
		if rec := f.do(t, http.MethodPost, "/opportunities/"+id+"/"+action, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d body=%s", action, rec.Code, rec.Body.String())
		}
	}
	rec := f.do(t, http.MethodPost, "/opportunities/"+id+"/architect", `{"architect_id":"arch-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("architect status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.Opportunity](t, rec); got.SelectedArchitectID != "arch-9" || got.Status != domain.StatusArchitectSelected {
		t.Fatalf("unexpected opportunity %#v", got)
	}
	rec = f.do(t, http.MethodPost, "/opportunities/"+id+"/complete", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/opportunities/"+id+"/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	history := decodeBody[app.History](t, rec)
	if len(history.Status) != 6 || history.Status[5].Status != domain.StatusCompleted {
		t.Fatalf("unexpected history %#v", history.Status)
	}

	rec = f.do(t, http.MethodGet, "/opportunities/"+id+"/matching-criteria", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("matching-criteria status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.MatchingCriteria](t, rec); got.MinimumMatchScore != 70 {
		t.Fatalf("expected high priority minimum score 70, got %v", got.MinimumMatchScore)
	}
}

func TestHandlerSubmitReportsAllViolations(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/opportunities", createBody)
	id := decodeBody[domain.Opportunity](t, rec).ID

	rec = f.do(t, http.MethodPost, "/opportunities/"+id+"/submit", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeBody[ErrorEnvelope](t, rec)
	if env.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
	violations, ok := env.Error.Context["violations"].([]any)
	if !ok || len(violations) < 3 {
		t.Fatalf("expected violations in context, got %#v", env.Error.Context)
	}
}

func TestHandlerCancelReactivateAndExpiry(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSubmittable(t)
	f.do(t, http.MethodPost, "/opportunities/"+id+"/submit", "")

	rec := f.do(t, http.MethodPost, "/opportunities/"+id+"/cancel", `{"reason":"budget frozen"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.Opportunity](t, rec); got.ReactivationDeadline == nil {
		t.Fatal("expected reactivation deadline")
	}
	rec = f.do(t, http.MethodPost, "/opportunities/"+id+"/reactivate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate status = %d", rec.Code)
	}
	if got := decodeBody[domain.Opportunity](t, rec); got.Status != domain.StatusSubmitted {
		t.Fatalf("expected previous status restored, got %s", got.Status)
	}

	f.do(t, http.MethodPost, "/opportunities/"+id+"/cancel", `{"reason":"again"}`)
	*f.now = f.now.Add(domain.ReactivationWindow + time.Minute)
	rec = f.do(t, http.MethodPost, "/opportunities/"+id+"/reactivate", "")
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
	if env := decodeBody[ErrorEnvelope](t, rec); env.Error.Code != "reactivation_expired" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestHandlerUpdateNeedsReasonAfterDraft(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSubmittable(t)
	f.do(t, http.MethodPost, "/opportunities/"+id+"/submit", "")

	rec := f.do(t, http.MethodPost, "/opportunities/"+id+"/updates", `{"priority":"critical"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/opportunities/"+id+"/updates", `{"priority":"critical","reason":"exec escalation"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.Opportunity](t, rec); got.Priority != domain.PriorityCritical || len(got.Changes) == 0 {
		t.Fatalf("unexpected update result %#v", got)
	}
}

func TestHandlerListCloneDeleteAndDashboard(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSubmittable(t)

	rec := f.do(t, http.MethodPost, "/opportunities/"+id+"/clone", `{"customer":{"id":"cust-2","name":"Globex"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("clone status = %d body=%s", rec.Code, rec.Body.String())
	}
	cloneID := decodeBody[domain.Opportunity](t, rec).ID

	rec = f.do(t, http.MethodGet, "/opportunities?q=globex&status=draft", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decodeBody[struct {
		Items []domain.Opportunity `json:"items"`
	}](t, rec)
	if len(list.Items) != 1 || list.Items[0].ID != cloneID {
		t.Fatalf("unexpected list %#v", list.Items)
	}

	rec = f.do(t, http.MethodGet, "/dashboard/sm-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	if got := decodeBody[app.Dashboard](t, rec); got.Total != 2 {
		t.Fatalf("expected 2 opportunities on dashboard, got %d", got.Total)
	}

	if rec := f.do(t, http.MethodDelete, "/opportunities/"+cloneID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/opportunities/"+cloneID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	f := newHandlerFixture(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown field", method: http.MethodPost, path: "/opportunities", body: `{"titel":"x"}`, want: http.StatusBadRequest},
		{name: "trailing content", method: http.MethodPost, path: "/opportunities", body: createBody + `{}`, want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/opportunities?limit=-2", want: http.StatusBadRequest},
		{name: "bad status", method: http.MethodGet, path: "/opportunities?status=archived", want: http.StatusBadRequest},
		{name: "method", method: http.MethodPut, path: "/opportunities", want: http.StatusMethodNotAllowed},
		{name: "unknown action", method: http.MethodPost, path: "/opportunities/opp-1/archive", want: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/projects", want: http.StatusNotFound},
		{name: "missing", method: http.MethodGet, path: "/opportunities/nope", want: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.do(t, tc.method, tc.path, tc.body); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandlerActorHeaders(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/opportunities", strings.NewReader(createBody))
	req.Header.Set(HeaderActorID, "bot")
	req.Header.Set(HeaderActorType, "robot")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown actor type", rec.Code)
	}
}

// stubService fails every call with one configured error.
type stubService struct {
	common.OpportunityService
	err error
}

func (s stubService) GetOpportunity(context.Context, string) (domain.Opportunity, error) {
	return domain.Opportunity{}, s.err
}

func TestWriteErrorFromMapsSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{err: common.ErrConflict, want: http.StatusConflict, code: "conflict"},
		{err: common.ErrNotAllowed, want: http.StatusConflict, code: "not_allowed"},
		{err: common.ErrUnavailable, want: http.StatusServiceUnavailable, code: "service_unavailable"},
		{err: errors.New("boom"), want: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range tests {
		h := NewHandler(stubService{err: tc.err})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/opportunities/x", nil))
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
		if env := decodeBody[ErrorEnvelope](t, rec); env.Error.Code != tc.code {
			t.Fatalf("%v: code = %q, want %q", tc.err, env.Error.Code, tc.code)
		}
	}
}
