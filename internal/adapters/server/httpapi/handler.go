// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/opportune/internal/adapters/server/common"
	"github.com/hylla/opportune/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Actor headers attached to every mutation.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorType = "X-Actor-Type"
)

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	svc common.OpportunityService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the opportunity service.
func NewHandler(svc common.OpportunityService) *Handler {
	return &Handler{svc: svc}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "opportunity service is not configured",
		})
		return
	}
	ctx, err := common.WithActor(r.Context(), r.Header.Get(HeaderActorID), r.Header.Get(HeaderActorType))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	r = r.WithContext(ctx)

	parts := strings.Split(normalizePath(r.URL.Path), "/")
	switch {
	case len(parts) == 1 && parts[0] == "opportunities":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[0] == "opportunities" && parts[1] != "":
		switch r.Method {
		case http.MethodGet:
			opp, err := h.svc.GetOpportunity(r.Context(), parts[1])
			respond(w, http.StatusOK, opp, err)
		case http.MethodDelete:
			if err := h.svc.DeleteOpportunity(r.Context(), parts[1]); err != nil {
				writeErrorFrom(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 3 && parts[0] == "opportunities" && parts[1] != "":
		h.handleOpportunityAction(w, r, parts[1], parts[2])
	case len(parts) == 2 && parts[0] == "dashboard" && parts[1] != "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		dashboard, err := h.svc.Dashboard(r.Context(), parts[1])
		respond(w, http.StatusOK, dashboard, err)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleOpportunityAction serves `/opportunities/{id}/{action}`.
func (h *Handler) handleOpportunityAction(w http.ResponseWriter, r *http.Request, id, action string) {
	switch action {
	case "history", "matching-criteria":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		if action == "history" {
			history, err := h.svc.OpportunityHistory(r.Context(), id)
			respond(w, http.StatusOK, history, err)
			return
		}
		criteria, err := h.svc.MatchingCriteria(r.Context(), id)
		respond(w, http.StatusOK, criteria, err)
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	ctx := r.Context()
	var (
		opp    domain.Opportunity
		err    error
		status = http.StatusOK
	)
	switch action {
	case "problem-statement":
		var req common.ProblemStatementRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.AttachProblemStatement(ctx, id, req)
		}
	case "skills":
		var req common.SkillRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.AddSkillRequirement(ctx, id, req)
		}
	case "timeline":
		var req common.TimelineRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.SetTimelineRequirement(ctx, id, req)
		}
	case "updates":
		var req common.UpdateRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.UpdateOpportunity(ctx, id, req)
		}
	case "cancel":
		var req common.CancelRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.CancelOpportunity(ctx, id, req)
		}
	case "clone":
		var req common.CloneRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.CloneOpportunity(ctx, id, req)
			status = http.StatusCreated
		}
	case "architect":
		var req common.ArchitectRequest
		if err = decodeJSONBody(ctx, w, r, &req); err == nil {
			opp, err = h.svc.SelectArchitect(ctx, id, req)
		}
	case "submit":
		if err = decodeOptionalJSONBody(ctx, w, r, &struct{}{}); err == nil {
			opp, err = h.svc.SubmitOpportunity(ctx, id)
		}
	case "reactivate":
		if err = decodeOptionalJSONBody(ctx, w, r, &struct{}{}); err == nil {
			opp, err = h.svc.ReactivateOpportunity(ctx, id)
		}
	case "matching":
		if err = decodeOptionalJSONBody(ctx, w, r, &struct{}{}); err == nil {
			opp, err = h.svc.StartMatching(ctx, id)
		}
	case "matches":
		if err = decodeOptionalJSONBody(ctx, w, r, &struct{}{}); err == nil {
			opp, err = h.svc.RecordMatchesFound(ctx, id)
		}
	case "complete":
		if err = decodeOptionalJSONBody(ctx, w, r, &struct{}{}); err == nil {
			opp, err = h.svc.CompleteOpportunity(ctx, id)
		}
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	respond(w, status, opp, err)
}

// handleList serves GET `/opportunities`.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := common.ListRequest{
		Query:          strings.TrimSpace(q.Get("q")),
		Statuses:       q["status"],
		Priorities:     q["priority"],
		SalesManagerID: strings.TrimSpace(q.Get("sales_manager_id")),
		CustomerID:     strings.TrimSpace(q.Get("customer_id")),
		Filter:         strings.TrimSpace(q.Get("filter")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: fmt.Sprintf("limit must be a non-negative integer, got %q", raw),
			})
			return
		}
		req.Limit = limit
	}
	items, err := h.svc.ListOpportunities(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if items == nil {
		items = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// handleCreate serves POST `/opportunities`.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req common.CreateOpportunityRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	opp, err := h.svc.CreateOpportunity(r.Context(), req)
	respond(w, http.StatusCreated, opp, err)
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, status, payload)
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		apiErr := APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		}
		if violations := domain.Violations(err); len(violations) > 0 {
			apiErr.Context = map[string]any{"violations": violations}
		}
		writeJSONError(w, http.StatusBadRequest, apiErr)
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrExpired):
		writeJSONError(w, http.StatusGone, APIError{
			Code:    "reactivation_expired",
			Message: err.Error(),
			Hint:    "Clone the opportunity to start over.",
		})
	case errors.Is(err, common.ErrNotAllowed):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "not_allowed",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
			Hint:    "Reload the opportunity and retry.",
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
