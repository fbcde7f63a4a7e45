package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/recordsearch/pkg/httputil"
	"github.com/utafrali/recordsearch/pkg/validator"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/index"
	"github.com/utafrali/recordsearch/internal/service"
)

// SearchHandler handles HTTP requests for record search endpoints.
type SearchHandler struct {
	service *service.Service
	indices *index.Manager
	logger  *slog.Logger
}

// NewSearchHandler creates a search HTTP handler.
func NewSearchHandler(svc *service.Service, indices *index.Manager, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		indices: indices,
		logger:  logger,
	}
}

// --- Request DTOs ---

// QueryRecordsRequest is the JSON request body of the query endpoint.
type QueryRecordsRequest struct {
	domain.QueryRequest
	IncludeRawRecord bool `json:"includeRawRecord"`
}

// EnsureIndexRequest is the JSON request body of the index-ensure endpoint.
type EnsureIndexRequest struct {
	EntityName  string `json:"entityName" validate:"required"`
	EntityType  string `json:"entityType"`
	ForceCreate bool   `json:"forceCreate"`
}

// ReindexRequest is the JSON request body of the reindex endpoint.
type ReindexRequest struct {
	EntityName    string `json:"entityName"`
	CutoffMinutes int    `json:"cutoffMinutes" validate:"omitempty,gte=0"`
	PageSize      int    `json:"pageSize" validate:"omitempty,gte=0"`
}

// --- Handlers ---

// Query handles POST /api/v1/query
func (h *SearchHandler) Query(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req QueryRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req.QueryRequest); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.Query(r.Context(), callerFromRequest(r), &req.QueryRequest, service.QueryOptions{
		IncludeRawRecord: req.IncludeRawRecord,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// UpsertRecord handles PUT /api/v1/records
func (h *SearchHandler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var record domain.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := h.service.UpsertRecord(r.Context(), record); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"id": record.StringField("id"), "status": "indexed"},
	})
}

// DeleteRecord handles DELETE /api/v1/records/{entityName}/{id}
func (h *SearchHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	entityName := chi.URLParam(r, "entityName")
	id := chi.URLParam(r, "id")
	entityType := r.URL.Query().Get("entityType")

	if err := h.service.DeleteRecord(r.Context(), entityName, entityType, id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"id": id, "status": "deleted"},
	})
}

// EnsureIndex handles POST /api/v1/indices/ensure
func (h *SearchHandler) EnsureIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req EnsureIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	caller := callerFromRequest(r)
	if err := h.indices.Ensure(r.Context(), caller.SolutionID, req.EntityName, req.EntityType, req.ForceCreate); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"entityName": req.EntityName, "status": "ready"},
	})
}

// Reindex handles POST /api/v1/reindex
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ReindexRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
			})
			return
		}
		if err := validator.Validate(req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	opts := service.ReindexOptions{
		EntityName: req.EntityName,
		PageSize:   req.PageSize,
	}
	if req.CutoffMinutes > 0 {
		opts.Cutoff = time.Now().UTC().Add(-time.Duration(req.CutoffMinutes) * time.Minute)
	}

	counts, err := h.service.Reindex(r.Context(), callerFromRequest(r), opts)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"counts": counts}})
}
