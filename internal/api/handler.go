package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/ingest"
	"github.com/mrh-2003/aml-system/internal/report"
	"github.com/mrh-2003/aml-system/internal/repository"
	"github.com/mrh-2003/aml-system/internal/rules"
	"github.com/mrh-2003/aml-system/internal/scope"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scope     *scope.Service
	reports   *report.Service
	loader    *ingest.Loader
	engine    *rules.Engine
	detection domain.DetectionConfig
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, scopeSvc *scope.Service, reports *report.Service, loader *ingest.Loader, engine *rules.Engine, detection domain.DetectionConfig, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		scope:     scopeSvc,
		reports:   reports,
		loader:    loader,
		engine:    engine,
		detection: detection,
		version:   version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateLoad handles POST /loads: a multipart upload with a "file" workbook
// part and a "code" field. The whole file loads or none of it does.
func (h *Handler) CreateLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}

	code := r.FormValue("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	id, res, err := h.loader.Load(ctx, code, file, nil)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMissingColumns), errors.Is(err, ingest.ErrEmptyWorkbook):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrDuplicate):
			writeError(w, http.StatusConflict, err.Error())
		default:
			slog.Error("load failed", "code", code, "error", err)
			writeError(w, http.StatusInternalServerError, "load failed")
		}
		return
	}

	slog.Info("load completed", "code", code, "rows", len(res.Rows), "skipped", res.Skipped)
	writeJSON(w, http.StatusCreated, map[string]any{
		"loadId":  id,
		"code":    code,
		"rows":    len(res.Rows),
		"skipped": res.Skipped,
	})
}

// ListLoads handles GET /loads.
func (h *Handler) ListLoads(w http.ResponseWriter, r *http.Request) {
	loads, err := h.repo.ListLoads(r.Context())
	if err != nil {
		slog.Error("failed to list loads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list loads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loads": loads,
		"count": len(loads),
	})
}

// ListClients handles GET /clients, optionally scoped to one load with
// ?load={code}.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var clients []string
	var err error
	if code := r.URL.Query().Get("load"); code != "" {
		clients, err = h.repo.ListClientsByLoad(ctx, code)
	} else {
		clients, err = h.repo.ListClients(ctx)
	}
	if err != nil {
		slog.Error("failed to list clients", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list clients")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clients": clients,
		"count":   len(clients),
	})
}

// CreateCaseRequest is the request body for POST /cases. Members come from
// an explicit list, a load code, or both.
type CreateCaseRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MemberIDs   []string `json:"memberIds,omitempty"`
	LoadCode    string   `json:"loadCode,omitempty"`
}

// CreateCase handles POST /cases.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	members := req.MemberIDs
	if req.LoadCode != "" {
		loadClients, err := h.repo.ListClientsByLoad(ctx, req.LoadCode)
		if err != nil {
			slog.Error("failed to resolve load members", "load", req.LoadCode, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to resolve load members")
			return
		}
		members = append(members, loadClients...)
	}

	c := &domain.Case{Name: req.Name, Description: req.Description}
	if _, err := h.repo.CreateCase(ctx, c, members); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Error("failed to create case", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create case")
		return
	}

	h.publish(ctx, domain.TopicCaseCreated, map[string]any{"reference": c.Name, "caseId": c.ID})
	slog.Info("case created", "id", c.ID, "name", c.Name, "members", len(members))
	writeJSON(w, http.StatusCreated, c)
}

// ListCases handles GET /cases.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.repo.ListCases(r.Context())
	if err != nil {
		slog.Error("failed to list cases", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cases")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// GetCase handles GET /cases/{id}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	c, err := h.repo.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		slog.Error("failed to get case", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCase handles DELETE /cases/{id}.
func (h *Handler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	c, err := h.repo.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		slog.Error("failed to get case", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete case")
		return
	}

	if err := h.repo.DeleteCase(ctx, caseID); err != nil {
		slog.Error("failed to delete case", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete case")
		return
	}

	if h.scope != nil {
		_ = h.scope.Invalidate(ctx, caseID)
	}
	h.publish(ctx, domain.TopicCaseDeleted, map[string]any{"reference": c.Name, "caseId": caseID})
	slog.Info("case deleted", "id", caseID, "name", c.Name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "case deleted"})
}

// AddMembersRequest is the request body for POST /cases/{id}/members.
type AddMembersRequest struct {
	MemberIDs []string `json:"memberIds"`
}

// AddCaseMembers handles POST /cases/{id}/members.
func (h *Handler) AddCaseMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.MemberIDs) == 0 {
		writeError(w, http.StatusBadRequest, "memberIds is required")
		return
	}

	if err := h.repo.AddCaseMembers(ctx, caseID, req.MemberIDs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		slog.Error("failed to add members", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add members")
		return
	}

	// Scoped reads for this case are stale now.
	if h.scope != nil {
		_ = h.scope.Invalidate(ctx, caseID)
	}

	members, err := h.repo.ListCaseMembers(ctx, caseID)
	if err != nil {
		slog.Error("failed to list members", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// ListCaseMembers handles GET /cases/{id}/members.
func (h *Handler) ListCaseMembers(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	members, err := h.repo.ListCaseMembers(r.Context(), caseID)
	if err != nil {
		slog.Error("failed to list members", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// MarkReportRequest is the request body for POST /cases/{id}/report-marks.
type MarkReportRequest struct {
	Detector string          `json:"detector"`
	Config   json.RawMessage `json:"config,omitempty"`
	Include  *bool           `json:"include,omitempty"`
}

// MarkReport handles POST /cases/{id}/report-marks.
func (h *Handler) MarkReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var req MarkReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Detector == "" {
		writeError(w, http.StatusBadRequest, "detector is required")
		return
	}

	include := true
	if req.Include != nil {
		include = *req.Include
	}

	ref, err := h.reports.Mark(ctx, caseID, req.Detector, req.Config, include)
	if err != nil {
		if errors.Is(err, report.ErrUnknownDetector) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to mark report", "id", caseID, "detector", req.Detector, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark report")
		return
	}

	writeJSON(w, http.StatusCreated, ref)
}

// ListReportMarks handles GET /cases/{id}/report-marks.
func (h *Handler) ListReportMarks(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	includeOnly := r.URL.Query().Get("includeOnly") == "true"
	refs, err := h.reports.Refs(r.Context(), caseID, includeOnly)
	if err != nil {
		slog.Error("failed to list report marks", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list report marks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marks": refs,
		"count": len(refs),
	})
}

// GenerateReport handles POST /cases/{id}/report; the response body is the
// executive PDF.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}

	pdf, err := h.reports.GeneratePDF(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		slog.Error("failed to generate report", "id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="informe.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRule handles POST /rules: validates the CEL expression and loads it
// into the running engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if rule.Name == "" || rule.Expression == "" {
		writeError(w, http.StatusBadRequest, "name and expression are required")
		return
	}

	if err := h.engine.Load(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule expression: "+err.Error())
		return
	}

	slog.Info("rule loaded", "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid case id")
		return 0, false
	}
	return id, true
}

// publish is fire-and-forget; handler paths never fail on bus errors.
func (h *Handler) publish(ctx context.Context, topic string, payload map[string]any) {
	if h.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	_ = h.bus.Publish(ctx, topic, data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
