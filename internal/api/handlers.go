package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrwolf/geolocator/internal/config"
	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/locator"
	"github.com/mrwolf/geolocator/internal/models"
	"github.com/mrwolf/geolocator/internal/report"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HealthChecker reports whether the vision model is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ModelMonitor exposes the result of the background model health check
type ModelMonitor interface {
	ModelHealthy() bool
}

type Handlers struct {
	cfg     *config.Config
	db      *db.DB
	reports *report.Writer
	locator *locator.Locator
	model   HealthChecker
	monitor ModelMonitor
	logger  *zap.Logger
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:       "ok",
		Model:        h.checkModel(r.Context()),
		ModelMonitor: h.monitorStatus(),
		Database:     h.checkDatabase(),
		Reports:      h.checkReports(),
		Version:      models.Version,
	}
	if resp.Model != "connected" || resp.Database != "ok" {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkModel(ctx context.Context) string {
	if h.model == nil {
		return "not configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.model.HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) monitorStatus() string {
	if h.monitor == nil {
		return ""
	}
	if h.monitor.ModelHealthy() {
		return "healthy"
	}
	return "unhealthy"
}

func (h *Handlers) checkDatabase() string {
	if err := h.db.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func (h *Handlers) checkReports() string {
	if h.reports == nil {
		return "disabled"
	}
	info, err := os.Stat(h.reports.BasePath())
	if err != nil {
		return "error: " + err.Error()
	}
	if !info.IsDir() {
		return "error: not a directory"
	}
	return "writable"
}

// Analyze handles POST /analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.cfg.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large", "IMAGE_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form", "INVALID_FORM")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image field is required", "MISSING_IMAGE")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading image failed", "INVALID_FORM")
		return
	}
	if int64(len(image)) > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large", "IMAGE_TOO_LARGE")
		return
	}

	actor := GetActor(r)
	res, err := h.locator.Locate(r.Context(), image, header.Header.Get("Content-Type"))
	if err != nil {
		h.writeLocateError(w, err, actor)
		return
	}

	rec := recordFromResult("ana_"+uuid.NewString(), actor, h.cfg.RuleSet, res)
	if err := h.db.SaveAnalysis(rec); err != nil {
		h.logger.Error("saving analysis", zap.String("actor", actor), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save analysis", "STORAGE_ERROR")
		return
	}

	resp := fromRecord(rec)
	resp.Cached = res.Cached
	resp.Report = h.archive(rec)

	h.logger.Info("analysis completed",
		zap.String("id", rec.ID),
		zap.String("actor", actor),
		zap.Int("confidence_raw", rec.ConfidenceRaw),
		zap.Int("confidence", rec.Confidence),
		zap.Bool("valid", rec.IsValid),
		zap.Bool("cached", res.Cached))

	writeJSON(w, http.StatusOK, resp)
}

// archive writes the Markdown report and audit line. Failures are logged only.
func (h *Handlers) archive(rec *db.AnalysisRecord) string {
	if h.reports == nil {
		return ""
	}
	a := reportFromRecord(rec)
	path, err := h.reports.WriteReport(a)
	if err != nil {
		h.logger.Warn("writing report", zap.String("id", rec.ID), zap.Error(err))
	}
	if err := h.reports.LogAnalysis(report.NewLogEntry(a, report.StatusCompleted, path)); err != nil {
		h.logger.Warn("logging analysis", zap.String("id", rec.ID), zap.Error(err))
	}
	return path
}

func (h *Handlers) writeLocateError(w http.ResponseWriter, err error, actor string) {
	switch {
	case errors.Is(err, locator.ErrEmptyImage):
		writeError(w, http.StatusBadRequest, "image is empty", "EMPTY_IMAGE")
	case errors.Is(err, locator.ErrUnsupportedImage):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_IMAGE")
	case errors.Is(err, locator.ErrUnusableReply):
		writeError(w, http.StatusUnprocessableEntity, locator.ErrUnusableReply.Error(), "UNUSABLE_REPLY")
	case errors.Is(err, locator.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "model unavailable, try again later", "MODEL_UNAVAILABLE")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "analysis timed out", "TIMEOUT")
	case errors.Is(err, context.Canceled):
		h.logger.Info("analysis cancelled by client", zap.String("actor", actor))
	default:
		h.logger.Error("analysis failed", zap.String("actor", actor), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed", "INTERNAL")
	}
}

// Validate handles POST /validate
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if req.Reply == "" {
		writeError(w, http.StatusBadRequest, "reply is required", "MISSING_REPLY")
		return
	}

	res, err := h.locator.Evaluate(req.Reply)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "UNUSABLE_REPLY")
		return
	}

	writeJSON(w, http.StatusOK, fromResult(res, h.cfg.RuleSet))
}

// ListAnalyses handles GET /analyses
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_LIMIT")
			return
		}
		limit = min(n, maxListLimit)
	}

	var since *time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339", "INVALID_SINCE")
			return
		}
		since = &t
	}

	records, err := h.db.ListAnalyses(actor, since, limit)
	if err != nil {
		h.logger.Error("listing analyses", zap.String("actor", actor), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list analyses", "STORAGE_ERROR")
		return
	}
	total, err := h.db.CountAnalyses(actor)
	if err != nil {
		h.logger.Error("counting analyses", zap.String("actor", actor), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list analyses", "STORAGE_ERROR")
		return
	}

	resp := models.AnalysesResponse{Analyses: make([]models.Analysis, 0, len(records)), Total: total}
	for i := range records {
		resp.Analyses = append(resp.Analyses, fromRecord(&records[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAnalysis handles GET /analyses/{id}
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)
	id := chi.URLParam(r, "id")

	rec, err := h.db.GetAnalysis(actor, id)
	if err != nil {
		h.logger.Error("getting analysis", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load analysis", "STORAGE_ERROR")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "analysis not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, fromRecord(rec))
}

// DeleteAnalysis handles DELETE /analyses/{id}
func (h *Handlers) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	actor := GetActor(r)
	id := chi.URLParam(r, "id")

	deleted, err := h.db.DeleteAnalysis(actor, id)
	if err != nil {
		h.logger.Error("deleting analysis", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete analysis", "STORAGE_ERROR")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "analysis not found", "NOT_FOUND")
		return
	}

	if h.reports != nil {
		entry := report.LogEntry{
			ID:     id,
			TS:     time.Now().UTC().Format(time.RFC3339),
			Actor:  actor,
			Status: report.StatusDeleted,
		}
		if err := h.reports.LogAnalysis(entry); err != nil {
			h.logger.Warn("logging deletion", zap.String("id", id), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, models.DeleteResponse{ID: id, Status: "deleted"})
}
