package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/content"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/orphans"
	"github.com/starford/casebook/internal/pipeline"
	"github.com/starford/casebook/internal/resolver"
)

// Reconciler is the engine surface the API drives. *pipeline.Engine
// implements it.
type Reconciler interface {
	SyncCalendar(ctx context.Context, tenantID string, r calendar.DateRange) (pipeline.SyncReport, error)
	LinkOrphanedRecords(ctx context.Context, tenantID string) (orphans.Report, error)
	ProcessBatch(ctx context.Context, tenantID string, items []pipeline.Item) (pipeline.BatchReport, error)
	RecordContent(ctx context.Context, tenantID, recordID string) (content.Content, error)
	ReviewQueue(ctx context.Context, tenantID string) ([]models.Record, error)
	ResolveName(ctx context.Context, tenantID, name string) (resolver.Resolution, error)
	Location() *time.Location
}

var _ Reconciler = (*pipeline.Engine)(nil)

// Handler holds API route handlers.
type Handler struct {
	rec Reconciler
}

// NewHandler creates a new Handler.
func NewHandler(rec Reconciler) *Handler {
	return &Handler{rec: rec}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// SyncCalendar handles POST /api/calendar/sync.
//
//	@Summary		Import calendar events in a date range as sessions
//	@Tags			reconcile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	false	"Date range"
//	@Success		200		{object}	pipeline.SyncReport
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calendar/sync [post]
func (h *Handler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decode(w, r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	dr, err := req.Range(h.rec.Location())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rep, err := h.rec.SyncCalendar(r.Context(), tenantFrom(r.Context()), dr)
	if err != nil {
		writeError(w, "sync calendar", err, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// LinkOrphans handles POST /api/reconcile/orphans.
//
//	@Summary		Retry linking every record that has no session
//	@Tags			reconcile
//	@Produce		json
//	@Success		200	{object}	orphans.Report
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reconcile/orphans [post]
func (h *Handler) LinkOrphans(w http.ResponseWriter, r *http.Request) {
	rep, err := h.rec.LinkOrphanedRecords(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, "link orphans", err, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ProcessBatch handles POST /api/batches.
//
//	@Summary		Ingest a batch of documents
//	@Tags			reconcile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchRequest	true	"Documents"
//	@Success		200		{object}	pipeline.BatchReport
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batches [post]
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decode(w, r, 32<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rep, err := h.rec.ProcessBatch(r.Context(), tenantFrom(r.Context()), req.PipelineItems())
	if err != nil {
		writeError(w, "process batch", err, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ReviewQueue handles GET /api/review.
//
//	@Summary		List records waiting for manual review
//	@Tags			review
//	@Produce		json
//	@Success		200	{object}	ReviewResponse
//	@Security		BearerAuth
//	@Router			/review [get]
func (h *Handler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	recs, err := h.rec.ReviewQueue(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, "review queue", err, nil)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, ReviewResponse{Records: recs, Total: len(recs)})
}

// RecordContent handles GET /api/records/{id}/content.
//
//	@Summary		Recover the stored content of a record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	ContentResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/content [get]
func (h *Handler) RecordContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.rec.RecordContent(r.Context(), tenantFrom(r.Context()), id)
	if err != nil {
		writeError(w, "record content", err, nil)
		return
	}
	resp := ContentResponse{RecordID: id, Available: c.Available, Reason: c.Reason}
	if c.Available {
		resp.Text = string(c.Data)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResolveName handles GET /api/resolve.
//
//	@Summary		Show how a name would resolve, without creating anything
//	@Tags			review
//	@Produce		json
//	@Param			name	query		string	true	"Raw name"
//	@Success		200		{object}	resolver.Resolution
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) ResolveName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	res, err := h.rec.ResolveName(r.Context(), tenantFrom(r.Context()), name)
	if err != nil {
		writeError(w, "resolve name", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
