package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// tenantID is used for requests that carry no X-Tenant-ID header.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(rec Reconciler, tenantID string, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(rec)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(TenantMiddleware(tenantID))

	// Reconciliation runs.
	r.Post("/calendar/sync", h.SyncCalendar)
	r.Post("/reconcile/orphans", h.LinkOrphans)
	r.Post("/batches", h.ProcessBatch)

	// Read side.
	r.Get("/review", h.ReviewQueue)
	r.Get("/records/{id}/content", h.RecordContent)
	r.Get("/resolve", h.ResolveName)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
