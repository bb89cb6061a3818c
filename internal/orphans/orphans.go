// Package orphans sweeps records that have no session and retries linking
// them against the current session set.
package orphans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/linker"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/snapshot"
)

// ClientDeleted is the detail outcome for records whose client was deleted.
// Such records are left untouched.
const ClientDeleted linker.Outcome = "client_deleted"

// Failed is the detail outcome for a record whose link attempt errored.
const Failed linker.Outcome = "failed"

// Detail is the sweep result for one record.
type Detail struct {
	linker.Result
	ClientID string `json:"client_id,omitempty"`
}

// Report summarises a sweep.
type Report struct {
	Linked  int      `json:"linked"`
	Details []Detail `json:"details"`
}

// Store lists orphans and persists link decisions.
type Store interface {
	linker.Writer
	ListUnlinkedRecords(ctx context.Context, tenantID string) ([]models.Record, error)
}

// Reconciler re-applies the linker to every unlinked record of a tenant.
type Reconciler struct {
	store  Store
	linker *linker.Linker
	logger *slog.Logger
}

// New creates a Reconciler.
func New(store Store, l *linker.Linker, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, linker: l, logger: logger}
}

// Sweep links what it can. Linked records are never listed, so repeated sweeps
// only shrink the unlinked set. A systemic error stops the sweep and is
// returned with the partial report; any other per-record error is recorded in
// the record's detail.
func (r *Reconciler) Sweep(ctx context.Context, snap *snapshot.Snapshot) (Report, error) {
	records, err := r.store.ListUnlinkedRecords(ctx, snap.TenantID)
	if err != nil {
		return Report{}, fmt.Errorf("orphans: list: %w", err)
	}

	rep := Report{Details: make([]Detail, 0, len(records))}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return rep, apperr.Systemic("orphans: sweep", err)
		}

		d := Detail{ClientID: rec.ClientID}
		if rec.ClientID != "" {
			if c, ok := snap.Clients.Client(rec.ClientID); ok && c.Deleted() {
				d.Result = linker.Result{RecordID: rec.ID, Match: linker.Match{Outcome: ClientDeleted, Reason: "client deleted"}}
				rep.Details = append(rep.Details, d)
				continue
			}
		}

		res, err := r.linker.Link(ctx, rec, rec.ClientID, snap)
		if err != nil {
			if errors.Is(err, apperr.ErrSystemic) {
				return rep, fmt.Errorf("orphans: %w", err)
			}
			r.logger.Warn("orphans: link failed",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()))
			res = linker.Result{RecordID: rec.ID, Match: linker.Match{Outcome: Failed, Reason: err.Error()}}
		}
		d.Result = res
		if res.Outcome.Linked() {
			rep.Linked++
		}
		rep.Details = append(rep.Details, d)
	}

	r.logger.Info("orphans: sweep done",
		slog.String("tenant_id", snap.TenantID),
		slog.Int("swept", len(records)),
		slog.Int("linked", rep.Linked))
	return rep, nil
}
