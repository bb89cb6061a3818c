package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/checksum"
	"github.com/starford/casebook/internal/extract"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/orphans"
	"github.com/starford/casebook/internal/resolver"
	"github.com/starford/casebook/internal/snapshot"
)

// ProcessBatch ingests documents: each item is extracted, its client
// resolved, its record stored and linked to a session when one fits. A
// failure or panic in one item is reported against that item and the rest of
// the batch goes on; a systemic failure stops the batch and is returned along
// with the partial report.
func (e *Engine) ProcessBatch(ctx context.Context, tenantID string, items []Item) (BatchReport, error) {
	start := e.now()
	rep := BatchReport{Results: make([]ItemResult, 0, len(items)), Errors: make([]apperr.ItemError, 0)}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	snap, err := e.load(ctx, tenantID)
	if err != nil {
		return rep, err
	}

	keys := itemKeys(items)
	results := make([]*ItemResult, len(items))
	failures := make([]*apperr.ItemError, len(items))

	runErr := e.forEach(ctx, "process_batch", len(items), func(ctx context.Context, i int) error {
		res, err := e.processItem(ctx, snap, keys[i], items[i])
		if err != nil {
			if isSystemic(err) {
				return err
			}
			e.logger.Warn("pipeline: item failed",
				slog.String("item", keys[i]),
				slog.String("error", err.Error()))
			failures[i] = &apperr.ItemError{Item: keys[i], Message: err.Error()}
			return nil
		}
		results[i] = &res
		return nil
	}, func(i int, msg string) {
		failures[i] = &apperr.ItemError{Item: keys[i], Message: msg}
	})

	for i := range items {
		if f := failures[i]; f != nil {
			rep.Errors = append(rep.Errors, *f)
			rep.Failed++
			e.metrics.Failure("process_batch")
			continue
		}
		res := results[i]
		if res == nil {
			continue
		}
		rep.Results = append(rep.Results, *res)
		rep.Processed++
		if res.ClientCreated {
			rep.Created++
		}
		if res.Link.Linked() {
			rep.Linked++
		}
		if res.skipped() {
			rep.Skipped++
		}
	}
	e.metrics.ObserveBatch("process_batch", start)

	if runErr != nil {
		e.logger.Error("pipeline: batch aborted",
			slog.String("tenant_id", tenantID),
			slog.Int("processed", rep.Processed),
			slog.String("error", runErr.Error()))
		return rep, fmt.Errorf("pipeline: process batch: %w", runErr)
	}

	e.logger.Info("pipeline: batch processed",
		slog.String("tenant_id", tenantID),
		slog.Int("items", len(items)),
		slog.Int("processed", rep.Processed),
		slog.Int("created", rep.Created),
		slog.Int("linked", rep.Linked),
		slog.Int("failed", rep.Failed))

	if e.sweep {
		orphansRep, err := e.sweepWith(ctx, snap)
		if err != nil {
			return rep, err
		}
		rep.Orphans = &orphansRep
	}
	e.notify(EventBatchProcessed, map[string]any{
		"tenant_id": tenantID,
		"processed": rep.Processed,
		"created":   rep.Created,
		"linked":    rep.Linked,
		"skipped":   rep.Skipped,
		"failed":    rep.Failed,
	})
	return rep, nil
}

// processItem handles one document. Returned errors are item errors unless
// isSystemic says otherwise.
func (e *Engine) processItem(ctx context.Context, snap *snapshot.Snapshot, key string, it Item) (ItemResult, error) {
	res := ItemResult{Item: key}
	sum := checksum.Sum(it.Text)

	if existing, err := e.store.RecordByChecksum(ctx, snap.TenantID, sum); err == nil {
		return duplicate(res, existing), nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return res, err
	}

	name := it.Name
	if name == "" {
		name = key
	}
	out, err := e.extractor.Extract(ctx, extract.Input{Name: name, Text: it.Text})
	if err != nil {
		return res, err
	}
	fields, err := e.validator.Decode(out)
	if err != nil {
		return res, err
	}
	if err := applyOverrides(&fields, it); err != nil {
		return res, err
	}

	rec := models.Record{
		ID:                uuid.NewString(),
		TenantID:          snap.TenantID,
		Kind:              fields.Kind,
		ExplicitSessionID: fields.SessionRef,
		DateHint:          fields.DateHint,
		Source:            name,
		Checksum:          sum,
		CandidateName:     fields.CandidateName,
		CreatedAt:         e.now().UTC(),
	}

	linkable := true
	if fields.CandidateName != "" {
		r, err := e.resolver.Resolve(ctx, snap.Clients, fields.CandidateName, models.ProvenanceDocumentImport)
		if err != nil {
			return res, err
		}
		e.metrics.Resolution(string(r.Outcome))
		res.Resolution = r.Outcome
		switch r.Outcome {
		case resolver.Matched, resolver.Created:
			rec.ClientID = r.ClientID
			res.ClientCreated = r.Outcome == resolver.Created
		case resolver.Skipped:
			rec.ClientID = r.ClientID
			res.Reason = r.Reason
			linkable = false
		case resolver.Ignored:
			res.Reason = r.Reason
		}
	}
	if rec.ClientID == "" && rec.ExplicitSessionID != "" && linkable {
		// An unnamed document that cites a session belongs to that session's
		// client. A deleted client keeps the document but never gets it linked.
		if s, ok := snap.Sessions.Lookup(rec.ExplicitSessionID); ok {
			rec.ClientID = s.ClientID
			if c, known := snap.Clients.Client(s.ClientID); known && c.Deleted() {
				res.Reason = "referenced session belongs to a deleted client"
				linkable = false
			}
		}
	}
	res.ClientID = rec.ClientID

	sealed, err := e.sealer.Seal(it.Text)
	if err != nil {
		return res, fmt.Errorf("pipeline: seal %s: %w", key, err)
	}
	inserted, err := e.store.InsertRecord(ctx, &rec, sealed)
	if err != nil {
		return res, err
	}
	if !inserted {
		// Same content stored concurrently by another item.
		existing, err := e.store.RecordByChecksum(ctx, snap.TenantID, sum)
		if err != nil {
			return res, err
		}
		return duplicate(ItemResult{Item: key}, existing), nil
	}
	res.RecordID = rec.ID

	if !linkable {
		if err := e.store.MarkNeedsReview(ctx, snap.TenantID, rec.ID, res.Reason); err != nil {
			return res, err
		}
		res.Link = orphans.ClientDeleted
		return res, nil
	}

	lr, err := e.linker.Link(ctx, rec, rec.ClientID, snap)
	if err != nil {
		return res, err
	}
	e.metrics.Link(string(lr.Outcome))
	res.Link = lr.Outcome
	res.SessionID = lr.SessionID
	if res.Reason == "" {
		res.Reason = lr.Reason
	}
	return res, nil
}

func duplicate(res ItemResult, existing *models.Record) ItemResult {
	res.Duplicate = true
	res.RecordID = existing.ID
	res.ClientID = existing.ClientID
	res.SessionID = existing.SessionID
	res.Reason = "duplicate content"
	return res
}

// applyOverrides lets the caller correct what extraction found.
func applyOverrides(f *extract.Fields, it Item) error {
	if v := strings.TrimSpace(it.ClientName); v != "" {
		f.CandidateName = v
	}
	if v := strings.TrimSpace(it.SessionRef); v != "" {
		f.SessionRef = v
	}
	switch models.RecordKind(it.Kind) {
	case "":
	case models.KindDocument, models.KindProgressNote:
		f.Kind = models.RecordKind(it.Kind)
	default:
		return fmt.Errorf("pipeline: kind %q: %w", it.Kind, apperr.ErrInvalidInput)
	}
	return nil
}

// itemKeys returns the report identifier of every item.
func itemKeys(items []Item) []string {
	keys := make([]string, len(items))
	for i, it := range items {
		switch {
		case it.ID != "":
			keys[i] = it.ID
		case it.Name != "":
			keys[i] = it.Name
		default:
			keys[i] = fmt.Sprintf("item-%d", i+1)
		}
	}
	return keys
}
