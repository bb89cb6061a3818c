package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/calsync"
)

// SyncCalendar imports every event of r from the calendar provider as a
// session. Running it twice over the same range creates nothing the second
// time. When link-after-sync is on, an orphan sweep follows a successful run.
func (e *Engine) SyncCalendar(ctx context.Context, tenantID string, r calendar.DateRange) (SyncReport, error) {
	start := e.now()
	var rep SyncReport
	if e.calendar == nil {
		return rep, fmt.Errorf("pipeline: sync calendar: no calendar provider configured: %w", apperr.ErrInvalidInput)
	}
	if err := r.Validate(); err != nil {
		return rep, fmt.Errorf("pipeline: sync calendar: %w: %w", apperr.ErrInvalidInput, err)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	snap, err := e.load(ctx, tenantID)
	if err != nil {
		return rep, err
	}
	events, err := e.calendar.ListEvents(ctx, r)
	if err != nil {
		if isSystemic(err) {
			return rep, fmt.Errorf("pipeline: sync calendar: %w", err)
		}
		return rep, apperr.Systemic("pipeline: list events", err)
	}

	results := make([]calsync.Result, len(events))
	done := make([]bool, len(events))
	failures := make([]*apperr.ItemError, len(events))
	itemID := func(i int) string {
		if events[i].ExternalID != "" {
			return events[i].ExternalID
		}
		return fmt.Sprintf("event-%d", i+1)
	}

	runErr := e.forEach(ctx, "sync_calendar", len(events), func(ctx context.Context, i int) error {
		res, err := e.sync.Sync(ctx, snap, events[i])
		if err != nil {
			if isSystemic(err) {
				return err
			}
			failures[i] = &apperr.ItemError{Item: itemID(i), Message: err.Error()}
			return nil
		}
		results[i], done[i] = res, true
		return nil
	}, func(i int, msg string) {
		failures[i] = &apperr.ItemError{Item: itemID(i), Message: msg}
	})

	rep.Results = make([]calsync.Result, 0, len(events))
	rep.Errors = make([]apperr.ItemError, 0)
	for i := range events {
		if f := failures[i]; f != nil {
			rep.Errors = append(rep.Errors, *f)
			e.metrics.Failure("sync_calendar")
			continue
		}
		if !done[i] {
			continue
		}
		res := results[i]
		rep.Results = append(rep.Results, res)
		e.metrics.Event(string(res.Outcome))
		if res.ClientCreated {
			rep.Created++
		}
		switch res.Outcome {
		case calsync.Synced:
			rep.Synced++
		case calsync.Duplicate:
			rep.Duplicates++
		case calsync.Skipped:
			rep.Skipped++
		case calsync.Ignored:
			rep.Ignored++
		}
	}
	e.metrics.ObserveBatch("sync_calendar", start)

	if runErr != nil {
		e.logger.Error("pipeline: calendar sync aborted",
			slog.String("tenant_id", tenantID),
			slog.String("error", runErr.Error()))
		return rep, fmt.Errorf("pipeline: sync calendar: %w", runErr)
	}

	e.logger.Info("pipeline: calendar synced",
		slog.String("tenant_id", tenantID),
		slog.Int("events", len(events)),
		slog.Int("synced", rep.Synced),
		slog.Int("created", rep.Created),
		slog.Int("duplicates", rep.Duplicates),
		slog.Int("errors", len(rep.Errors)))

	if e.sweep {
		orphansRep, err := e.sweepWith(ctx, snap)
		if err != nil {
			return rep, err
		}
		rep.Orphans = &orphansRep
	}
	e.notify(EventCalendarSynced, map[string]any{
		"tenant_id":  tenantID,
		"synced":     rep.Synced,
		"created":    rep.Created,
		"duplicates": rep.Duplicates,
		"skipped":    rep.Skipped,
		"ignored":    rep.Ignored,
		"errors":     len(rep.Errors),
	})
	return rep, nil
}
