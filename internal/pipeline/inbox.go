package pipeline

import (
	"context"
	"log/slog"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/storage"
)

// IngestInbox processes every pending document of the inbox as one batch.
// Processed files move to processed/, files that failed move to failed/;
// files the batch never reached because it aborted stay for the next run.
func (e *Engine) IngestInbox(ctx context.Context, tenantID string, inbox storage.Provider) (BatchReport, error) {
	entries, err := inbox.List("")
	if err != nil {
		return BatchReport{}, apperr.Systemic("pipeline: list inbox", err)
	}
	if len(entries) == 0 {
		return BatchReport{Results: []ItemResult{}, Errors: []apperr.ItemError{}}, nil
	}

	items := make([]Item, 0, len(entries))
	var unreadable []apperr.ItemError
	for _, en := range entries {
		data, err := inbox.Read(en.Path)
		if err != nil {
			unreadable = append(unreadable, apperr.ItemError{Item: en.Path, Message: err.Error()})
			continue
		}
		items = append(items, Item{ID: en.Path, Name: en.Path, Text: data})
	}

	rep, runErr := e.ProcessBatch(ctx, tenantID, items)
	rep.Errors = append(rep.Errors, unreadable...)
	rep.Failed += len(unreadable)

	for _, r := range rep.Results {
		e.archive(inbox, r.Item, storage.ProcessedDir)
	}
	for _, f := range rep.Errors {
		e.archive(inbox, f.Item, storage.FailedDir)
	}
	return rep, runErr
}

func (e *Engine) archive(inbox storage.Provider, path, folder string) {
	dst, err := inbox.Archive(path, folder)
	if err != nil {
		e.logger.Warn("pipeline: archive failed",
			slog.String("path", path),
			slog.String("folder", folder),
			slog.String("error", err.Error()))
		return
	}
	e.logger.Debug("pipeline: archived", slog.String("path", path), slog.String("to", dst))
}
