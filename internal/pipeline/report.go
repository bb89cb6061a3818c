package pipeline

import (
	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/calsync"
	"github.com/starford/casebook/internal/linker"
	"github.com/starford/casebook/internal/orphans"
	"github.com/starford/casebook/internal/resolver"
)

// SyncReport summarises one SyncCalendar run.
type SyncReport struct {
	// Synced counts sessions created by this run.
	Synced int `json:"synced"`
	// Created counts clients created by this run.
	Created    int                `json:"created"`
	Duplicates int                `json:"duplicates"`
	Skipped    int                `json:"skipped"`
	Ignored    int                `json:"ignored"`
	Results    []calsync.Result   `json:"results"`
	Errors     []apperr.ItemError `json:"errors"`
	// Orphans is the sweep that followed the sync, when enabled.
	Orphans *orphans.Report `json:"orphans,omitempty"`
}

// Item is one document handed to ProcessBatch.
type Item struct {
	// ID identifies the item in reports. It defaults to Name.
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Text []byte `json:"-"`
	// Optional overrides of what extraction finds.
	ClientName string `json:"client_name,omitempty"`
	SessionRef string `json:"session_ref,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// ItemResult is the outcome of one successfully processed item.
type ItemResult struct {
	Item          string           `json:"item"`
	RecordID      string           `json:"record_id,omitempty"`
	ClientID      string           `json:"client_id,omitempty"`
	ClientCreated bool             `json:"client_created,omitempty"`
	Resolution    resolver.Outcome `json:"resolution,omitempty"`
	Duplicate     bool             `json:"duplicate,omitempty"`
	Link          linker.Outcome   `json:"link,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// skipped reports whether the item was accepted without adding anything
// linkable: repeated content, a deleted client or a non-client name.
func (r ItemResult) skipped() bool {
	return r.Duplicate || r.Resolution == resolver.Skipped || r.Resolution == resolver.Ignored
}

// BatchReport summarises one ProcessBatch run.
type BatchReport struct {
	Processed int `json:"processed"`
	// Created counts clients created by this batch.
	Created int                `json:"created"`
	Linked  int                `json:"linked"`
	Skipped int                `json:"skipped"`
	Failed  int                `json:"failed"`
	Results []ItemResult       `json:"results"`
	Errors  []apperr.ItemError `json:"errors"`
	Orphans *orphans.Report    `json:"orphans,omitempty"`
}
