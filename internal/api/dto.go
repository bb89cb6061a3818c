package api

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/pipeline"
)

// MaxBatchItems bounds the number of documents in one POST /batches call.
const MaxBatchItems = 500

// SyncRequest is the request body for a calendar sync. Dates are civil dates
// in the tenant time zone; To is inclusive. Empty bounds are open.
type SyncRequest struct {
	From string `json:"from,omitempty" example:"2024-04-01"`
	To   string `json:"to,omitempty" example:"2024-04-30"`
}

// Validate implements validation.Validatable.
func (r SyncRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Date(time.DateOnly)),
		validation.Field(&r.To, validation.Date(time.DateOnly)),
	)
}

// Range converts the request into a half-open DateRange in loc.
func (r SyncRequest) Range(loc *time.Location) (calendar.DateRange, error) {
	var dr calendar.DateRange
	if r.From != "" {
		t, err := time.ParseInLocation(time.DateOnly, r.From, loc)
		if err != nil {
			return dr, fmt.Errorf("from: %w", err)
		}
		dr.From = t
	}
	if r.To != "" {
		t, err := time.ParseInLocation(time.DateOnly, r.To, loc)
		if err != nil {
			return dr, fmt.Errorf("to: %w", err)
		}
		dr.To = t.AddDate(0, 0, 1)
	}
	return dr, nil
}

// BatchItem is one document in a batch request.
type BatchItem struct {
	ID         string `json:"id,omitempty" example:"upload-17"`
	Name       string `json:"name" example:"John Best 12-5-2024.md"`
	Text       string `json:"text" example:"Client was engaged today."`
	ClientName string `json:"client_name,omitempty" example:"John Best"`
	SessionRef string `json:"session_ref,omitempty"`
	Kind       string `json:"kind,omitempty" example:"progress_note"`
}

// Validate implements validation.Validatable.
func (i BatchItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ID, validation.Length(0, 256)),
		validation.Field(&i.Name, validation.Length(0, 512)),
		validation.Field(&i.ClientName, validation.Length(0, 200)),
		validation.Field(&i.SessionRef, validation.Length(0, 128)),
	)
}

// BatchRequest is the request body for POST /batches.
type BatchRequest struct {
	Items []BatchItem `json:"items" validate:"required"`
}

// Validate implements validation.Validatable.
func (r BatchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Items, validation.Required, validation.Length(1, MaxBatchItems)),
	)
}

// PipelineItems converts the request into pipeline items.
func (r BatchRequest) PipelineItems() []pipeline.Item {
	items := make([]pipeline.Item, len(r.Items))
	for n, it := range r.Items {
		items[n] = pipeline.Item{
			ID:         it.ID,
			Name:       it.Name,
			Text:       []byte(it.Text),
			ClientName: it.ClientName,
			SessionRef: it.SessionRef,
			Kind:       it.Kind,
		}
	}
	return items
}

// ReviewResponse lists records waiting for manual review.
type ReviewResponse struct {
	Records []models.Record `json:"records" validate:"required"`
	Total   int             `json:"total" example:"3" validate:"required"`
}

// ContentResponse is the recovered content of a record. When Available is
// false Text is empty and Reason says why.
type ContentResponse struct {
	RecordID  string `json:"record_id" validate:"required"`
	Available bool   `json:"available" validate:"required"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
