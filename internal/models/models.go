// Package models defines the domain types for Casebook.
package models

import (
	"strings"
	"time"
)

// ClientStatus is the lifecycle state of a client.
type ClientStatus string

// Client statuses.
const (
	ClientActive  ClientStatus = "active"
	ClientDeleted ClientStatus = "deleted"
)

// Provenance records how a row came to exist.
type Provenance string

// Provenance tags.
const (
	ProvenanceManual           Provenance = "manual"
	ProvenanceCalendarImport   Provenance = "calendar_import"
	ProvenanceDocumentImport   Provenance = "document_import"
	ProvenanceExternalCalendar Provenance = "external_calendar"
	ProvenanceDocumentInferred Provenance = "document_inferred"
)

// Client is a person the practice works with.
type Client struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	DisplayName    string       `json:"display_name"`
	NormalizedName string       `json:"normalized_name"`
	Status         ClientStatus `json:"status"`
	Provenance     Provenance   `json:"provenance"`
	CreatedAt      time.Time    `json:"created_at"`
	DeletedAt      *time.Time   `json:"deleted_at,omitempty"`
}

// Deleted reports whether the client has been soft-deleted.
func (c Client) Deleted() bool {
	return c.Status == ClientDeleted
}

// Session is one scheduled appointment with a client.
type Session struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenant_id"`
	ClientID        string        `json:"client_id"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	Duration        time.Duration `json:"duration"`
	ExternalEventID string        `json:"external_event_id,omitempty"`
	Provenance      Provenance    `json:"provenance"`
	CreatedAt       time.Time     `json:"created_at"`
	DeletedAt       *time.Time    `json:"deleted_at,omitempty"`
}

// RecordKind distinguishes uploaded documents from progress notes.
type RecordKind string

// Record kinds.
const (
	KindDocument     RecordKind = "document"
	KindProgressNote RecordKind = "progress_note"
)

// LinkStatus tracks whether a record is attached to a session.
type LinkStatus string

// Link statuses.
const (
	LinkLinked      LinkStatus = "linked"
	LinkUnlinked    LinkStatus = "unlinked"
	LinkNeedsReview LinkStatus = "needs_review"
)

// Record is a document or progress note that may belong to a session.
type Record struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	Kind              RecordKind `json:"kind"`
	ClientID          string     `json:"client_id,omitempty"`
	SessionID         string     `json:"session_id,omitempty"`
	ExplicitSessionID string     `json:"explicit_session_id,omitempty"`
	DateHint          *DateHint  `json:"date_hint,omitempty"`
	LinkStatus        LinkStatus `json:"link_status"`
	ReviewReason      string     `json:"review_reason,omitempty"`
	Source            string     `json:"source"`
	Checksum          string     `json:"checksum"`
	CandidateName     string     `json:"candidate_name,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Linked reports whether the record already points at a session.
func (r Record) Linked() bool {
	return r.SessionID != ""
}

// DateHint is an approximate date extracted from a record. When HasTime is
// false only the civil date of At is meaningful.
type DateHint struct {
	At      time.Time `json:"at"`
	HasTime bool      `json:"has_time"`
}

// NormalizeName case-folds, trims, and collapses whitespace. Punctuation other
// than hyphens and apostrophes is treated as whitespace.
func NormalizeName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		switch {
		case r == '-' || r == '\'':
			b.WriteRune(r)
		case r == '.' || r == ',' || r == ';' || r == ':' || r == '_' || r == '/' || r == '"':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
