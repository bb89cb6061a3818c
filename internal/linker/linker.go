// Package linker attaches unlinked documents and progress notes to the most
// plausible session of their client.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/snapshot"
)

// Outcome describes how a record was (or was not) linked.
type Outcome string

// Link outcomes.
const (
	LinkedExplicit  Outcome = "explicit"
	LinkedExactDate Outcome = "exact_date"
	LinkedNearest   Outcome = "nearest"
	NoTemporalMatch Outcome = "no_temporal_match"
	AlreadyLinked   Outcome = "already_linked"
	Stale           Outcome = "stale"
)

// Linked reports whether the outcome attached the record to a session.
func (o Outcome) Linked() bool {
	return o == LinkedExplicit || o == LinkedExactDate || o == LinkedNearest
}

// Match is a linking decision made against a session snapshot.
type Match struct {
	Outcome   Outcome `json:"outcome"`
	SessionID string  `json:"session_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Result is the outcome of Link for one record.
type Result struct {
	RecordID string `json:"record_id"`
	Match
}

// Writer persists linking decisions.
type Writer interface {
	// LinkRecord attaches the record to the session. clientID is stored on
	// records that have no client yet.
	LinkRecord(ctx context.Context, tenantID, recordID, sessionID, clientID string) (bool, error)
	MarkNeedsReview(ctx context.Context, tenantID, recordID, reason string) error
}

// Linker matches records to sessions by explicit reference and civil date.
type Linker struct {
	w      Writer
	loc    *time.Location
	logger *slog.Logger
}

// New creates a Linker. Civil dates are evaluated in loc.
func New(w Writer, loc *time.Location, logger *slog.Logger) *Linker {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{w: w, loc: loc, logger: logger}
}

// Match picks a session for rec without writing anything. clientID is the
// resolved client of the record and may be empty when unresolved.
//
// Order, first hit wins: explicit session reference (session id or calendar
// event id) of the same client; a
// session on the same civil day as the date hint; the nearest session within
// one civil day. Equal candidates are ordered by distance to the hint, then
// earliest creation, then id. Sessions of deleted clients are never chosen.
func (l *Linker) Match(rec models.Record, clientID string, snap *snapshot.Snapshot) Match {
	sessions := snap.Sessions
	if rec.ExplicitSessionID != "" {
		if s, ok := sessions.Lookup(rec.ExplicitSessionID); ok && (clientID == "" || s.ClientID == clientID) {
			if !clientDeleted(snap, s.ClientID) {
				return Match{Outcome: LinkedExplicit, SessionID: s.ID}
			}
			if clientID == "" {
				return Match{Outcome: NoTemporalMatch, Reason: "referenced session belongs to a deleted client"}
			}
		}
	}
	if clientID == "" {
		return Match{Outcome: NoTemporalMatch, Reason: "client unresolved"}
	}
	if clientDeleted(snap, clientID) {
		return Match{Outcome: NoTemporalMatch, Reason: "client deleted"}
	}
	if rec.DateHint == nil {
		return Match{Outcome: NoTemporalMatch, Reason: "no date hint"}
	}

	day := l.hintDay(*rec.DateHint)
	anchor := l.anchor(*rec.DateHint)

	var sameDay, window []models.Session
	for _, s := range sessions.ForClient(clientID) {
		switch diff := daysBetween(day, l.civil(s.ScheduledAt)); diff {
		case 0:
			sameDay = append(sameDay, s)
		case -1, 1:
			window = append(window, s)
		}
	}

	if len(sameDay) > 0 {
		return Match{Outcome: LinkedExactDate, SessionID: nearest(sameDay, anchor).ID}
	}
	if len(window) > 0 {
		return Match{Outcome: LinkedNearest, SessionID: nearest(window, anchor).ID}
	}
	return Match{
		Outcome: NoTemporalMatch,
		Reason:  fmt.Sprintf("no session within one day of %s", day.Format(time.DateOnly)),
	}
}

// Link matches rec and persists the decision: the session id when a match is
// found, or a needs-review flag with the reason otherwise.
func (l *Linker) Link(ctx context.Context, rec models.Record, clientID string, snap *snapshot.Snapshot) (Result, error) {
	if rec.Linked() {
		return Result{RecordID: rec.ID, Match: Match{Outcome: AlreadyLinked, SessionID: rec.SessionID}}, nil
	}

	m := l.Match(rec, clientID, snap)
	res := Result{RecordID: rec.ID, Match: m}

	if !m.Outcome.Linked() {
		if err := l.w.MarkNeedsReview(ctx, rec.TenantID, rec.ID, m.Reason); err != nil {
			return res, fmt.Errorf("linker: mark needs review %s: %w", rec.ID, err)
		}
		l.logger.Debug("linker: no match",
			slog.String("record_id", rec.ID),
			slog.String("reason", m.Reason))
		return res, nil
	}

	owner := clientID
	if owner == "" {
		if s, found := snap.Sessions.Session(m.SessionID); found {
			owner = s.ClientID
		}
	}
	ok, err := l.w.LinkRecord(ctx, rec.TenantID, rec.ID, m.SessionID, owner)
	if err != nil {
		return res, fmt.Errorf("linker: link %s: %w", rec.ID, err)
	}
	if !ok {
		res.Outcome = Stale
		res.Reason = "record already linked or session no longer exists"
		l.logger.Warn("linker: link skipped",
			slog.String("record_id", rec.ID),
			slog.String("session_id", m.SessionID))
		return res, nil
	}

	l.logger.Debug("linker: linked",
		slog.String("record_id", rec.ID),
		slog.String("session_id", m.SessionID),
		slog.String("outcome", string(m.Outcome)))
	return res, nil
}

func clientDeleted(snap *snapshot.Snapshot, clientID string) bool {
	if snap.Clients == nil {
		return false
	}
	c, ok := snap.Clients.Client(clientID)
	return ok && c.Deleted()
}

// hintDay returns the civil date of a hint as midnight UTC. Date-only hints
// carry their civil date in UTC fields; timed hints are read in the tenant zone.
func (l *Linker) hintDay(h models.DateHint) time.Time {
	if h.HasTime {
		return l.civil(h.At)
	}
	y, m, d := h.At.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// anchor is the instant distances are measured from: the hint itself when
// it has a time, otherwise local noon of the hinted day.
func (l *Linker) anchor(h models.DateHint) time.Time {
	if h.HasTime {
		return h.At
	}
	y, m, d := h.At.UTC().Date()
	return time.Date(y, m, d, 12, 0, 0, 0, l.loc)
}

func (l *Linker) civil(t time.Time) time.Time {
	y, m, d := t.In(l.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// nearest returns the candidate closest to anchor; ties go to the session
// created first, then the lowest id.
func nearest(cands []models.Session, anchor time.Time) models.Session {
	sorted := append([]models.Session(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := absDuration(sorted[i].ScheduledAt.Sub(anchor)), absDuration(sorted[j].ScheduledAt.Sub(anchor))
		if di != dj {
			return di < dj
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
