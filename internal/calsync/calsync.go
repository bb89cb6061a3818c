// Package calsync turns external calendar events into sessions. Sessions are
// keyed by the event's external id, so synchronizing the same events again
// changes nothing.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/resolver"
	"github.com/starford/casebook/internal/snapshot"
)

// DefaultDuration is used for events without a usable end time.
const DefaultDuration = 50 * time.Minute

// Outcome is what happened to one event.
type Outcome string

// Sync outcomes.
const (
	Synced    Outcome = "synced"
	Duplicate Outcome = "duplicate"
	Skipped   Outcome = "skipped"
	Ignored   Outcome = "ignored"
)

// Result describes the synchronization of one event.
type Result struct {
	EventID       string  `json:"event_id"`
	Outcome       Outcome `json:"outcome"`
	SessionID     string  `json:"session_id,omitempty"`
	ClientID      string  `json:"client_id,omitempty"`
	ClientCreated bool    `json:"client_created,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// SessionStore is the persistence the synchronizer writes to.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) (bool, error)
	SessionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Session, error)
}

// Synchronizer creates sessions for calendar events.
type Synchronizer struct {
	sessions SessionStore
	resolver *resolver.Resolver
	logger   *slog.Logger
	duration time.Duration
	now      func() time.Time
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithDefaultDuration sets the duration of events that have no end.
func WithDefaultDuration(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithClock overrides the time source for created-at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New creates a Synchronizer.
func New(sessions SessionStore, res *resolver.Resolver, logger *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		sessions: sessions,
		resolver: res,
		logger:   logger,
		duration: DefaultDuration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sync synchronizes one event against snap. Events already synchronized are
// reported as Duplicate; events whose title resolves to a deleted client or a
// non-client pattern are dropped. The snapshot is updated with any session or
// client the call creates.
func (s *Synchronizer) Sync(ctx context.Context, snap *snapshot.Snapshot, e calendar.Event) (Result, error) {
	res := Result{EventID: e.ExternalID}
	if err := e.Validate(); err != nil {
		return res, fmt.Errorf("calsync: event %q: %w: %w", e.ExternalID, apperr.ErrInvalidInput, err)
	}

	if existing, ok := snap.Sessions.ByExternalID(e.ExternalID); ok {
		res.Outcome = Duplicate
		res.SessionID = existing.ID
		res.ClientID = existing.ClientID
		return res, nil
	}

	name := calendar.CandidateName(e.Title)
	r, err := s.resolver.Resolve(ctx, snap.Clients, name, models.ProvenanceCalendarImport)
	if err != nil {
		return res, fmt.Errorf("calsync: event %q: %w", e.ExternalID, err)
	}
	res.ClientID = r.ClientID

	switch r.Outcome {
	case resolver.Skipped:
		res.Outcome = Skipped
		res.Reason = r.Reason
		s.logger.Info("sync: event dropped",
			slog.String("event_id", e.ExternalID),
			slog.String("title", e.Title),
			slog.String("reason", r.Reason))
		return res, nil
	case resolver.Ignored:
		res.Outcome = Ignored
		res.Reason = r.Reason
		s.logger.Debug("sync: event ignored",
			slog.String("event_id", e.ExternalID),
			slog.String("title", e.Title),
			slog.String("reason", r.Reason))
		return res, nil
	case resolver.Matched, resolver.Created:
	default:
		return res, fmt.Errorf("calsync: event %q: unexpected resolution %q", e.ExternalID, r.Outcome)
	}
	res.ClientCreated = r.Outcome == resolver.Created

	session := models.Session{
		ID:              uuid.NewString(),
		TenantID:        snap.TenantID,
		ClientID:        r.ClientID,
		ScheduledAt:     e.Start,
		Duration:        e.Duration(s.duration),
		ExternalEventID: e.ExternalID,
		Provenance:      models.ProvenanceExternalCalendar,
		CreatedAt:       s.now().UTC(),
	}
	created, err := s.sessions.CreateSession(ctx, &session)
	if err != nil {
		return res, fmt.Errorf("calsync: event %q: %w", e.ExternalID, err)
	}
	if !created {
		// Lost the race on the external id; adopt the winner.
		existing, err := s.sessions.SessionByExternalID(ctx, snap.TenantID, e.ExternalID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return res, fmt.Errorf("calsync: event %q: session conflict without live session: %w", e.ExternalID, apperr.ErrConflict)
			}
			return res, fmt.Errorf("calsync: event %q: %w", e.ExternalID, err)
		}
		snap.Sessions.Add(*existing)
		res.Outcome = Duplicate
		res.SessionID = existing.ID
		res.ClientID = existing.ClientID
		return res, nil
	}

	snap.Sessions.Add(session)
	res.Outcome = Synced
	res.SessionID = session.ID
	s.logger.Debug("sync: session created",
		slog.String("event_id", e.ExternalID),
		slog.String("session_id", session.ID),
		slog.String("client_id", session.ClientID))
	return res, nil
}
