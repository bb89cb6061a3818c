// Package calendar defines the external calendar provider consumed by the
// session synchronizer, plus the providers that ship with Casebook.
package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Event is one calendar entry as reported by a provider.
type Event struct {
	ExternalID    string    `json:"external_id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end,omitempty"`
	AttendeeEmail string    `json:"attendee_email,omitempty"`
	// AllDay is set for events that carry a date but no time of day.
	AllDay bool `json:"all_day,omitempty"`
}

// Validate checks the fields the synchronizer relies on.
func (e Event) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ExternalID, validation.Required),
		validation.Field(&e.Start, validation.Required),
		validation.Field(&e.End, validation.By(func(any) error {
			if !e.End.IsZero() && e.End.Before(e.Start) {
				return errors.New("must not be before start")
			}
			return nil
		})),
	)
}

// Duration returns End - Start, or def when the end is missing or not after
// the start.
func (e Event) Duration(def time.Duration) time.Duration {
	if e.End.IsZero() || !e.End.After(e.Start) {
		return def
	}
	return e.End.Sub(e.Start)
}

// DateRange is a half-open interval [From, To). A zero bound is unbounded.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Validate rejects inverted ranges.
func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return errors.New("calendar: range end must be after start")
	}
	return nil
}

// Provider lists calendar events.
type Provider interface {
	ListEvents(ctx context.Context, r DateRange) ([]Event, error)
}

// Memory is an in-process Provider, used by tests and the ingest CLI.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemory returns a provider serving events.
func NewMemory(events ...Event) *Memory {
	return &Memory{events: append([]Event(nil), events...)}
}

// Add appends events.
func (m *Memory) Add(events ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

// ListEvents implements Provider.
func (m *Memory) ListEvents(ctx context.Context, r DateRange) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.events, r), nil
}

// filter keeps events starting inside r, ordered by start then id.
func filter(events []Event, r DateRange) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Start.IsZero() || r.Contains(e.Start) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}
