// Package snapshot holds the per-batch in-memory view of a tenant's clients
// and sessions. It is loaded once before a batch and updated as the batch
// creates rows, so matching never goes back to the database per item.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/resolver"
)

// Source is the persistence a snapshot is loaded from.
type Source interface {
	ListClients(ctx context.Context, tenantID string) ([]models.Client, error)
	ListSessions(ctx context.Context, tenantID string) ([]models.Session, error)
}

// Snapshot bundles the client and session indexes for one tenant.
type Snapshot struct {
	TenantID string
	Clients  *resolver.Index
	Sessions *Sessions
}

// Load reads all clients (deleted included) and live sessions of a tenant.
func Load(ctx context.Context, src Source, tenantID string, nicknames *resolver.Nicknames) (*Snapshot, error) {
	clients, err := src.ListClients(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load clients: %w", err)
	}
	sessions, err := src.ListSessions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load sessions: %w", err)
	}
	return &Snapshot{
		TenantID: tenantID,
		Clients:  resolver.NewIndex(tenantID, clients, nicknames),
		Sessions: NewSessions(sessions),
	}, nil
}

// Sessions indexes live sessions by id, client, and external event id.
type Sessions struct {
	mu         sync.RWMutex
	byID       map[string]models.Session
	byClient   map[string][]string
	byExternal map[string]string
}

// NewSessions builds a session index.
func NewSessions(sessions []models.Session) *Sessions {
	si := &Sessions{
		byID:       make(map[string]models.Session, len(sessions)),
		byClient:   make(map[string][]string),
		byExternal: make(map[string]string),
	}
	for _, s := range sessions {
		si.addLocked(s)
	}
	return si
}

// Add inserts a session.
func (si *Sessions) Add(s models.Session) {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.addLocked(s)
}

func (si *Sessions) addLocked(s models.Session) {
	if s.DeletedAt != nil {
		return
	}
	if _, exists := si.byID[s.ID]; !exists {
		si.byClient[s.ClientID] = append(si.byClient[s.ClientID], s.ID)
	}
	si.byID[s.ID] = s
	if s.ExternalEventID != "" {
		si.byExternal[s.ExternalEventID] = s.ID
	}
}

// Session returns a session by id.
func (si *Sessions) Session(id string) (models.Session, bool) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	s, ok := si.byID[id]
	return s, ok
}

// ByExternalID returns the session synchronized from a calendar event.
func (si *Sessions) ByExternalID(externalID string) (models.Session, bool) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	id, ok := si.byExternal[externalID]
	if !ok {
		return models.Session{}, false
	}
	return si.byID[id], true
}

// Lookup resolves a session reference, which may be a session id or the
// external event id the session was synchronized from.
func (si *Sessions) Lookup(ref string) (models.Session, bool) {
	if s, ok := si.Session(ref); ok {
		return s, true
	}
	return si.ByExternalID(ref)
}

// ForClient returns a client's sessions ordered by scheduled time.
func (si *Sessions) ForClient(clientID string) []models.Session {
	si.mu.RLock()
	defer si.mu.RUnlock()
	ids := si.byClient[clientID]
	out := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, si.byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of sessions in the index.
func (si *Sessions) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.byID)
}
