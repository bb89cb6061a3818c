// Package resolver maps raw display names onto client identities.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

// Outcome is the variant of a Resolution.
type Outcome string

// Resolution outcomes. Callers must handle all four.
const (
	Matched Outcome = "matched"
	Created Outcome = "created"
	Skipped Outcome = "skipped"
	Ignored Outcome = "ignored"
)

// Resolution is the result of resolving one raw name.
type Resolution struct {
	Outcome Outcome `json:"outcome"`
	// ClientID is set for Matched, Created, and Skipped (the deleted client).
	ClientID string `json:"client_id,omitempty"`
	// Name is the normalized form of the input.
	Name string `json:"name"`
	// Via tells how a match was found: "exact" or "nickname".
	Via    string `json:"via,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Linkable reports whether the resolution names a live client records and
// sessions may attach to.
func (r Resolution) Linkable() bool {
	return r.Outcome == Matched || r.Outcome == Created
}

// ClientStore is the persistence the resolver needs to create clients.
type ClientStore interface {
	CreateClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, tenantID, id string) (*models.Client, error)
}

// idNamespace seeds deterministic client ids derived from equivalence keys.
var idNamespace = uuid.MustParse("6f1f0c55-58c4-4d52-9d7e-0c9a0e6b7d21")

// Resolver resolves names against an Index, creating clients when needed.
type Resolver struct {
	clients   ClientStore
	blacklist *Blacklist
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBlacklist replaces the default blacklist.
func WithBlacklist(b *Blacklist) Option {
	return func(r *Resolver) { r.blacklist = b }
}

// WithClock overrides the time source used for created-at stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver backed by clients.
func New(clients ClientStore, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		clients: clients,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.blacklist == nil {
		b, err := NewBlacklist()
		if err != nil {
			panic(err) // built-in patterns always compile
		}
		r.blacklist = b
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Lookup resolves raw against idx without mutating anything. When no client
// matches it returns Created with an empty ClientID, meaning Resolve would
// create one.
func (r *Resolver) Lookup(idx *Index, raw string) Resolution {
	res, _ := r.lookup(idx, raw)
	return res
}

// Resolve resolves raw against idx. When nothing matches it inserts a new
// active client tagged with provenance and adds it to idx.
func (r *Resolver) Resolve(ctx context.Context, idx *Index, raw string, provenance models.Provenance) (Resolution, error) {
	res, keys := r.lookup(idx, raw)
	if res.Outcome != Created {
		r.log(res, raw)
		return res, nil
	}

	unlock := idx.lock(keys)
	defer unlock()

	// Another worker may have created an equivalent client while we waited.
	if again, _ := r.lookup(idx, raw); again.Outcome != Created {
		r.log(again, raw)
		return again, nil
	}

	c := models.Client{
		ID:             clientID(idx.TenantID(), res.Name, keys),
		TenantID:       idx.TenantID(),
		DisplayName:    displayName(raw),
		NormalizedName: res.Name,
		Status:         models.ClientActive,
		Provenance:     provenance,
		CreatedAt:      r.now().UTC(),
	}
	if err := r.clients.CreateClient(ctx, &c); err != nil {
		// A client with the derived id exists outside the snapshot; adopt it
		// when it is the same person.
		existing, getErr := r.clients.GetClient(ctx, c.TenantID, c.ID)
		if getErr != nil {
			if errors.Is(getErr, apperr.ErrNotFound) {
				return Resolution{}, fmt.Errorf("resolver: create client %q: %w", res.Name, err)
			}
			return Resolution{}, fmt.Errorf("resolver: create client %q: %w", res.Name, errors.Join(err, getErr))
		}
		idx.Add(*existing)
		if adopted, _ := r.lookup(idx, raw); adopted.Outcome != Created {
			r.log(adopted, raw)
			return adopted, nil
		}
		// The derived id belongs to a different name.
		c.ID = uuid.NewString()
		if err := r.clients.CreateClient(ctx, &c); err != nil {
			return Resolution{}, fmt.Errorf("resolver: create client %q: %w", res.Name, err)
		}
	}
	idx.Add(c)

	res.ClientID = c.ID
	r.log(res, raw)
	return res, nil
}

// lookup runs the non-mutating resolution steps. It also returns the
// equivalence keys of the name for locking.
func (r *Resolver) lookup(idx *Index, raw string) (Resolution, []string) {
	if p := r.blacklist.Match(raw); p != "" {
		return Resolution{Outcome: Ignored, Name: models.NormalizeName(raw), Reason: "matches ignore pattern " + p}, nil
	}
	name := models.NormalizeName(raw)
	if name == "" {
		return Resolution{Outcome: Ignored, Reason: "empty name"}, nil
	}
	keys := idx.nicknames.Keys(name)

	if cs := idx.exact(name); len(cs) > 0 {
		return decide(cs, name, "exact"), keys
	}
	if len(strings.Fields(name)) > 1 {
		if cs := idx.equivalent(keys); len(cs) > 0 {
			return decide(cs, name, "nickname"), keys
		}
	}
	return Resolution{Outcome: Created, Name: name}, keys
}

// decide applies the match outcome rules to ordered candidates: the earliest
// active client wins; if every candidate is deleted the name is skipped.
func decide(cs []models.Client, name, via string) Resolution {
	for _, c := range cs {
		if !c.Deleted() {
			return Resolution{Outcome: Matched, ClientID: c.ID, Name: name, Via: via}
		}
	}
	return Resolution{Outcome: Skipped, ClientID: cs[0].ID, Name: name, Via: via, Reason: "matches deleted client"}
}

func (r *Resolver) log(res Resolution, raw string) {
	switch res.Outcome {
	case Ignored, Skipped:
		r.logger.Info("resolver: name not resolved",
			slog.String("name", raw),
			slog.String("outcome", string(res.Outcome)),
			slog.String("reason", res.Reason))
	default:
		r.logger.Debug("resolver: resolved",
			slog.String("name", raw),
			slog.String("outcome", string(res.Outcome)),
			slog.String("client_id", res.ClientID),
			slog.String("via", res.Via))
	}
}

// clientID derives a stable id for a new client. Names of two or more words
// key on their first equivalence class so nickname variants agree; a single
// word never matches through nicknames, so it keys on itself.
func clientID(tenantID, name string, keys []string) string {
	key := name
	if len(keys) > 0 && len(strings.Fields(name)) > 1 {
		key = keys[0]
	}
	return uuid.NewSHA1(idNamespace, []byte(tenantID+"\x00"+key)).String()
}

// displayName tidies whitespace and title-cases all-lowercase or all-uppercase input.
func displayName(raw string) string {
	fields := strings.Fields(raw)
	joined := strings.Join(fields, " ")
	if joined != strings.ToLower(joined) && joined != strings.ToUpper(joined) {
		return joined
	}
	for i, f := range fields {
		rs := []rune(strings.ToLower(f))
		rs[0] = unicode.ToUpper(rs[0])
		fields[i] = string(rs)
	}
	return strings.Join(fields, " ")
}
