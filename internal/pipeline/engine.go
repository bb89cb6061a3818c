// Package pipeline drives the reconciliation operations over whole batches:
// calendar synchronization, document ingestion and orphan sweeps. Each batch
// loads one tenant snapshot, fans items out over a bounded worker pool and
// aggregates an outcome report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/calsync"
	"github.com/starford/casebook/internal/content"
	"github.com/starford/casebook/internal/extract"
	"github.com/starford/casebook/internal/linker"
	"github.com/starford/casebook/internal/metrics"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/orphans"
	"github.com/starford/casebook/internal/resolver"
	"github.com/starford/casebook/internal/snapshot"
	"github.com/starford/casebook/internal/store"
)

// Notifier receives a summary after each completed operation.
type Notifier interface {
	Notify(kind string, data any)
}

// Notification kinds.
const (
	EventCalendarSynced = "calendar.synced"
	EventBatchProcessed = "batch.processed"
	EventOrphansSwept   = "orphans.swept"
)

// Engine runs reconciliation operations against a repository.
type Engine struct {
	store     store.Repository
	calendar  calendar.Provider
	extractor extract.Service
	validator *extract.Validator
	sealer    content.Sealer
	metrics   *metrics.Metrics
	notifier  Notifier
	logger    *slog.Logger

	nicknames *resolver.Nicknames
	blacklist *resolver.Blacklist
	loc       *time.Location
	duration  time.Duration
	workers   int
	timeout   time.Duration
	sweep     bool
	now       func() time.Time

	resolver *resolver.Resolver
	sync     *calsync.Synchronizer
	linker   *linker.Linker
	orphans  *orphans.Reconciler
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of items processed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCalendar sets the calendar provider used by SyncCalendar.
func WithCalendar(p calendar.Provider) Option {
	return func(e *Engine) { e.calendar = p }
}

// WithExtractor replaces the heuristic extraction service.
func WithExtractor(s extract.Service) Option {
	return func(e *Engine) { e.extractor = s }
}

// WithSealer sets the sealer applied to record content at rest.
func WithSealer(s content.Sealer) Option {
	return func(e *Engine) { e.sealer = s }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNotifier sets the receiver of operation summaries.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLocation sets the tenant time zone used for civil-date linking.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithNicknames replaces the built-in nickname table.
func WithNicknames(n *resolver.Nicknames) Option {
	return func(e *Engine) { e.nicknames = n }
}

// WithBlacklist replaces the default non-client pattern list.
func WithBlacklist(b *resolver.Blacklist) Option {
	return func(e *Engine) { e.blacklist = b }
}

// WithDefaultDuration sets the duration of calendar events without an end.
func WithDefaultDuration(d time.Duration) Option {
	return func(e *Engine) { e.duration = d }
}

// WithBatchTimeout bounds every batch operation.
func WithBatchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithLinkAfterSync toggles the orphan sweep run after SyncCalendar and
// ProcessBatch.
func WithLinkAfterSync(on bool) Option {
	return func(e *Engine) { e.sweep = on }
}

// WithClock overrides the time source for created-at stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over repo.
func New(repo store.Repository, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    repo,
		logger:   logger,
		loc:      time.UTC,
		duration: calsync.DefaultDuration,
		workers:  runtime.NumCPU(),
		sweep:    true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.extractor == nil {
		e.extractor = extract.NewHeuristic()
	}
	if e.sealer == nil {
		e.sealer = content.Envelope{}
	}
	v, err := extract.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	e.validator = v

	ropts := []resolver.Option{resolver.WithClock(e.now)}
	if e.blacklist != nil {
		ropts = append(ropts, resolver.WithBlacklist(e.blacklist))
	}
	e.resolver = resolver.New(repo, logger, ropts...)
	e.sync = calsync.New(repo, e.resolver, logger,
		calsync.WithDefaultDuration(e.duration),
		calsync.WithClock(e.now))
	e.linker = linker.New(repo, e.loc, logger)
	e.orphans = orphans.New(repo, e.linker, logger)
	return e, nil
}

// Location returns the tenant time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// LinkOrphanedRecords re-attempts linking for every unlinked record of the
// tenant against the current session set.
func (e *Engine) LinkOrphanedRecords(ctx context.Context, tenantID string) (orphans.Report, error) {
	start := e.now()
	ctx, cancel := e.bound(ctx)
	defer cancel()

	snap, err := e.load(ctx, tenantID)
	if err != nil {
		return orphans.Report{}, err
	}
	rep, err := e.sweepWith(ctx, snap)
	e.metrics.ObserveBatch("link_orphans", start)
	if err != nil {
		return rep, err
	}
	e.notify(EventOrphansSwept, map[string]any{"tenant_id": tenantID, "linked": rep.Linked, "swept": len(rep.Details)})
	return rep, nil
}

func (e *Engine) sweepWith(ctx context.Context, snap *snapshot.Snapshot) (orphans.Report, error) {
	rep, err := e.orphans.Sweep(ctx, snap)
	for _, d := range rep.Details {
		e.metrics.Link(string(d.Outcome))
	}
	if err != nil {
		return rep, fmt.Errorf("pipeline: %w", err)
	}
	return rep, nil
}

// RecordContent recovers the stored content of a record. A missing record is
// ErrNotFound; any decoding failure yields an unavailable Content rather than
// an error.
func (e *Engine) RecordContent(ctx context.Context, tenantID, recordID string) (content.Content, error) {
	if _, err := e.store.GetRecord(ctx, tenantID, recordID); err != nil {
		return content.Content{}, fmt.Errorf("pipeline: record content: %w", err)
	}
	sealed, err := e.store.RecordContent(ctx, tenantID, recordID)
	if err != nil {
		if isSystemic(err) {
			return content.Content{}, fmt.Errorf("pipeline: record content: %w", err)
		}
		e.logger.Warn("pipeline: content unreadable",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()))
		return content.Unavailable("content unreadable"), nil
	}
	c := content.Recover(e.sealer, sealed)
	if !c.Available {
		e.logger.Warn("pipeline: content unavailable",
			slog.String("record_id", recordID),
			slog.String("reason", c.Reason))
	}
	return c, nil
}

// ReviewQueue lists the records waiting for manual review, oldest first.
func (e *Engine) ReviewQueue(ctx context.Context, tenantID string) ([]models.Record, error) {
	recs, err := e.store.ListRecordsByStatus(ctx, tenantID, models.LinkNeedsReview)
	if err != nil {
		return nil, fmt.Errorf("pipeline: review queue: %w", err)
	}
	e.metrics.ReviewQueue(len(recs))
	return recs, nil
}

// ResolveName reports how name would resolve for the tenant without creating
// anything.
func (e *Engine) ResolveName(ctx context.Context, tenantID, name string) (resolver.Resolution, error) {
	snap, err := e.load(ctx, tenantID)
	if err != nil {
		return resolver.Resolution{}, err
	}
	return e.resolver.Lookup(snap.Clients, name), nil
}

func (e *Engine) load(ctx context.Context, tenantID string) (*snapshot.Snapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("pipeline: tenant id required: %w", apperr.ErrInvalidInput)
	}
	snap, err := snapshot.Load(ctx, e.store, tenantID, e.nicknames)
	if err != nil {
		if isSystemic(err) {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		return nil, apperr.Systemic("pipeline: load snapshot", err)
	}
	return snap, nil
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) notify(kind string, data any) {
	if e.notifier != nil {
		e.notifier.Notify(kind, data)
	}
}

// isSystemic reports whether err should abort the remaining batch.
func isSystemic(err error) bool {
	return errors.Is(err, apperr.ErrSystemic) || store.IsUnavailable(err)
}
