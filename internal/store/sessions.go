package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

const sessionColumns = `id, tenant_id, client_id, scheduled_at, duration_seconds, external_event_id, provenance, created_at, deleted_at`

// CreateSession inserts a session. It returns false without error when a live
// session with the same external event id already exists.
func (db *DB) CreateSession(ctx context.Context, s *models.Session) (bool, error) {
	if s.Provenance == "" {
		s.Provenance = models.ProvenanceManual
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`), s.ID, s.TenantID, s.ClientID, s.ScheduledAt.UTC(), int64(s.Duration/time.Second),
		nullString(s.ExternalEventID), string(s.Provenance), s.CreatedAt.UTC(), nullTime(s.DeletedAt))
	if err != nil {
		return false, wrap("create session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("create session", err)
	}
	return n > 0, nil
}

// GetSession returns a live session.
func (db *DB) GetSession(ctx context.Context, tenantID, id string) (*models.Session, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL
	`), tenantID, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get session", err)
	}
	return s, nil
}

// SessionByExternalID returns the live session synchronized from the given
// calendar event.
func (db *DB) SessionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Session, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = ? AND external_event_id = ? AND deleted_at IS NULL
	`), tenantID, externalID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrap("session by external id", err)
	}
	return s, nil
}

// ListSessions returns every live session of the tenant.
func (db *DB) ListSessions(ctx context.Context, tenantID string) ([]models.Session, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = ? AND deleted_at IS NULL
		ORDER BY scheduled_at, created_at, id
	`), tenantID)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrap("scan session", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// CountSessions returns the number of live sessions of the tenant.
func (db *DB) CountSessions(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, db.q(`
		SELECT count(*) FROM sessions WHERE tenant_id = ? AND deleted_at IS NULL
	`), tenantID).Scan(&n)
	if err != nil {
		return 0, wrap("count sessions", err)
	}
	return n, nil
}

// DeleteSession soft-deletes a session, freeing its external event id.
func (db *DB) DeleteSession(ctx context.Context, tenantID, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE sessions SET deleted_at = ?
		WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL
	`), at.UTC(), tenantID, id)
	if err != nil {
		return wrap("delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func scanSession(s rowScanner) (*models.Session, error) {
	var (
		sess       models.Session
		seconds    int64
		externalID sql.NullString
		provenance string
		deletedAt  sql.NullTime
	)
	if err := s.Scan(&sess.ID, &sess.TenantID, &sess.ClientID, &sess.ScheduledAt, &seconds,
		&externalID, &provenance, &sess.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	sess.ScheduledAt = sess.ScheduledAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.Duration = time.Duration(seconds) * time.Second
	sess.ExternalEventID = externalID.String
	sess.Provenance = models.Provenance(provenance)
	sess.DeletedAt = timePtr(deletedAt)
	return &sess, nil
}
