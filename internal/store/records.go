package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

const recordColumns = `id, tenant_id, kind, client_id, session_id, explicit_session_id, date_hint, date_hint_has_time,
	link_status, review_reason, source, checksum, candidate_name, created_at, updated_at`

// InsertRecord stores a new record and its sealed content. It returns false
// without error when a record with the same content checksum already exists.
func (db *DB) InsertRecord(ctx context.Context, r *models.Record, content []byte) (bool, error) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.LinkStatus == "" {
		r.LinkStatus = models.LinkUnlinked
	}

	var (
		hint    sql.NullTime
		hasTime bool
	)
	if r.DateHint != nil {
		hint = sql.NullTime{Time: r.DateHint.At.UTC(), Valid: true}
		hasTime = r.DateHint.HasTime
	}

	res, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO records (`+recordColumns+`, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`), r.ID, r.TenantID, string(r.Kind), nullString(r.ClientID), nullString(r.SessionID),
		nullString(r.ExplicitSessionID), hint, hasTime, string(r.LinkStatus), r.ReviewReason,
		r.Source, r.Checksum, r.CandidateName, r.CreatedAt.UTC(), r.UpdatedAt, content)
	if err != nil {
		return false, wrap("insert record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("insert record", err)
	}
	return n > 0, nil
}

// GetRecord returns one record without its content.
func (db *DB) GetRecord(ctx context.Context, tenantID, id string) (*models.Record, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT `+recordColumns+` FROM records WHERE tenant_id = ? AND id = ?
	`), tenantID, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get record", err)
	}
	return r, nil
}

// RecordByChecksum returns the record ingested from content with the given checksum.
func (db *DB) RecordByChecksum(ctx context.Context, tenantID, checksum string) (*models.Record, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT `+recordColumns+` FROM records WHERE tenant_id = ? AND checksum = ?
	`), tenantID, checksum)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrap("record by checksum", err)
	}
	return r, nil
}

// RecordContent returns the sealed content bytes of a record.
func (db *DB) RecordContent(ctx context.Context, tenantID, id string) ([]byte, error) {
	var content []byte
	err := db.conn.QueryRowContext(ctx, db.q(`
		SELECT content FROM records WHERE tenant_id = ? AND id = ?
	`), tenantID, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrap("record content", err)
	}
	return content, nil
}

// ListUnlinkedRecords returns every record of the tenant that has no session,
// oldest first.
func (db *DB) ListUnlinkedRecords(ctx context.Context, tenantID string) ([]models.Record, error) {
	return db.listRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE tenant_id = ? AND session_id IS NULL
		ORDER BY created_at, id
	`, tenantID)
}

// ListRecordsByStatus returns the tenant's records in the given link status.
func (db *DB) ListRecordsByStatus(ctx context.Context, tenantID string, status models.LinkStatus) ([]models.Record, error) {
	return db.listRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE tenant_id = ? AND link_status = ?
		ORDER BY created_at, id
	`, tenantID, string(status))
}

func (db *DB) listRecords(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(query), args...)
	if err != nil {
		return nil, wrap("list records", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("scan record", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// LinkRecord attaches a record to a session inside one transaction. The write
// only happens while the record is still unlinked and the session is live;
// otherwise it returns false. clientID fills in the client of a record that
// has none.
func (db *DB) LinkRecord(ctx context.Context, tenantID, recordID, sessionID, clientID string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, wrap("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var live int
	err = tx.QueryRowContext(ctx, db.q(`
		SELECT count(*) FROM sessions WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL
	`), tenantID, sessionID).Scan(&live)
	if err != nil {
		return false, wrap("link record: check session", err)
	}
	if live == 0 {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, db.q(`
		UPDATE records
		SET session_id = ?, client_id = COALESCE(NULLIF(client_id, ''), ?),
			link_status = ?, review_reason = '', updated_at = ?
		WHERE tenant_id = ? AND id = ? AND session_id IS NULL
	`), sessionID, nullString(clientID), string(models.LinkLinked), time.Now().UTC(), tenantID, recordID)
	if err != nil {
		return false, wrap("link record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("link record", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, wrap("link record: commit", err)
	}
	return true, nil
}

// MarkNeedsReview flags a still-unlinked record for manual review.
func (db *DB) MarkNeedsReview(ctx context.Context, tenantID, recordID, reason string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE records
		SET link_status = ?, review_reason = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND session_id IS NULL
	`), string(models.LinkNeedsReview), reason, time.Now().UTC(), tenantID, recordID)
	if err != nil {
		return wrap("mark needs review", err)
	}
	return nil
}

func scanRecord(s rowScanner) (*models.Record, error) {
	var (
		r                                    models.Record
		kind, status                         string
		clientID, sessionID, explicitSession sql.NullString
		hint                                 sql.NullTime
		hasTime                              bool
	)
	if err := s.Scan(&r.ID, &r.TenantID, &kind, &clientID, &sessionID, &explicitSession, &hint, &hasTime,
		&status, &r.ReviewReason, &r.Source, &r.Checksum, &r.CandidateName, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = models.RecordKind(kind)
	r.LinkStatus = models.LinkStatus(status)
	r.ClientID = clientID.String
	r.SessionID = sessionID.String
	r.ExplicitSessionID = explicitSession.String
	if hint.Valid {
		r.DateHint = &models.DateHint{At: hint.Time.UTC(), HasTime: hasTime}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
