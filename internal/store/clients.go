package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

const clientColumns = `id, tenant_id, display_name, normalized_name, status, provenance, created_at, deleted_at`

// CreateClient inserts a new client row.
func (db *DB) CreateClient(ctx context.Context, c *models.Client) error {
	if c.NormalizedName == "" {
		c.NormalizedName = models.NormalizeName(c.DisplayName)
	}
	if c.Status == "" {
		c.Status = models.ClientActive
	}
	if c.Provenance == "" {
		c.Provenance = models.ProvenanceManual
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), c.ID, c.TenantID, c.DisplayName, c.NormalizedName, string(c.Status), string(c.Provenance),
		c.CreatedAt.UTC(), nullTime(c.DeletedAt))
	if err != nil {
		return wrap("create client", err)
	}
	return nil
}

// GetClient returns one client, including soft-deleted ones.
func (db *DB) GetClient(ctx context.Context, tenantID, id string) (*models.Client, error) {
	row := db.conn.QueryRowContext(ctx, db.q(`
		SELECT `+clientColumns+` FROM clients WHERE tenant_id = ? AND id = ?
	`), tenantID, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get client", err)
	}
	return c, nil
}

// ListClients returns every client of the tenant, deleted ones included,
// ordered by creation time.
func (db *DB) ListClients(ctx context.Context, tenantID string) ([]models.Client, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT `+clientColumns+` FROM clients
		WHERE tenant_id = ?
		ORDER BY created_at, id
	`), tenantID)
	if err != nil {
		return nil, wrap("list clients", err)
	}
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, wrap("scan client", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteClient soft-deletes a client.
func (db *DB) DeleteClient(ctx context.Context, tenantID, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE clients SET status = ?, deleted_at = ?
		WHERE tenant_id = ? AND id = ? AND status <> ?
	`), string(models.ClientDeleted), at.UTC(), tenantID, id, string(models.ClientDeleted))
	if err != nil {
		return wrap("delete client", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(s rowScanner) (*models.Client, error) {
	var (
		c                  models.Client
		status, provenance string
		deletedAt          sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.TenantID, &c.DisplayName, &c.NormalizedName, &status, &provenance, &c.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	c.Status = models.ClientStatus(status)
	c.Provenance = models.Provenance(provenance)
	c.CreatedAt = c.CreatedAt.UTC()
	c.DeletedAt = timePtr(deletedAt)
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
