// Package testutil provides shared test helpers for databases, inboxes and
// seeded tenant data.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/storage"
	"github.com/starford/casebook/internal/store"
)

// Tenant is the tenant id used by seeded fixtures.
const Tenant = "t1"

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "casebook-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary document inbox.
func TestInbox(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	inbox, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, inbox
}

// WriteInboxFile drops a document into an inbox directory, creating parent
// folders.
func WriteInboxFile(t *testing.T, dir, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// SeedClient inserts an active client created at createdAt.
func SeedClient(t *testing.T, db *store.DB, id, name string, createdAt time.Time) models.Client {
	t.Helper()
	c := models.Client{ID: id, TenantID: Tenant, DisplayName: name, CreatedAt: createdAt}
	if err := db.CreateClient(context.Background(), &c); err != nil {
		t.Fatalf("seed client %s: %v", id, err)
	}
	return c
}

// SeedDeletedClient inserts a client and soft-deletes it.
func SeedDeletedClient(t *testing.T, db *store.DB, id, name string, createdAt time.Time) models.Client {
	t.Helper()
	c := SeedClient(t, db, id, name, createdAt)
	if err := db.DeleteClient(context.Background(), Tenant, id, createdAt.Add(time.Hour)); err != nil {
		t.Fatalf("delete client %s: %v", id, err)
	}
	return c
}

// SeedSession inserts a manual session for a client.
func SeedSession(t *testing.T, db *store.DB, id, clientID string, at, createdAt time.Time) models.Session {
	t.Helper()
	s := models.Session{
		ID:          id,
		TenantID:    Tenant,
		ClientID:    clientID,
		ScheduledAt: at,
		Duration:    50 * time.Minute,
		CreatedAt:   createdAt,
	}
	ok, err := db.CreateSession(context.Background(), &s)
	if err != nil || !ok {
		t.Fatalf("seed session %s: created=%v err=%v", id, ok, err)
	}
	return s
}

// SeedRecord inserts an unlinked record.
func SeedRecord(t *testing.T, db *store.DB, r models.Record) models.Record {
	t.Helper()
	if r.TenantID == "" {
		r.TenantID = Tenant
	}
	if r.Checksum == "" {
		r.Checksum = r.ID
	}
	if r.Kind == "" {
		r.Kind = models.KindDocument
	}
	ok, err := db.InsertRecord(context.Background(), &r, nil)
	if err != nil || !ok {
		t.Fatalf("seed record %s: inserted=%v err=%v", r.ID, ok, err)
	}
	return r
}
