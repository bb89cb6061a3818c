package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/casebook/internal/models"
)

func postgresIntegrationDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CASEBOOK_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set CASEBOOK_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	return dsn
}

func TestPostgresIntegrationSessionAndLinkRoundTrip(t *testing.T) {
	dsn := postgresIntegrationDSN(t)
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if !db.postgres {
		t.Fatal("expected postgres dialect")
	}

	ctx := context.Background()
	tenantID := fmt.Sprintf("it-%d", time.Now().UnixNano())
	c := &models.Client{ID: tenantID + "-c1", TenantID: tenantID, DisplayName: "John Best"}
	if err := db.CreateClient(ctx, c); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	at := time.Date(2024, 12, 5, 15, 0, 0, 0, time.UTC)
	s := &models.Session{ID: tenantID + "-s1", TenantID: tenantID, ClientID: c.ID, ScheduledAt: at, ExternalEventID: "g1"}
	if created, err := db.CreateSession(ctx, s); err != nil || !created {
		t.Fatalf("CreateSession: created=%v err=%v", created, err)
	}
	dup := &models.Session{ID: tenantID + "-s2", TenantID: tenantID, ClientID: c.ID, ScheduledAt: at, ExternalEventID: "g1"}
	if created, err := db.CreateSession(ctx, dup); err != nil || created {
		t.Fatalf("duplicate CreateSession: created=%v err=%v", created, err)
	}

	r := &models.Record{ID: tenantID + "-r1", TenantID: tenantID, Kind: models.KindDocument, ClientID: c.ID, Checksum: tenantID}
	if _, err := db.InsertRecord(ctx, r, []byte("x")); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	linked, err := db.LinkRecord(ctx, tenantID, r.ID, s.ID, "")
	if err != nil || !linked {
		t.Fatalf("LinkRecord: linked=%v err=%v", linked, err)
	}
}
