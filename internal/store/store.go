package store

import (
	"context"
	"time"

	"github.com/starford/casebook/internal/models"
)

// Repository defines the persistence operations used by the reconciliation
// engine. Consumers should depend on this interface rather than the concrete
// *DB type to facilitate testing with fakes.
type Repository interface {
	CreateClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, tenantID, id string) (*models.Client, error)
	ListClients(ctx context.Context, tenantID string) ([]models.Client, error)
	DeleteClient(ctx context.Context, tenantID, id string, at time.Time) error

	CreateSession(ctx context.Context, s *models.Session) (bool, error)
	GetSession(ctx context.Context, tenantID, id string) (*models.Session, error)
	SessionByExternalID(ctx context.Context, tenantID, externalID string) (*models.Session, error)
	ListSessions(ctx context.Context, tenantID string) ([]models.Session, error)
	CountSessions(ctx context.Context, tenantID string) (int, error)
	DeleteSession(ctx context.Context, tenantID, id string, at time.Time) error

	InsertRecord(ctx context.Context, r *models.Record, content []byte) (bool, error)
	GetRecord(ctx context.Context, tenantID, id string) (*models.Record, error)
	RecordByChecksum(ctx context.Context, tenantID, checksum string) (*models.Record, error)
	RecordContent(ctx context.Context, tenantID, id string) ([]byte, error)
	ListUnlinkedRecords(ctx context.Context, tenantID string) ([]models.Record, error)
	ListRecordsByStatus(ctx context.Context, tenantID string, status models.LinkStatus) ([]models.Record, error)
	LinkRecord(ctx context.Context, tenantID, recordID, sessionID, clientID string) (bool, error)
	MarkNeedsReview(ctx context.Context, tenantID, recordID, reason string) error

	Ping() error
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
