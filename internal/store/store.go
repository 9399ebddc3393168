// Package store is the PostgreSQL persistence layer for the price feed
// engine: reference catalog rows (crops, regions, markets), price facts,
// and the sync run log. Queries bind to either a pool or a transaction
// through the DBTX interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned by creates that lost to a unique
	// constraint (another writer inserted the same row first).
	ErrAlreadyExists = errors.New("store: already exists")
)

// Sync run statuses. A run moves from StatusRunning to exactly one of
// StatusCompleted or StatusFailed; both are terminal.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Crop is a reference catalog row for a commodity.
type Crop struct {
	ID        uuid.UUID
	Name      string
	Category  string
	Unit      string
	IsActive  bool
	CreatedAt time.Time
}

// Region is a reference catalog row for a geographic region.
type Region struct {
	ID        uuid.UUID
	Name      string
	Code      string
	IsActive  bool
	CreatedAt time.Time
}

// Market is a reference catalog row for a named market within a region.
type Market struct {
	ID        uuid.UUID
	Name      string
	RegionID  uuid.UUID
	IsActive  bool
	CreatedAt time.Time
}

// SyncRun is one audit log entry for a top-level ingestion invocation.
type SyncRun struct {
	ID               uuid.UUID
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           string
	RecordsProcessed int32
	RecordsInserted  int32
	RecordsUpdated   int32
	ErrorMessage     *string
}

// Queries wraps a DBTX with the engine's query set.
type Queries struct {
	db DBTX
}

// New returns Queries bound to the given pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}
