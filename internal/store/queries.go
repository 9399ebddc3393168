package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const cropByName = `
SELECT id, name, category, unit, is_active, created_at
FROM crops
WHERE lower(name) = lower($1)
`

// CropByName looks up a crop by name, ignoring case.
func (q *Queries) CropByName(ctx context.Context, name string) (Crop, error) {
	var c Crop
	err := q.db.QueryRow(ctx, cropByName, name).
		Scan(&c.ID, &c.Name, &c.Category, &c.Unit, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Crop{}, ErrNotFound
	}
	return c, err
}

const createCrop = `
INSERT INTO crops (name, category, unit, is_active)
VALUES ($1, $2, $3, true)
ON CONFLICT DO NOTHING
RETURNING id
`

// CreateCropParams are the caller-supplied columns for a new crop.
type CreateCropParams struct {
	Name     string
	Category string
	Unit     string
}

// CreateCrop inserts a new active crop. Returns ErrAlreadyExists when a
// crop with the same name (ignoring case) is already present.
func (q *Queries) CreateCrop(ctx context.Context, arg CreateCropParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createCrop, arg.Name, arg.Category, arg.Unit).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAlreadyExists
	}
	return id, err
}

const regionByName = `
SELECT id, name, code, is_active, created_at
FROM regions
WHERE lower(name) = lower($1)
`

// RegionByName looks up a region by name, ignoring case.
func (q *Queries) RegionByName(ctx context.Context, name string) (Region, error) {
	var r Region
	err := q.db.QueryRow(ctx, regionByName, name).
		Scan(&r.ID, &r.Name, &r.Code, &r.IsActive, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Region{}, ErrNotFound
	}
	return r, err
}

const createRegion = `
INSERT INTO regions (name, code, is_active)
VALUES ($1, $2, true)
ON CONFLICT DO NOTHING
RETURNING id
`

// CreateRegionParams are the caller-supplied columns for a new region.
type CreateRegionParams struct {
	Name string
	Code string
}

// CreateRegion inserts a new active region. Returns ErrAlreadyExists when
// a region with the same name (ignoring case) is already present.
func (q *Queries) CreateRegion(ctx context.Context, arg CreateRegionParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createRegion, arg.Name, arg.Code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAlreadyExists
	}
	return id, err
}

const marketByName = `
SELECT id, name, region_id, is_active, created_at
FROM markets
WHERE region_id = $1 AND lower(name) = lower($2)
`

// MarketByName looks up a market by name within a region, ignoring case.
func (q *Queries) MarketByName(ctx context.Context, regionID uuid.UUID, name string) (Market, error) {
	var m Market
	err := q.db.QueryRow(ctx, marketByName, regionID, name).
		Scan(&m.ID, &m.Name, &m.RegionID, &m.IsActive, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Market{}, ErrNotFound
	}
	return m, err
}

const createMarket = `
INSERT INTO markets (name, region_id, is_active)
VALUES ($1, $2, true)
ON CONFLICT DO NOTHING
RETURNING id
`

// CreateMarketParams are the caller-supplied columns for a new market.
type CreateMarketParams struct {
	Name     string
	RegionID uuid.UUID
}

// CreateMarket inserts a new active market under a region. Returns
// ErrAlreadyExists when the (region, name) pair is already present.
func (q *Queries) CreateMarket(ctx context.Context, arg CreateMarketParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createMarket, arg.Name, arg.RegionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAlreadyExists
	}
	return id, err
}

const priceEntryExists = `
SELECT EXISTS (
	SELECT 1
	FROM price_entries
	WHERE crop_id = $1
	  AND region_id = $2
	  AND market_id IS NOT DISTINCT FROM $3
	  AND entry_date = $4
)
`

// PriceEntryExists reports whether a fact is already recorded for the
// (crop, region, market) triple on the given calendar day. marketID may
// be nil; NULL market compares equal to NULL.
func (q *Queries) PriceEntryExists(ctx context.Context, cropID, regionID uuid.UUID, marketID *uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, priceEntryExists, cropID, regionID, marketID, day).Scan(&exists)
	return exists, err
}

const createPriceEntry = `
INSERT INTO price_entries (crop_id, region_id, market_id, price, unit, source, entry_date, is_verified)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`

// CreatePriceEntryParams are the caller-supplied columns for a new fact row.
type CreatePriceEntryParams struct {
	CropID     uuid.UUID
	RegionID   uuid.UUID
	MarketID   *uuid.UUID
	Price      pgtype.Numeric
	Unit       string
	Source     string
	EntryDate  time.Time
	IsVerified bool
}

// CreatePriceEntry inserts a new price fact.
func (q *Queries) CreatePriceEntry(ctx context.Context, arg CreatePriceEntryParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createPriceEntry,
		arg.CropID, arg.RegionID, arg.MarketID, arg.Price,
		arg.Unit, arg.Source, arg.EntryDate, arg.IsVerified,
	).Scan(&id)
	return id, err
}

const startSyncRun = `
INSERT INTO sync_runs (status)
VALUES ($1)
RETURNING id
`

// StartSyncRun records the start of an ingestion invocation.
func (q *Queries) StartSyncRun(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, startSyncRun, StatusRunning).Scan(&id)
	return id, err
}

const finishSyncRun = `
UPDATE sync_runs
SET completed_at = now(),
    status = $2,
    records_processed = $3,
    records_inserted = $4,
    records_updated = $5,
    error_message = $6
WHERE id = $1 AND status = $7
`

// FinishSyncRunParams finalize a running sync run.
type FinishSyncRunParams struct {
	ID               uuid.UUID
	Status           string
	RecordsProcessed int32
	RecordsInserted  int32
	RecordsUpdated   int32
	ErrorMessage     *string
}

// FinishSyncRun moves a run from running to a terminal status. A run that
// is missing or already finished returns ErrNotFound; terminal states are
// never overwritten.
func (q *Queries) FinishSyncRun(ctx context.Context, arg FinishSyncRunParams) error {
	tag, err := q.db.Exec(ctx, finishSyncRun,
		arg.ID, arg.Status, arg.RecordsProcessed, arg.RecordsInserted,
		arg.RecordsUpdated, arg.ErrorMessage, StatusRunning,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish sync run %s: %w", arg.ID, ErrNotFound)
	}
	return nil
}

const latestSyncRun = `
SELECT id, started_at, completed_at, status, records_processed, records_inserted, records_updated, error_message
FROM sync_runs
ORDER BY started_at DESC
LIMIT 1
`

// LatestSyncRun returns the most recent sync run, or ErrNotFound when no
// run has ever been recorded.
func (q *Queries) LatestSyncRun(ctx context.Context) (SyncRun, error) {
	var r SyncRun
	err := q.db.QueryRow(ctx, latestSyncRun).Scan(
		&r.ID, &r.StartedAt, &r.CompletedAt, &r.Status,
		&r.RecordsProcessed, &r.RecordsInserted, &r.RecordsUpdated, &r.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return SyncRun{}, ErrNotFound
	}
	return r, err
}
