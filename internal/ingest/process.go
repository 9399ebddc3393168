package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sokodata/pricefeed/internal/catalog"
	"github.com/sokodata/pricefeed/internal/feed"
	"github.com/sokodata/pricefeed/internal/logging"
	"github.com/sokodata/pricefeed/internal/store"
)

// rowStore is the per-row persistence surface: resolve the entity
// triple, check the same-day window, insert the fact. Implemented by
// txStore over a live transaction; tests substitute an in-memory fake.
type rowStore interface {
	ResolveCrop(ctx context.Context, name string) (store.Crop, error)
	ResolveRegion(ctx context.Context, name string) (uuid.UUID, error)
	ResolveMarket(ctx context.Context, name string, regionID uuid.UUID) (*uuid.UUID, error)
	PriceEntryExists(ctx context.Context, cropID, regionID uuid.UUID, marketID *uuid.UUID, day time.Time) (bool, error)
	CreatePriceEntry(ctx context.Context, arg store.CreatePriceEntryParams) (uuid.UUID, error)
}

// execer is the slice of pgx.Tx needed for savepoint bookkeeping.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// txStore binds the resolver and query layer to one transaction.
type txStore struct {
	*catalog.Resolver
	*store.Queries
}

// ProcessFile ingests one feed file. All rows run inside a single
// transaction bounded by the configured timeout; row-level failures are
// isolated with savepoints, while a parse failure, timeout, or fault at
// the transaction boundary rolls back the whole batch and returns an
// error with no partial summary.
func (s *Service) ProcessFile(ctx context.Context, data []byte, filename string) (Summary, error) {
	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return Summary{}, fmt.Errorf("%s exceeds %d byte limit", filename, s.cfg.MaxFileSize)
	}

	doc, err := feed.Parse(data, filename)
	if err != nil {
		return Summary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := store.New(tx)
	sink := &txStore{Resolver: catalog.NewResolver(q), Queries: q}

	logger := logging.WithFields(ctx, "file", filename)
	summary, err := processRows(ctx, tx, sink, doc.Rows, s.cfg.SourceTag, logger)
	if err != nil {
		return Summary{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Summary{}, fmt.Errorf("commit: %w", err)
	}

	logger.Info("file processed",
		"total_rows", summary.TotalRows,
		"inserted", summary.Inserted,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
	)
	return summary, nil
}

// processRows walks the ordered row sequence. Rows are strictly
// sequential: a later row may reference a crop or market created by an
// earlier row in the same file, and in-transaction visibility makes that
// correct without extra locking.
func processRows(ctx context.Context, tx execer, rs rowStore, rows []feed.Row, sourceTag string, logger *slog.Logger) (Summary, error) {
	summary := Summary{TotalRows: len(rows)}

	for i, row := range rows {
		rec, reason, ok := extractRecord(row)
		if !ok {
			summary.Skipped++
			logger.Debug("row skipped", "line", row.Line, "reason", reason)
			continue
		}

		// Savepoint per row: a fault while resolving or inserting undoes
		// only this row, never the rows already applied.
		sp := fmt.Sprintf("row_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return Summary{}, fmt.Errorf("savepoint line %d: %w", row.Line, err)
		}

		inserted, err := processRow(ctx, rs, rec, sourceTag)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return Summary{}, fmt.Errorf("rollback savepoint line %d: %w", row.Line, rbErr)
			}
			summary.Errors++
			logger.Warn("row failed", "line", row.Line, "crop", rec.Crop, "region", rec.Region, "error", err)
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return Summary{}, fmt.Errorf("release savepoint line %d: %w", row.Line, err)
		}

		if inserted {
			summary.Inserted++
		} else {
			summary.Skipped++
			logger.Debug("row skipped", "line", row.Line, "reason", "duplicate for day")
		}
	}

	return summary, nil
}

// record is one validated row ready for resolution and insertion.
type record struct {
	Crop   string
	Region string
	Market string
	Price  decimal.Decimal
	Date   time.Time
}

// extractRecord pulls the aliased fields out of a row and validates
// them. A false return means the row is counted as skipped: missing crop
// or region, a non-numeric or non-positive price, or a date that does
// not parse. An unparsable date is rejected, not defaulted to today.
func extractRecord(row feed.Row) (record, string, bool) {
	rec := record{
		Crop:   row.Crop(),
		Region: row.Region(),
		Market: row.Market(),
	}

	if rec.Crop == "" {
		return record{}, "missing crop name", false
	}
	if rec.Region == "" {
		return record{}, "missing region name", false
	}

	price, ok := feed.ParsePrice(row.Price())
	if !ok {
		return record{}, fmt.Sprintf("unparseable price %q", row.Price()), false
	}
	if !price.IsPositive() {
		return record{}, fmt.Sprintf("non-positive price %q", row.Price()), false
	}
	rec.Price = price

	date, ok := feed.ParseDate(row.Date())
	if !ok {
		return record{}, fmt.Sprintf("invalid date %q", row.Date()), false
	}
	rec.Date = date

	return rec, "", true
}

// processRow resolves the entity triple and inserts the fact unless one
// is already recorded for the same triple and day. Returns whether a new
// fact was inserted.
func processRow(ctx context.Context, rs rowStore, rec record, sourceTag string) (bool, error) {
	crop, err := rs.ResolveCrop(ctx, rec.Crop)
	if err != nil {
		return false, err
	}

	regionID, err := rs.ResolveRegion(ctx, rec.Region)
	if err != nil {
		return false, err
	}

	marketID, err := rs.ResolveMarket(ctx, rec.Market, regionID)
	if err != nil {
		return false, err
	}

	exists, err := rs.PriceEntryExists(ctx, crop.ID, regionID, marketID, rec.Date)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		return false, nil
	}

	// The unit comes from the catalog row, not rederived from the raw
	// name, so operator edits to a crop's unit carry into new facts.
	_, err = rs.CreatePriceEntry(ctx, store.CreatePriceEntryParams{
		CropID:    crop.ID,
		RegionID:  regionID,
		MarketID:  marketID,
		Price:     feed.Numeric(rec.Price),
		Unit:      crop.Unit,
		Source:    sourceTag,
		EntryDate: rec.Date,
	})
	if err != nil {
		return false, fmt.Errorf("insert price entry: %w", err)
	}
	return true, nil
}
