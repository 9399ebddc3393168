// Package ingest drives one feed file through parsing, classification,
// identity resolution, deduplication, and persistence, inside a single
// bounded transaction, and records every top-level invocation as an
// auditable sync run.
package ingest

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokodata/pricefeed/internal/config"
	"github.com/sokodata/pricefeed/internal/store"
)

// Source supplies the bytes for a scheduled sync. Fetching is an
// external concern (scraper, upload, object store); the engine only
// consumes the result. Fetch runs before the transactional region.
type Source interface {
	Fetch(ctx context.Context) (data []byte, filename string, err error)
}

// Summary is the aggregate outcome of one processed file.
//
// Inserted counts new facts; Skipped counts rows dropped by validation
// or same-day dedup; Errors counts rows that hit an unexpected fault and
// were rolled back individually. On a fatal parse or transaction failure
// no summary is returned at all: provisional counts are discarded along
// with the rolled-back rows.
type Summary struct {
	Inserted  int
	Skipped   int
	Errors    int
	TotalRows int
}

// Service is the ingestion engine. One Service may process manual
// uploads and scheduled syncs concurrently; unique constraints on the
// reference tables arbitrate racing batches.
type Service struct {
	pool *pgxpool.Pool
	cfg  config.IngestConfig
	src  Source
	runs runLog
}

// New returns a Service over the given pool. src may be nil when the
// caller only uses ProcessFile directly.
func New(pool *pgxpool.Pool, cfg config.IngestConfig, src Source) *Service {
	return &Service{pool: pool, cfg: cfg, src: src, runs: store.New(pool)}
}
