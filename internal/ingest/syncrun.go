package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sokodata/pricefeed/internal/logging"
	"github.com/sokodata/pricefeed/internal/store"
)

// runLog is the sync-run persistence surface. Implemented by
// *store.Queries; tests substitute a recording fake.
type runLog interface {
	StartSyncRun(ctx context.Context) (uuid.UUID, error)
	FinishSyncRun(ctx context.Context, arg store.FinishSyncRunParams) error
	LatestSyncRun(ctx context.Context) (store.SyncRun, error)
}

// Status summarizes the most recent sync run for operational visibility.
type Status struct {
	LastSyncAt    *time.Time
	RecordsSynced int32
	IsRunning     bool
}

// TriggerSync runs one complete ingestion: start a sync run, fetch the
// feed bytes from the configured source, process the file, finalize the
// run. The run is finalized exactly once; failures on the fetch, parse,
// or transaction path mark it failed with the error recorded.
func (s *Service) TriggerSync(ctx context.Context) (Summary, error) {
	if s.src == nil {
		return Summary{}, fmt.Errorf("no feed source configured")
	}
	return runSync(ctx, s.runs, s.src, s.ProcessFile, logging.WithFields(ctx))
}

func runSync(ctx context.Context, runs runLog, src Source, process func(context.Context, []byte, string) (Summary, error), logger *slog.Logger) (Summary, error) {
	runID, err := runs.StartSyncRun(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("start sync run: %w", err)
	}

	logger = logger.With("sync_run", runID)
	logger.Info("sync started")

	var summary Summary
	var runErr error
	defer func() {
		// Finalize even when the batch context is already dead.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := runs.FinishSyncRun(finishCtx, finishParams(runID, summary, runErr)); err != nil {
			logger.Error("finalize sync run", "error", err)
		}
	}()

	data, filename, err := src.Fetch(ctx)
	if err != nil {
		runErr = fmt.Errorf("fetch feed: %w", err)
		return Summary{}, runErr
	}

	summary, runErr = process(ctx, data, filename)
	if runErr != nil {
		return Summary{}, runErr
	}

	logger.Info("sync completed", "inserted", summary.Inserted, "skipped", summary.Skipped)
	return summary, nil
}

// finishParams maps a batch outcome onto the terminal sync run record.
// A failed run keeps zero counts: its rows were rolled back.
func finishParams(runID uuid.UUID, summary Summary, runErr error) store.FinishSyncRunParams {
	arg := store.FinishSyncRunParams{
		ID:     runID,
		Status: store.StatusCompleted,
	}
	if runErr != nil {
		arg.Status = store.StatusFailed
		msg := runErr.Error()
		arg.ErrorMessage = &msg
		return arg
	}
	arg.RecordsProcessed = int32(summary.TotalRows)
	arg.RecordsInserted = int32(summary.Inserted)
	return arg
}

// SyncStatus reports on the most recent sync run. A catalog that has
// never synced reports a zero Status rather than an error.
func (s *Service) SyncStatus(ctx context.Context) (Status, error) {
	run, err := s.runs.LatestSyncRun(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("latest sync run: %w", err)
	}
	return statusFromRun(run), nil
}

func statusFromRun(run store.SyncRun) Status {
	st := Status{
		RecordsSynced: run.RecordsInserted,
		IsRunning:     run.Status == store.StatusRunning,
	}
	if run.CompletedAt != nil {
		st.LastSyncAt = run.CompletedAt
	} else {
		t := run.StartedAt
		st.LastSyncAt = &t
	}
	return st
}
