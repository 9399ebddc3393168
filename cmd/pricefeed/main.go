package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/sokodata/pricefeed/internal/config"
	"github.com/sokodata/pricefeed/internal/ingest"
	"github.com/sokodata/pricefeed/internal/logging"
	"github.com/sokodata/pricefeed/internal/store"
)

func main() {
	filePath := flag.String("file", "", "ingest a feed file as a full sync run")
	status := flag.Bool("status", false, "print the latest sync run status")
	migrateOnly := flag.Bool("migrate", false, "apply schema migrations and exit")
	flag.Parse()

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"db_max_conns", cfg.Database.MaxConns,
		"ingest_tx_timeout", cfg.Ingest.TxTimeout,
		"ingest_max_file_size", cfg.Ingest.MaxFileSize,
	)

	if *migrateOnly {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied")
		return
	}

	if *filePath == "" && !*status {
		fmt.Fprintln(os.Stderr, "usage: pricefeed -file <feed.csv|feed.xlsx> | -status | -migrate")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	switch {
	case *status:
		svc := ingest.New(pool, cfg.Ingest, nil)
		st, err := svc.SyncStatus(ctx)
		if err != nil {
			slog.Error("sync status", "error", err)
			os.Exit(1)
		}
		if st.LastSyncAt == nil {
			fmt.Println("no sync runs recorded")
			return
		}
		fmt.Printf("last sync:      %s\n", st.LastSyncAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("records synced: %d\n", st.RecordsSynced)
		fmt.Printf("running:        %v\n", st.IsRunning)

	default:
		svc := ingest.New(pool, cfg.Ingest, fileSource{path: *filePath})
		summary, err := svc.TriggerSync(ctx)
		if err != nil {
			slog.Error("sync failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("total rows: %d\ninserted:   %d\nskipped:    %d\nerrors:     %d\n",
			summary.TotalRows, summary.Inserted, summary.Skipped, summary.Errors)
	}
}

// fileSource feeds a local file into the engine, standing in for the
// external scraper or upload that normally supplies the bytes.
type fileSource struct {
	path string
}

func (f fileSource) Fetch(context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, filepath.Base(f.path), nil
}
