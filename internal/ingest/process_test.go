package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodata/pricefeed/internal/catalog"
	"github.com/sokodata/pricefeed/internal/feed"
	"github.com/sokodata/pricefeed/internal/store"
)

// memSink is an in-memory rowStore: reference rows keyed by lowercased
// name, facts keyed by the dedup quadruple.
type memSink struct {
	crops   map[string]store.Crop
	regions map[string]uuid.UUID
	markets map[string]uuid.UUID
	facts   map[string]store.CreatePriceEntryParams

	failInsertFor string // crop name that makes CreatePriceEntry fail
}

func newMemSink() *memSink {
	return &memSink{
		crops:   make(map[string]store.Crop),
		regions: make(map[string]uuid.UUID),
		markets: make(map[string]uuid.UUID),
		facts:   make(map[string]store.CreatePriceEntryParams),
	}
}

func resolve(m map[string]uuid.UUID, name string) uuid.UUID {
	key := strings.ToLower(name)
	if id, ok := m[key]; ok {
		return id
	}
	id := uuid.New()
	m[key] = id
	return id
}

func (m *memSink) ResolveCrop(_ context.Context, name string) (store.Crop, error) {
	key := strings.ToLower(name)
	if c, ok := m.crops[key]; ok {
		return c, nil
	}
	category := catalog.Classify(name)
	c := store.Crop{
		ID:       uuid.New(),
		Name:     name,
		Category: string(category),
		Unit:     catalog.DefaultUnit(category, name),
		IsActive: true,
	}
	m.crops[key] = c
	return c, nil
}

func (m *memSink) ResolveRegion(_ context.Context, name string) (uuid.UUID, error) {
	return resolve(m.regions, name), nil
}

func (m *memSink) ResolveMarket(_ context.Context, name string, regionID uuid.UUID) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	id := resolve(m.markets, regionID.String()+"/"+name)
	return &id, nil
}

func factKey(cropID, regionID uuid.UUID, marketID *uuid.UUID, day time.Time) string {
	mk := "none"
	if marketID != nil {
		mk = marketID.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s", cropID, regionID, mk, day.Format("2006-01-02"))
}

func (m *memSink) PriceEntryExists(_ context.Context, cropID, regionID uuid.UUID, marketID *uuid.UUID, day time.Time) (bool, error) {
	_, ok := m.facts[factKey(cropID, regionID, marketID, day)]
	return ok, nil
}

func (m *memSink) CreatePriceEntry(_ context.Context, arg store.CreatePriceEntryParams) (uuid.UUID, error) {
	for name, c := range m.crops {
		if c.ID == arg.CropID && name == m.failInsertFor {
			return uuid.Nil, errors.New("storage fault")
		}
	}
	m.facts[factKey(arg.CropID, arg.RegionID, arg.MarketID, arg.EntryDate)] = arg
	return uuid.New(), nil
}

// memTx records savepoint traffic and optionally fails it.
type memTx struct {
	execs    []string
	failExec bool
}

func (m *memTx) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	if m.failExec {
		return pgconn.CommandTag{}, errors.New("connection lost")
	}
	m.execs = append(m.execs, sql)
	return pgconn.CommandTag{}, nil
}

func parseRows(t *testing.T, csv string) []feed.Row {
	t.Helper()
	doc, err := feed.Parse([]byte(csv), "test.csv")
	require.NoError(t, err)
	return doc.Rows
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessRowsSameDayDedup(t *testing.T) {
	rows := parseRows(t, "crop,region,price,date\n"+
		"Maize,Central Kenya,45.50,2024-01-10\n"+
		"Maize,Central Kenya,46.00,2024-01-10\n")

	sink := newMemSink()
	sum, err := processRows(context.Background(), &memTx{}, sink, rows, "test-feed", discard())
	require.NoError(t, err)

	assert.Equal(t, Summary{Inserted: 1, Skipped: 1, Errors: 0, TotalRows: 2}, sum)
	assert.Len(t, sink.facts, 1)

	for _, fact := range sink.facts {
		assert.Equal(t, "test-feed", fact.Source)
		assert.Equal(t, "kg", fact.Unit)
		assert.Nil(t, fact.MarketID)
	}
}

func TestProcessRowsIdempotentRerun(t *testing.T) {
	csv := "crop,region,market,price,date\n" +
		"Maize,Nakuru,Wakulima,45.50,2024-01-10\n" +
		"Beans,Nakuru,Wakulima,120,2024-01-10\n" +
		"Fresh Milk,Kiambu,,55,2024-01-10\n"
	rows := parseRows(t, csv)
	sink := newMemSink()
	ctx := context.Background()

	first, err := processRows(ctx, &memTx{}, sink, rows, "test-feed", discard())
	require.NoError(t, err)
	assert.Equal(t, Summary{Inserted: 3, TotalRows: 3}, first)

	second, err := processRows(ctx, &memTx{}, sink, rows, "test-feed", discard())
	require.NoError(t, err)
	assert.Equal(t, Summary{Inserted: 0, Skipped: 3, TotalRows: 3}, second)
	assert.Len(t, sink.facts, 3)
}

func TestProcessRowsValidationSkips(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"missing crop", ",Nakuru,45,2024-01-10"},
		{"missing region", "Maize,,45,2024-01-10"},
		{"non-numeric price", "Maize,Nakuru,abc,2024-01-10"},
		{"zero price", "Maize,Nakuru,0,2024-01-10"},
		{"negative price", "Maize,Nakuru,(45),2024-01-10"},
		{"missing date", "Maize,Nakuru,45,"},
		{"invalid date", "Maize,Nakuru,45,someday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := parseRows(t, "crop,region,price,date\n"+tt.row+"\n")
			sink := newMemSink()
			tx := &memTx{}

			sum, err := processRows(context.Background(), tx, sink, rows, "test-feed", discard())
			require.NoError(t, err)

			assert.Equal(t, Summary{Skipped: 1, TotalRows: 1}, sum,
				"validation failures count as skipped, never errors")
			assert.Empty(t, sink.facts)
			assert.Empty(t, tx.execs, "invalid rows must not open savepoints")
		})
	}
}

func TestProcessRowsIsolatesRowFaults(t *testing.T) {
	rows := parseRows(t, "crop,region,price,date\n"+
		"Maize,Nakuru,45,2024-01-10\n"+
		"Beans,Nakuru,90,2024-01-10\n"+
		"Kale,Nakuru,30,2024-01-10\n")

	sink := newMemSink()
	sink.failInsertFor = "beans"
	tx := &memTx{}

	sum, err := processRows(context.Background(), tx, sink, rows, "test-feed", discard())
	require.NoError(t, err)

	assert.Equal(t, Summary{Inserted: 2, Errors: 1, TotalRows: 3}, sum)
	assert.Len(t, sink.facts, 2)
	assert.Contains(t, tx.execs, "ROLLBACK TO SAVEPOINT row_1")
}

func TestProcessRowsFatalOnSavepointFailure(t *testing.T) {
	rows := parseRows(t, "crop,region,price,date\nMaize,Nakuru,45,2024-01-10\n")

	sum, err := processRows(context.Background(), &memTx{failExec: true}, newMemSink(), rows, "test-feed", discard())
	require.Error(t, err)
	assert.Equal(t, Summary{}, sum, "fatal faults discard the partial aggregate")
}

func TestProcessRowsUsesCatalogUnit(t *testing.T) {
	// A crop whose unit was edited in the catalog must tag new facts
	// with that unit, not one rederived from the raw name.
	sink := newMemSink()
	sink.crops["maize"] = store.Crop{
		ID:       uuid.New(),
		Name:     "Maize",
		Category: "cereals",
		Unit:     "90kg bag",
		IsActive: true,
	}

	rows := parseRows(t, "crop,region,price,date\nMaize,Nakuru,4200,2024-01-10\n")
	sum, err := processRows(context.Background(), &memTx{}, sink, rows, "test-feed", discard())
	require.NoError(t, err)
	assert.Equal(t, Summary{Inserted: 1, TotalRows: 1}, sum)

	for _, fact := range sink.facts {
		assert.Equal(t, "90kg bag", fact.Unit)
	}
}

func TestProcessRowsLaterRowSeesEarlierReference(t *testing.T) {
	// Both rows name the same new crop and region; the second must reuse
	// the identifiers created by the first, not mint fresh ones.
	rows := parseRows(t, "crop,region,price,date\n"+
		"Arrowroot,Murang'a,70,2024-01-10\n"+
		"Arrowroot,Murang'a,70,2024-01-11\n")

	sink := newMemSink()
	sum, err := processRows(context.Background(), &memTx{}, sink, rows, "test-feed", discard())
	require.NoError(t, err)

	assert.Equal(t, Summary{Inserted: 2, TotalRows: 2}, sum, "different days are not duplicates")
	assert.Len(t, sink.crops, 1)
	assert.Len(t, sink.regions, 1)
}

func TestExtractRecord(t *testing.T) {
	rows := parseRows(t, "crop,region,market,price,date\n"+
		"  Maize , Central Kenya ,Wakulima,\"1,250.00\",2024-01-10\n")

	rec, reason, ok := extractRecord(rows[0])
	require.True(t, ok, "reason: %s", reason)

	assert.Equal(t, "Maize", rec.Crop)
	assert.Equal(t, "Central Kenya", rec.Region)
	assert.Equal(t, "Wakulima", rec.Market)
	assert.True(t, rec.Price.Equal(decimal.RequireFromString("1250")), "price = %s", rec.Price)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), rec.Date)
}
