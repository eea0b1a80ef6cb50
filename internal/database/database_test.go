package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rendimo/server/internal/models"
)

func writeAggregatesFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "dvf.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE price_data (
			city TEXT,
			postal_code TEXT,
			property_type TEXT,
			price_per_sqm_mean REAL,
			transaction_count INTEGER,
			reliability_score INTEGER
		)
	`)
	require.NoError(t, err)

	rows := []struct {
		city, postal, kind string
		price              float64
		count, reliability int
	}{
		{"Rennes", "35000", "apartment", 3950.4, 420, 85},
		{"Rennes", "35200", "apartment", 3700, 120, 70},
		{"Rennes", "35000", "house", 4380, 80, 60},
		{"Saint-Malo", "35400", "apartment", 5100, 90, 40},
		{"Broken", "99999", "apartment", 0, 10, 10},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO price_data VALUES (?, ?, ?, ?, ?, ?)`,
			r.city, r.postal, r.kind, r.price, r.count, r.reliability)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())
	return path
}

func setupAggregates(t *testing.T) *Aggregates {
	aggregates, err := OpenAggregates(writeAggregatesFile(t))
	require.NoError(t, err)
	t.Cleanup(func() { aggregates.Close() })
	return aggregates
}

func TestAggregatesLookup(t *testing.T) {
	aggregates := setupAggregates(t)

	tests := []struct {
		name       string
		city       string
		postalCode string
		category   models.Category
		expected   AggregatePrice
		found      bool
	}{
		{
			name:       "Postal code match",
			city:       "Rennes",
			postalCode: "35200",
			category:   models.CategoryFlat,
			expected:   AggregatePrice{PricePerArea: 3700, TransactionCount: 120, Reliability: 70, City: "Rennes", PostalCode: "35200"},
			found:      true,
		},
		{
			name:     "City match prefers most transactions",
			city:     "renn",
			category: models.CategoryFlat,
			expected: AggregatePrice{PricePerArea: 3950, TransactionCount: 420, Reliability: 85, City: "Rennes", PostalCode: "35000"},
			found:    true,
		},
		{
			name:       "Unknown postal code falls back to city",
			city:       "Saint-Malo",
			postalCode: "00000",
			category:   models.CategoryFlat,
			expected:   AggregatePrice{PricePerArea: 5100, TransactionCount: 90, Reliability: 40, City: "Saint-Malo", PostalCode: "35400"},
			found:      true,
		},
		{
			name:     "Category is respected",
			city:     "Rennes",
			category: models.CategoryHouse,
			expected: AggregatePrice{PricePerArea: 4380, TransactionCount: 80, Reliability: 60, City: "Rennes", PostalCode: "35000"},
			found:    true,
		},
		{
			name:     "No match",
			city:     "Quimper",
			category: models.CategoryFlat,
		},
		{
			name:     "Percent sign is not a wildcard",
			city:     "%",
			category: models.CategoryFlat,
		},
		{
			name:     "Underscore is not a wildcard",
			city:     "_ennes",
			category: models.CategoryFlat,
		},
		{
			name:     "Zero price is a miss",
			city:     "Broken",
			category: models.CategoryFlat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, found, err := aggregates.Lookup(context.Background(), tt.city, tt.postalCode, tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.expected, price)
		})
	}
}

func TestOpenAggregatesPathWithURICharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports?v=2#latest")
	require.NoError(t, os.Mkdir(dir, 0755))
	path := filepath.Join(dir, "dvf 2024.db")
	require.NoError(t, os.Rename(writeAggregatesFile(t), path))

	aggregates, err := OpenAggregates(path)
	require.NoError(t, err)
	defer aggregates.Close()

	price, found, err := aggregates.Lookup(context.Background(), "", "35400", models.CategoryFlat)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5100, price.PricePerArea)
}

func TestOpenAggregatesMissingFile(t *testing.T) {
	_, err := OpenAggregates(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestStoreSaveAndRecent(t *testing.T) {
	store, err := NewTestStore()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, place := range []string{"Rennes", "Brest", "Nantes"} {
		a := &models.Analysis{
			Place:              place,
			Category:           models.CategoryFlat,
			Price:              200000,
			Area:               50,
			PricePerArea:       4000,
			MarketPricePerArea: 4100,
			Verdict:            models.VerdictMarketAverage,
			SourceLabel:        models.SourceLive,
			CreatedAt:          base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Save(ctx, a))
		assert.Len(t, a.ID, 36)
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Nantes", recent[0].Place)
	assert.Equal(t, "Brest", recent[1].Place)

	got, err := store.Get(ctx, recent[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMarketAverage, got.Verdict)

	_, err = store.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrAnalysisNotFound)
}

func TestStoreOptionalFields(t *testing.T) {
	store, err := NewTestStore()
	require.NoError(t, err)
	defer store.Close()

	rent, yield := 900.0, 5.4
	a := &models.Analysis{
		Place:       "Lyon",
		Category:    models.CategoryHouse,
		MonthlyRent: &rent,
		GrossYield:  &yield,
	}
	require.NoError(t, store.Save(context.Background(), a))

	got, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MonthlyRent)
	assert.Equal(t, 900.0, *got.MonthlyRent)
	require.NotNil(t, got.GrossYield)
	assert.Equal(t, 5.4, *got.GrossYield)
	assert.Nil(t, got.Confidence)
}
