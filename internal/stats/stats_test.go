package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rendimo/server/internal/models"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{100, 200, 300, 400, 500}

	tests := []struct {
		name     string
		p        float64
		expected float64
	}{
		{name: "p10 interpolates", p: 10, expected: 140},
		{name: "p90 interpolates", p: 90, expected: 460},
		{name: "p50 is the middle", p: 50, expected: 300},
		{name: "p25 hits an order statistic", p: 25, expected: 200},
		{name: "p0 is the minimum", p: 0, expected: 100},
		{name: "p100 is the maximum", p: 100, expected: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Percentile(sorted, tt.p), 1e-9)
		})
	}
}

func TestPercentileSingleValue(t *testing.T) {
	assert.Equal(t, 42.0, Percentile([]float64{42}, 10))
	assert.Equal(t, 42.0, Percentile([]float64{42}, 90))
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{name: "odd length", values: []float64{1, 2, 3}, expected: 2},
		{name: "even length averages the two middle values", values: []float64{1, 2, 4, 10}, expected: 3},
		{name: "single value", values: []float64{7}, expected: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Median(tt.values))
		})
	}
}

func TestComputeAppliesPlausibilityFilter(t *testing.T) {
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []models.TransactionRecord{
		{Price: 200000, Area: 50, Date: day},                   // 4000/m², kept
		{Price: 200000, Area: 5, Date: day.AddDate(0, 1, 0)},   // too small
		{Price: 500, Area: 50, Date: day.AddDate(0, 2, 0)},     // too cheap
		{Price: 900000, Area: 450, Date: day.AddDate(0, 3, 0)}, // too large
	}

	stats, ok := Compute(records)

	require.True(t, ok)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 4000.0, stats.Median)
	assert.Equal(t, 4000.0, stats.P10)
	assert.Equal(t, 4000.0, stats.P90)
	assert.Equal(t, day, stats.MostRecent, "filtered records must not count towards the most recent date")
}

func TestComputeBoundaries(t *testing.T) {
	records := []models.TransactionRecord{
		{Price: 32000, Area: 8},     // lower area bound is inclusive
		{Price: 1600000, Area: 400}, // upper area bound is inclusive
		{Price: 1000, Area: 20},     // price must be strictly above 1000
	}

	stats, ok := Compute(records)

	require.True(t, ok)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 4000.0, stats.Median)
}

func TestComputeDropsNonFiniteValues(t *testing.T) {
	records := []models.TransactionRecord{
		{Price: 200000, Area: 50},
		{Price: 200000, Area: 50},
		{Price: math.Inf(1), Area: 50},
		{Price: math.NaN(), Area: 50},
		{Price: 200000, Area: math.NaN()},
	}

	stats, ok := Compute(records)

	require.True(t, ok)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 4000.0, stats.P90)
	assert.Equal(t, 4000.0, stats.Mean)
}

func TestComputeEmpty(t *testing.T) {
	_, ok := Compute(nil)
	assert.False(t, ok)

	_, ok = Compute([]models.TransactionRecord{{Price: 500, Area: 5}})
	assert.False(t, ok, "only implausible records must yield no stats")
}

func TestComputeBand(t *testing.T) {
	var records []models.TransactionRecord
	for _, perArea := range []float64{500, 300, 100, 400, 200} {
		records = append(records, models.TransactionRecord{Price: perArea * 100, Area: 100})
	}

	stats, ok := Compute(records)

	require.True(t, ok)
	assert.Equal(t, 5, stats.Count)
	assert.InDelta(t, 300, stats.Median, 1e-9)
	assert.InDelta(t, 140, stats.P10, 1e-9)
	assert.InDelta(t, 460, stats.P90, 1e-9)
	assert.InDelta(t, 300, stats.Mean, 1e-9)
}
