// Package stats computes price-per-area statistics over transaction records.
package stats

import (
	"math"
	"sort"

	"rendimo/server/internal/models"
)

// Compute filters out implausible records and returns median, decile band,
// mean and count of the price per area. ok is false when no record survives
// the filter; callers must treat that as missing data, not as a zero price.
func Compute(records []models.TransactionRecord) (models.PriceStats, bool) {
	values := make([]float64, 0, len(records))
	var stats models.PriceStats

	for _, r := range records {
		if !r.IsPlausible() {
			continue
		}
		values = append(values, r.PricePerArea())
		if r.Date.After(stats.MostRecent) {
			stats.MostRecent = r.Date
		}
	}

	if len(values) == 0 {
		return models.PriceStats{}, false
	}

	sort.Float64s(values)

	stats.Count = len(values)
	stats.Median = Median(values)
	stats.P10 = Percentile(values, 10)
	stats.P90 = Percentile(values, 90)
	stats.Mean = Mean(values)

	return stats, true
}

// Median returns the middle element of sorted, or the mean of the two middle
// elements when the length is even. sorted must be ascending and non-empty.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Percentile returns the p-th percentile (0-100) of sorted using linear
// interpolation between the order statistics around rank (n-1)*p/100.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	k := float64(n-1) * p / 100
	lo := int(math.Floor(k))
	hi := int(math.Ceil(k))
	if lo == hi {
		return sorted[lo]
	}
	frac := k - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
