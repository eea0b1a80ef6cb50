package estimator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rendimo/server/internal/models"
)

func TestClassifyDeviation(t *testing.T) {
	tests := []struct {
		pct      float64
		expected models.Verdict
	}{
		{pct: -40, expected: models.VerdictVeryGood},
		{pct: -15, expected: models.VerdictVeryGood},
		{pct: -14.999, expected: models.VerdictGood},
		{pct: -5, expected: models.VerdictGood},
		{pct: -4.999, expected: models.VerdictMarketAverage},
		{pct: 0, expected: models.VerdictMarketAverage},
		{pct: 5, expected: models.VerdictMarketAverage},
		{pct: 5.001, expected: models.VerdictSlightlyHigh},
		{pct: 15, expected: models.VerdictSlightlyHigh},
		{pct: 15.001, expected: models.VerdictHigh},
		{pct: 80, expected: models.VerdictHigh},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyDeviation(tt.pct), "pct %v", tt.pct)
		})
	}
}

func banded(price, lower, upper int) models.PriceEstimate {
	return models.PriceEstimate{
		PricePerArea: price,
		LowerBound:   &lower,
		UpperBound:   &upper,
		SampleCount:  30,
		SourceLabel:  models.SourceLive,
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name         string
		price        float64
		area         float64
		estimate     models.PriceEstimate
		subject      float64
		pct          float64
		verdict      models.Verdict
		bandPosition models.BandPosition
	}{
		{
			name:         "Below market and below band",
			price:        160000,
			area:         50,
			estimate:     banded(4000, 3500, 4600),
			subject:      3200,
			pct:          -20,
			verdict:      models.VerdictVeryGood,
			bandPosition: models.BandBelow,
		},
		{
			name:         "Exactly at the -15 edge",
			price:        170000,
			area:         50,
			estimate:     banded(4000, 3000, 5000),
			subject:      3400,
			pct:          -15,
			verdict:      models.VerdictVeryGood,
			bandPosition: models.BandWithin,
		},
		{
			name:         "At market",
			price:        200000,
			area:         50,
			estimate:     banded(4000, 3500, 4600),
			subject:      4000,
			pct:          0,
			verdict:      models.VerdictMarketAverage,
			bandPosition: models.BandWithin,
		},
		{
			name:         "Above band",
			price:        250000,
			area:         50,
			estimate:     banded(4000, 3500, 4600),
			subject:      5000,
			pct:          25,
			verdict:      models.VerdictHigh,
			bandPosition: models.BandAbove,
		},
		{
			name:     "Reference estimate has no band",
			price:    220000,
			area:     50,
			estimate: models.PriceEstimate{PricePerArea: 4000, SampleCount: models.UnknownSampleCount},
			subject:  4400,
			pct:      10,
			verdict:  models.VerdictSlightlyHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compare(tt.price, tt.area, tt.estimate)
			require.NoError(t, err)

			assert.InDelta(t, tt.subject, result.SubjectPricePerArea, 1e-9)
			assert.Equal(t, float64(tt.estimate.PricePerArea), result.MarketPricePerArea)
			assert.InDelta(t, tt.subject-float64(tt.estimate.PricePerArea), result.Difference, 1e-9)
			assert.InDelta(t, tt.pct, result.PctDiff, 1e-9)
			assert.Equal(t, tt.verdict, result.Verdict)
			assert.Equal(t, tt.bandPosition, result.BandPosition)
			assert.Equal(t, tt.estimate, result.Estimate)
		})
	}
}

func TestCompareInvalidInput(t *testing.T) {
	est := banded(4000, 3500, 4600)

	tests := []struct {
		name     string
		price    float64
		area     float64
		estimate models.PriceEstimate
		err      error
	}{
		{name: "Zero area", price: 200000, area: 0, estimate: est, err: ErrInvalidArea},
		{name: "Negative area", price: 200000, area: -10, estimate: est, err: ErrInvalidArea},
		{name: "NaN area", price: 200000, area: math.NaN(), estimate: est, err: ErrInvalidArea},
		{name: "Zero price", price: 0, area: 50, estimate: est, err: ErrInvalidPrice},
		{name: "Infinite price", price: math.Inf(1), area: 50, estimate: est, err: ErrInvalidPrice},
		{name: "No market price", price: 200000, area: 50, estimate: models.PriceEstimate{}, err: ErrNoMarketPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.price, tt.area, tt.estimate)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCompareListingValidatesBeforeLookup(t *testing.T) {
	resolver := new(MockResolver)
	fetcher := new(MockFetcher)
	e := newTestEstimator(t, resolver, fetcher, Options{})

	_, err := e.CompareListing(context.Background(), models.PlaceQuery{Name: "Paris"}, 300000, 0)

	assert.ErrorIs(t, err, ErrInvalidArea)
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompareListing(t *testing.T) {
	resolver := new(MockResolver)
	fetcher := new(MockFetcher)

	resolver.On("Resolve", mock.Anything, "Paris", "").
		Return(models.Commune{}, assert.AnError)

	e := newTestEstimator(t, resolver, fetcher, Options{})

	result, err := e.CompareListing(context.Background(), models.PlaceQuery{
		Name:     "Paris",
		Category: models.CategoryFlat,
	}, 432000, 40)

	require.NoError(t, err)
	assert.Equal(t, 10800.0, result.SubjectPricePerArea)
	assert.Equal(t, 0.0, result.PctDiff)
	assert.Equal(t, models.VerdictMarketAverage, result.Verdict)
	assert.Equal(t, models.SourceReference, result.Estimate.SourceLabel)
	assert.Empty(t, result.BandPosition)
}
