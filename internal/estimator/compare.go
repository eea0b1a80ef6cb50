package estimator

import (
	"context"
	"errors"
	"math"

	"rendimo/server/internal/models"
)

var (
	ErrInvalidArea   = errors.New("area must be a positive number")
	ErrInvalidPrice  = errors.New("price must be a positive number")
	ErrNoMarketPrice = errors.New("no market price available")
)

func invalid(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v <= 0
}

// ClassifyDeviation maps a percentage gap to the market onto a verdict.
// Upper edges are inclusive.
func ClassifyDeviation(pct float64) models.Verdict {
	switch {
	case pct <= -15:
		return models.VerdictVeryGood
	case pct <= -5:
		return models.VerdictGood
	case pct <= 5:
		return models.VerdictMarketAverage
	case pct <= 15:
		return models.VerdictSlightlyHigh
	default:
		return models.VerdictHigh
	}
}

// ValidateListing checks the listing figures on their own.
func ValidateListing(price, area float64) error {
	if invalid(area) {
		return ErrInvalidArea
	}
	if invalid(price) {
		return ErrInvalidPrice
	}
	return nil
}

// Compare positions a listing of the given price and area against est.
func Compare(price, area float64, est models.PriceEstimate) (models.ComparisonResult, error) {
	if err := ValidateListing(price, area); err != nil {
		return models.ComparisonResult{}, err
	}
	if est.PricePerArea <= 0 {
		return models.ComparisonResult{}, ErrNoMarketPrice
	}

	subject := price / area
	market := float64(est.PricePerArea)
	pct := (subject - market) / market * 100

	result := models.ComparisonResult{
		SubjectPricePerArea: math.Round(subject*100) / 100,
		MarketPricePerArea:  market,
		Difference:          math.Round((subject-market)*100) / 100,
		PctDiff:             math.Round(pct*100) / 100,
		Verdict:             ClassifyDeviation(pct),
		Estimate:            est,
	}

	if est.HasBand() {
		switch {
		case subject < float64(*est.LowerBound):
			result.BandPosition = models.BandBelow
		case subject > float64(*est.UpperBound):
			result.BandPosition = models.BandAbove
		default:
			result.BandPosition = models.BandWithin
		}
	}

	return result, nil
}

// CompareListing validates the listing, estimates its market and compares.
// Invalid listings fail before any lookup.
func (e *Estimator) CompareListing(ctx context.Context, q models.PlaceQuery, price, area float64) (models.ComparisonResult, error) {
	if err := ValidateListing(price, area); err != nil {
		return models.ComparisonResult{}, err
	}

	return Compare(price, area, e.Estimate(ctx, q))
}
