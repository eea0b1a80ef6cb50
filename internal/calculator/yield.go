// Package calculator holds the rental investment arithmetic.
package calculator

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"rendimo/server/internal/models"
)

var (
	ErrInvalidPrice = errors.New("purchase price must be a positive number")
	ErrInvalidRent  = errors.New("monthly rent must be a positive number")
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

var ratingFloors = []struct {
	floor  decimal.Decimal
	rating models.YieldRating
}{
	{floor: decimal.NewFromInt(8), rating: models.YieldExcellent},
	{floor: decimal.NewFromInt(6), rating: models.YieldGood},
	{floor: decimal.NewFromInt(4), rating: models.YieldFair},
	{floor: decimal.NewFromInt(2), rating: models.YieldLow},
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// GrossYield returns the annual rent as a percentage of the purchase
// price, rounded to two decimals.
func GrossYield(purchasePrice, monthlyRent float64) (models.YieldResult, error) {
	if !positive(purchasePrice) {
		return models.YieldResult{}, ErrInvalidPrice
	}
	if !positive(monthlyRent) {
		return models.YieldResult{}, ErrInvalidRent
	}

	price := decimal.NewFromFloat(purchasePrice)
	annual := decimal.NewFromFloat(monthlyRent).Mul(twelve)
	gross := annual.Div(price).Mul(hundred)

	return models.YieldResult{
		PurchasePrice: purchasePrice,
		MonthlyRent:   monthlyRent,
		AnnualRent:    annual.Round(2).InexactFloat64(),
		GrossYield:    gross.Round(2).InexactFloat64(),
		Rating:        Rate(gross),
	}, nil
}

// Rate grades a gross yield percentage.
func Rate(gross decimal.Decimal) models.YieldRating {
	for _, f := range ratingFloors {
		if gross.GreaterThanOrEqual(f.floor) {
			return f.rating
		}
	}
	return models.YieldVeryLow
}
