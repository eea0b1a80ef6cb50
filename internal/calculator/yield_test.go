package calculator

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rendimo/server/internal/models"
)

func TestGrossYield(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		rent       float64
		annualRent float64
		grossYield float64
		rating     models.YieldRating
	}{
		{name: "Excellent", price: 100000, rent: 700, annualRent: 8400, grossYield: 8.4, rating: models.YieldExcellent},
		{name: "Exactly eight percent", price: 150000, rent: 1000, annualRent: 12000, grossYield: 8, rating: models.YieldExcellent},
		{name: "Good", price: 200000, rent: 1100, annualRent: 13200, grossYield: 6.6, rating: models.YieldGood},
		{name: "Fair", price: 250000, rent: 950, annualRent: 11400, grossYield: 4.56, rating: models.YieldFair},
		{name: "Low", price: 432000, rent: 1200, annualRent: 14400, grossYield: 3.33, rating: models.YieldLow},
		{name: "Very low", price: 1000000, rent: 1500, annualRent: 18000, grossYield: 1.8, rating: models.YieldVeryLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := GrossYield(tt.price, tt.rent)
			require.NoError(t, err)

			assert.Equal(t, tt.price, result.PurchasePrice)
			assert.Equal(t, tt.rent, result.MonthlyRent)
			assert.Equal(t, tt.annualRent, result.AnnualRent)
			assert.Equal(t, tt.grossYield, result.GrossYield)
			assert.Equal(t, tt.rating, result.Rating)
		})
	}
}

func TestGrossYieldInvalid(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		rent  float64
		err   error
	}{
		{name: "Zero price", price: 0, rent: 800, err: ErrInvalidPrice},
		{name: "Negative price", price: -1, rent: 800, err: ErrInvalidPrice},
		{name: "NaN price", price: math.NaN(), rent: 800, err: ErrInvalidPrice},
		{name: "Zero rent", price: 200000, rent: 0, err: ErrInvalidRent},
		{name: "Infinite rent", price: 200000, rent: math.Inf(1), err: ErrInvalidRent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GrossYield(tt.price, tt.rent)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRateEdges(t *testing.T) {
	assert.Equal(t, models.YieldGood, Rate(decimal.RequireFromString("7.999")))
	assert.Equal(t, models.YieldFair, Rate(decimal.NewFromInt(4)))
	assert.Equal(t, models.YieldLow, Rate(decimal.NewFromInt(2)))
	assert.Equal(t, models.YieldVeryLow, Rate(decimal.RequireFromString("1.99")))
}
