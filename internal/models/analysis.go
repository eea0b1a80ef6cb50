package models

import "time"

// Analysis is a persisted listing analysis: the subject listing, the market
// estimate it was compared to and the resulting figures.
type Analysis struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:36"`
	Place              string    `json:"place" gorm:"index"`
	PostalCode         string    `json:"postal_code"`
	Category           Category  `json:"category"`
	Price              float64   `json:"price"`
	Area               float64   `json:"area"`
	MonthlyRent        *float64  `json:"monthly_rent"`
	PricePerArea       float64   `json:"price_per_area"`
	MarketPricePerArea int       `json:"market_price_per_area"`
	PctDiff            float64   `json:"pct_diff"`
	Verdict            Verdict   `json:"verdict"`
	BandPosition       string    `json:"band_position"`
	GrossYield         *float64  `json:"gross_yield"`
	SourceLabel        string    `json:"source_label"`
	Confidence         *float64  `json:"confidence"`
	CreatedAt          time.Time `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time `json:"updated_at"`
}
