package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source labels carried by a PriceEstimate.
const (
	SourceLive      = "dvf"
	SourceAggregate = "dvf-aggregate"
	SourceReference = "reference/fallback"
)

// UnknownSampleCount marks an estimate whose sample size is not known,
// typically one taken from the reference table.
const UnknownSampleCount SampleCount = -1

// SampleCount is the number of transactions behind an estimate. It encodes
// to JSON as a number, or as "unknown" for UnknownSampleCount.
type SampleCount int

func (s SampleCount) Known() bool {
	return s >= 0
}

func (s SampleCount) MarshalJSON() ([]byte, error) {
	if !s.Known() {
		return []byte(`"unknown"`), nil
	}
	return json.Marshal(int(s))
}

func (s *SampleCount) UnmarshalJSON(data []byte) error {
	if string(data) == `"unknown"` || string(data) == "null" {
		*s = UnknownSampleCount
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid sample count %s: %w", string(data), err)
	}
	*s = SampleCount(n)
	return nil
}

// PriceEstimate is the canonical output of the estimation pipeline. It is
// never mutated once built.
type PriceEstimate struct {
	PricePerArea int         `json:"price_per_area"`
	LowerBound   *int        `json:"lower_bound,omitempty"`
	UpperBound   *int        `json:"upper_bound,omitempty"`
	SampleCount  SampleCount `json:"sample_count"`
	PeriodLabel  string      `json:"period_label"`
	Place        string      `json:"place"`
	PostalCode   string      `json:"postal_code,omitempty"`
	CommuneCode  string      `json:"commune_code,omitempty"`
	Category     Category    `json:"category"`
	SourceLabel  string      `json:"source_label"`
	Confidence   *float64    `json:"confidence,omitempty"`
}

// HasBand reports whether the estimate carries a p10/p90 band.
func (e PriceEstimate) HasBand() bool {
	return e.LowerBound != nil && e.UpperBound != nil
}

// CacheEntry is a cached estimate together with its write time.
type CacheEntry struct {
	Key       string        `json:"-"`
	CreatedAt time.Time     `json:"-"`
	Value     PriceEstimate `json:"value"`
}

// Verdict is the qualitative position of a price against the market.
type Verdict string

const (
	VerdictVeryGood      Verdict = "very good price"
	VerdictGood          Verdict = "good price"
	VerdictMarketAverage Verdict = "market average"
	VerdictSlightlyHigh  Verdict = "slightly high"
	VerdictHigh          Verdict = "high"
)

// BandPosition locates a price relative to the p10/p90 band.
type BandPosition string

const (
	BandBelow  BandPosition = "below"
	BandWithin BandPosition = "within"
	BandAbove  BandPosition = "above"
)

type ComparisonResult struct {
	SubjectPricePerArea float64       `json:"subject_price_per_area"`
	MarketPricePerArea  float64       `json:"market_price_per_area"`
	Difference          float64       `json:"difference"`
	PctDiff             float64       `json:"pct_diff"`
	Verdict             Verdict       `json:"verdict"`
	BandPosition        BandPosition  `json:"band_position,omitempty"`
	Estimate            PriceEstimate `json:"estimate"`
}

// YieldRating is the qualitative grade of a gross yield.
type YieldRating string

const (
	YieldExcellent YieldRating = "excellent"
	YieldGood      YieldRating = "good"
	YieldFair      YieldRating = "fair"
	YieldLow       YieldRating = "low"
	YieldVeryLow   YieldRating = "very low"
)

type YieldResult struct {
	PurchasePrice float64     `json:"purchase_price"`
	MonthlyRent   float64     `json:"monthly_rent"`
	AnnualRent    float64     `json:"annual_rent"`
	GrossYield    float64     `json:"gross_yield"`
	Rating        YieldRating `json:"rating"`
}
