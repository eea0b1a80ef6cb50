package models

import (
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Category is the kind of dwelling a price refers to.
type Category string

const (
	CategoryFlat  Category = "flat"
	CategoryHouse Category = "house"
	CategoryOther Category = "other"
)

// ParseCategory maps free-form input (English or French) to a Category.
// Unknown values map to CategoryOther.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat", "apartment", "appartement", "studio":
		return CategoryFlat
	case "house", "maison":
		return CategoryHouse
	default:
		return CategoryOther
	}
}

// DatasetLabel returns the DVF type_local value for the category.
// CategoryOther has no label.
func (c Category) DatasetLabel() string {
	switch c {
	case CategoryFlat:
		return "Appartement"
	case CategoryHouse:
		return "Maison"
	default:
		return ""
	}
}

// PlaceQuery is the input of a price estimation.
type PlaceQuery struct {
	Name       string   `json:"place"`
	PostalCode string   `json:"postal_code,omitempty"`
	Category   Category `json:"category"`
}

// Commune is a resolved administrative area.
type Commune struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	PostalCodes []string  `json:"postal_codes"`
	Centre      orb.Point `json:"centre"`
}

// TransactionRecord is a single sale from the transactions dataset.
type TransactionRecord struct {
	Price       float64   `json:"price"`
	Area        float64   `json:"area"`
	Category    Category  `json:"category"`
	Date        time.Time `json:"date"`
	CommuneCode string    `json:"commune_code"`
	PostalCode  string    `json:"postal_code"`
}

// Plausibility bounds for transaction records. Anything outside is a parking
// lot, a plot of land or a typo.
const (
	MinPlausiblePrice = 1000.0
	MinPlausibleArea  = 8.0
	MaxPlausibleArea  = 400.0
)

// IsPlausible reports whether the record passes the plausibility filter.
func (r TransactionRecord) IsPlausible() bool {
	if math.IsInf(r.Price, 0) || math.IsNaN(r.Price) || math.IsNaN(r.Area) {
		return false
	}
	return r.Price > MinPlausiblePrice && r.Area >= MinPlausibleArea && r.Area <= MaxPlausibleArea
}

// PricePerArea returns price divided by living area.
func (r TransactionRecord) PricePerArea() float64 {
	return r.Price / r.Area
}

type PriceStats struct {
	Median     float64   `json:"median_per_area"`
	P10        float64   `json:"p10_per_area"`
	P90        float64   `json:"p90_per_area"`
	Mean       float64   `json:"mean_per_area"`
	Count      int       `json:"sample_count"`
	MostRecent time.Time `json:"most_recent_date"`
}
