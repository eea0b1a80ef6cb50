package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"rendimo/server/internal/models"
)

const defaultReferenceKey = "default"

// ReferenceRow holds the static price per m² of a place, by category.
type ReferenceRow struct {
	Place  string                  `json:"place"`
	Prices map[models.Category]int `json:"prices"`
}

// ReferencePrice is the outcome of a reference lookup.
type ReferencePrice struct {
	PricePerArea int
	// Match is the key of the row that answered
	Match   string
	Exact   bool
	Default bool
}

// ReferenceTable is immutable once built and safe for concurrent reads.
type ReferenceTable struct {
	rows     map[string]ReferenceRow
	ordered  []string
	fallback ReferenceRow
}

func row(place string, flat, house int) ReferenceRow {
	return ReferenceRow{
		Place: place,
		Prices: map[models.Category]int{
			models.CategoryFlat:  flat,
			models.CategoryHouse: house,
		},
	}
}

// BuiltinReferenceRows are the 2024 figures for the major French cities.
var BuiltinReferenceRows = []ReferenceRow{
	row("paris", 10800, 12500),
	row("lyon", 5100, 5800),
	row("marseille", 3800, 4200),
	row("toulouse", 4100, 4500),
	row("nice", 5500, 6800),
	row("nantes", 4200, 4800),
	row("strasbourg", 3500, 4000),
	row("montpellier", 4000, 4600),
	row("bordeaux", 4800, 5400),
	row("lille", 3300, 3800),
	row("rennes", 3900, 4400),
	row("reims", 2400, 2800),
	row("toulon", 3600, 4200),
	row("grenoble", 3700, 4300),
	row("dijon", 2900, 3400),
	row("angers", 3100, 3600),
	row("nimes", 2700, 3200),
	row("villeurbanne", 4800, 5400),
	row("clermont-ferrand", 2500, 3000),
	row("aix-en-provence", 5200, 6500),
	row("brest", 2600, 3100),
	row("tours", 3000, 3500),
	row("amiens", 2300, 2700),
	row("limoges", 1900, 2400),
	row("annecy", 5800, 7200),
	{
		Place: defaultReferenceKey,
		Prices: map[models.Category]int{
			models.CategoryFlat:  3200,
			models.CategoryHouse: 3600,
			models.CategoryOther: 3000,
		},
	},
}

// NormalizePlace lowercases, trims and strips diacritics so that
// "Nîmes " and "nimes" share a key.
func NormalizePlace(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// NewReferenceTable builds a table from rows. Later rows override earlier
// ones with the same normalised key, category by category.
func NewReferenceTable(rows []ReferenceRow) *ReferenceTable {
	t := &ReferenceTable{rows: make(map[string]ReferenceRow, len(rows))}

	for _, r := range rows {
		key := NormalizePlace(r.Place)
		if key == "" {
			continue
		}
		merged, ok := t.rows[key]
		if !ok {
			merged = ReferenceRow{Place: key, Prices: make(map[models.Category]int)}
		}
		for cat, price := range r.Prices {
			if price > 0 {
				merged.Prices[cat] = price
			}
		}
		t.rows[key] = merged
	}

	t.fallback = t.rows[defaultReferenceKey]
	if t.fallback.Prices == nil {
		builtin := BuiltinReferenceRows[len(BuiltinReferenceRows)-1]
		t.fallback = ReferenceRow{Place: defaultReferenceKey, Prices: builtin.Prices}
	}

	for key := range t.rows {
		if key != defaultReferenceKey {
			t.ordered = append(t.ordered, key)
		}
	}
	// Longest key first so "aix-en-provence" wins over shorter contained keys.
	sort.Slice(t.ordered, func(i, j int) bool {
		if len(t.ordered[i]) != len(t.ordered[j]) {
			return len(t.ordered[i]) > len(t.ordered[j])
		}
		return t.ordered[i] < t.ordered[j]
	})

	return t
}

// DefaultReferenceTable returns the table built from the built-in rows only.
func DefaultReferenceTable() *ReferenceTable {
	return NewReferenceTable(BuiltinReferenceRows)
}

// LoadReferenceTable merges the rows of the JSON file at path over the
// built-in rows. An empty path yields the built-in table.
func LoadReferenceTable(path string) (*ReferenceTable, error) {
	if path == "" {
		return DefaultReferenceTable(), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference prices: %w", err)
	}

	var overrides []ReferenceRow
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse reference prices: %w", err)
	}

	rows := make([]ReferenceRow, 0, len(BuiltinReferenceRows)+len(overrides))
	rows = append(rows, BuiltinReferenceRows...)
	rows = append(rows, overrides...)
	return NewReferenceTable(rows), nil
}

// Lookup returns the reference price for place: exact key, then substring
// containment either way, then the default row.
func (t *ReferenceTable) Lookup(place string, category models.Category) ReferencePrice {
	key := NormalizePlace(place)

	if key != "" && key != defaultReferenceKey {
		if r, ok := t.rows[key]; ok {
			return ReferencePrice{PricePerArea: priceFor(r, category), Match: key, Exact: true}
		}
		for _, candidate := range t.ordered {
			if strings.Contains(key, candidate) || strings.Contains(candidate, key) {
				return ReferencePrice{PricePerArea: priceFor(t.rows[candidate], category), Match: candidate}
			}
		}
	}

	return ReferencePrice{
		PricePerArea: priceFor(t.fallback, category),
		Match:        defaultReferenceKey,
		Default:      true,
	}
}

// Places lists the non-default keys, longest first.
func (t *ReferenceTable) Places() []string {
	out := make([]string, len(t.ordered))
	copy(out, t.ordered)
	return out
}

func priceFor(r ReferenceRow, category models.Category) int {
	if p, ok := r.Prices[category]; ok {
		return p
	}
	return r.Prices[models.CategoryFlat]
}
