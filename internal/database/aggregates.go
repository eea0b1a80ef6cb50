package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"rendimo/server/internal/models"
)

// AggregatePrice is one row of the pre-aggregated price_data table.
type AggregatePrice struct {
	PricePerArea     int
	TransactionCount int
	Reliability      int
	City             string
	PostalCode       string
}

// Aggregates reads a local SQLite file of pre-aggregated DVF prices. The
// file is opened read-only.
type Aggregates struct {
	db *sql.DB
}

func OpenAggregates(dbPath string) (*Aggregates, error) {
	db, err := sql.Open("sqlite3", readOnlyDSN(dbPath))
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open aggregate database: %w", err)
	}

	return &Aggregates{db: db}, nil
}

// readOnlyDSN escapes the path so that ? and # stay part of the file name.
func readOnlyDSN(dbPath string) string {
	return "file:" + (&url.URL{Path: dbPath}).EscapedPath() + "?mode=ro"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (a *Aggregates) Close() error {
	return a.db.Close()
}

// The table uses English property types with "apartment" for flats.
func aggregateType(c models.Category) string {
	switch c {
	case models.CategoryFlat:
		return "apartment"
	case models.CategoryHouse:
		return "house"
	default:
		return "other"
	}
}

// Lookup finds the best row for a place: by postal code first, then by a
// city name match. Among candidates the row with most transactions wins.
func (a *Aggregates) Lookup(ctx context.Context, city, postalCode string, category models.Category) (AggregatePrice, bool, error) {
	propertyType := aggregateType(category)

	if postalCode != "" {
		row := a.db.QueryRowContext(ctx, `
			SELECT price_per_sqm_mean, transaction_count, reliability_score, city, postal_code
			FROM price_data
			WHERE postal_code = ? AND property_type = ?
			ORDER BY transaction_count DESC
			LIMIT 1
		`, postalCode, propertyType)

		price, found, err := scanAggregate(row)
		if err != nil || found {
			return price, found, err
		}
	}

	city = strings.TrimSpace(city)
	if city == "" {
		return AggregatePrice{}, false, nil
	}

	row := a.db.QueryRowContext(ctx, `
		SELECT price_per_sqm_mean, transaction_count, reliability_score, city, postal_code
		FROM price_data
		WHERE city LIKE ? ESCAPE '\' AND property_type = ?
		ORDER BY transaction_count DESC
		LIMIT 1
	`, "%"+likeEscaper.Replace(city)+"%", propertyType)

	return scanAggregate(row)
}

func scanAggregate(row *sql.Row) (AggregatePrice, bool, error) {
	var price sql.NullFloat64
	var count, reliability sql.NullInt64
	var city, postalCode sql.NullString

	err := row.Scan(&price, &count, &reliability, &city, &postalCode)
	if errors.Is(err, sql.ErrNoRows) {
		return AggregatePrice{}, false, nil
	}
	if err != nil {
		return AggregatePrice{}, false, err
	}
	if !price.Valid || price.Float64 <= 0 {
		return AggregatePrice{}, false, nil
	}

	return AggregatePrice{
		PricePerArea:     int(price.Float64 + 0.5),
		TransactionCount: int(count.Int64),
		Reliability:      int(reliability.Int64),
		City:             city.String,
		PostalCode:       postalCode.String,
	}, true, nil
}
