// Package estimator turns a place into a market price per m², falling back
// from live transactions to local aggregates to the reference table.
package estimator

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rendimo/server/config"
	"rendimo/server/internal/cache"
	"rendimo/server/internal/database"
	"rendimo/server/internal/dvf"
	"rendimo/server/internal/models"
	"rendimo/server/internal/stats"
)

const (
	DefaultLookbackMonths = 24
	DefaultMinSamples     = 3

	ReferenceConfidence = 0.30
	ReferencePeriod     = "reference 2024"
	AggregatePeriod     = "dvf aggregate"
	maxAggregateConf    = 0.60
)

type CommuneResolver interface {
	Resolve(ctx context.Context, name, postalCode string) (models.Commune, error)
}

type TransactionFetcher interface {
	Fetch(ctx context.Context, q dvf.Query, lookbackMonths int) dvf.Result
}

type AggregateSource interface {
	Lookup(ctx context.Context, city, postalCode string, category models.Category) (database.AggregatePrice, bool, error)
}

type ReferenceSource interface {
	Lookup(place string, category models.Category) config.ReferencePrice
}

type EstimateCache interface {
	Get(key string) (models.PriceEstimate, bool)
	Set(key string, value models.PriceEstimate)
}

type Options struct {
	LookbackMonths int
	MinSamples     int
	// Timeout bounds the live and aggregate lookups of one estimate. Zero
	// leaves only the caller's deadline.
	Timeout time.Duration
	// Aggregates is optional
	Aggregates AggregateSource
}

type Estimator struct {
	resolver       CommuneResolver
	fetcher        TransactionFetcher
	reference      ReferenceSource
	cache          EstimateCache
	aggregates     AggregateSource
	lookbackMonths int
	minSamples     int
	timeout        time.Duration
	logger         *logrus.Logger
}

func New(logger *logrus.Logger, resolver CommuneResolver, fetcher TransactionFetcher, reference ReferenceSource, c EstimateCache, opts Options) *Estimator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.LookbackMonths <= 0 {
		opts.LookbackMonths = DefaultLookbackMonths
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultMinSamples
	}

	return &Estimator{
		resolver:       resolver,
		fetcher:        fetcher,
		reference:      reference,
		cache:          c,
		aggregates:     opts.Aggregates,
		lookbackMonths: opts.LookbackMonths,
		minSamples:     opts.MinSamples,
		timeout:        opts.Timeout,
		logger:         logger,
	}
}

// GetPriceEstimate is Estimate for callers holding a free-form category.
func (e *Estimator) GetPriceEstimate(ctx context.Context, place, postalCode, category string) models.PriceEstimate {
	return e.Estimate(ctx, models.PlaceQuery{
		Name:       place,
		PostalCode: postalCode,
		Category:   models.ParseCategory(category),
	})
}

// Estimate always returns an estimate with a numeric price. Its source
// label and confidence tell how much to trust it.
func (e *Estimator) Estimate(ctx context.Context, q models.PlaceQuery) models.PriceEstimate {
	q.Name = strings.TrimSpace(q.Name)
	q.PostalCode = strings.TrimSpace(q.PostalCode)
	if q.Category == "" {
		q.Category = models.CategoryFlat
	}

	key := cache.Key(config.NormalizePlace(q.Name), q.PostalCode, q.Category, e.lookbackMonths)
	fields := logrus.Fields{
		"place":       q.Name,
		"postal_code": q.PostalCode,
		"category":    q.Category,
	}

	if cached, ok := e.cache.Get(key); ok {
		e.logger.WithFields(fields).WithField("source", cached.SourceLabel).Debug("Estimate served from cache")
		return cached
	}

	lookupCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	estimate, ok := e.live(lookupCtx, q, fields)
	if !ok {
		estimate, ok = e.aggregate(lookupCtx, q, fields)
	}
	if !ok {
		estimate = e.referenceEstimate(q)
	}

	e.logger.WithFields(fields).WithFields(logrus.Fields{
		"source":         estimate.SourceLabel,
		"price_per_area": estimate.PricePerArea,
	}).Info("Estimated market price")

	// An interrupted lookup says nothing about the place.
	if err := lookupCtx.Err(); err != nil {
		e.logger.WithError(err).WithFields(fields).Warn("Lookup interrupted, estimate not cached")
		return estimate
	}

	e.cache.Set(key, estimate)
	return estimate
}

func (e *Estimator) live(ctx context.Context, q models.PlaceQuery, fields logrus.Fields) (models.PriceEstimate, bool) {
	commune, err := e.resolver.Resolve(ctx, q.Name, q.PostalCode)
	if err != nil {
		e.logger.WithError(err).WithFields(fields).Info("Place not resolved, skipping transactions")
		return models.PriceEstimate{}, false
	}

	name := commune.Name
	if name == "" {
		name = q.Name
	}

	result := e.fetcher.Fetch(ctx, dvf.Query{
		Code:       commune.Code,
		PostalCode: q.PostalCode,
		Name:       name,
		Category:   q.Category,
	}, e.lookbackMonths)

	s, ok := stats.Compute(result.Records)
	if !ok || s.Count < e.minSamples {
		e.logger.WithFields(fields).WithFields(logrus.Fields{
			"code":    commune.Code,
			"samples": s.Count,
		}).Info("Not enough transactions")
		return models.PriceEstimate{}, false
	}

	months := result.LookbackMonths
	if months == 0 {
		months = e.lookbackMonths
	}

	lower := round(s.P10)
	upper := round(s.P90)
	confidence := Confidence(s)

	return models.PriceEstimate{
		PricePerArea: round(s.Median),
		LowerBound:   &lower,
		UpperBound:   &upper,
		SampleCount:  models.SampleCount(s.Count),
		PeriodLabel:  fmt.Sprintf("last %d months", months),
		Place:        q.Name,
		PostalCode:   q.PostalCode,
		CommuneCode:  commune.Code,
		Category:     q.Category,
		SourceLabel:  models.SourceLive,
		Confidence:   &confidence,
	}, true
}

func (e *Estimator) aggregate(ctx context.Context, q models.PlaceQuery, fields logrus.Fields) (models.PriceEstimate, bool) {
	if e.aggregates == nil {
		return models.PriceEstimate{}, false
	}

	price, found, err := e.aggregates.Lookup(ctx, q.Name, q.PostalCode, q.Category)
	if err != nil {
		e.logger.WithError(err).WithFields(fields).Warn("Aggregate lookup failed")
		return models.PriceEstimate{}, false
	}
	if !found {
		return models.PriceEstimate{}, false
	}

	confidence := math.Min(maxAggregateConf, float64(price.Reliability)/100)
	if confidence < 0 {
		confidence = 0
	}

	postalCode := q.PostalCode
	if postalCode == "" {
		postalCode = price.PostalCode
	}

	return models.PriceEstimate{
		PricePerArea: price.PricePerArea,
		SampleCount:  models.SampleCount(price.TransactionCount),
		PeriodLabel:  AggregatePeriod,
		Place:        q.Name,
		PostalCode:   postalCode,
		Category:     q.Category,
		SourceLabel:  models.SourceAggregate,
		Confidence:   &confidence,
	}, true
}

func (e *Estimator) referenceEstimate(q models.PlaceQuery) models.PriceEstimate {
	ref := e.reference.Lookup(q.Name, q.Category)
	confidence := ReferenceConfidence

	return models.PriceEstimate{
		PricePerArea: ref.PricePerArea,
		SampleCount:  models.UnknownSampleCount,
		PeriodLabel:  ReferencePeriod,
		Place:        q.Name,
		PostalCode:   q.PostalCode,
		Category:     q.Category,
		SourceLabel:  models.SourceReference,
		Confidence:   &confidence,
	}
}

// Confidence grows with the sample size tier and shrinks with the relative
// width of the p10-p90 band. It never drops below the tier base.
func Confidence(s models.PriceStats) float64 {
	var base float64
	switch {
	case s.Count > 50:
		base = 0.80
	case s.Count >= 15:
		base = 0.60
	default:
		base = 0.40
	}

	var tightness float64
	if s.Median > 0 {
		tightness = math.Max(0, 1-(s.P90-s.P10)/s.Median)
	}

	return math.Round((base+0.15*tightness)*100) / 100
}

func round(v float64) int {
	return int(math.Round(v))
}
