// Rendimo CLI - market price per m² for French places
//
// Usage:
//
//	rendimo estimate --place Rennes --category flat
//	rendimo compare --place Lyon --price 320000 --area 68
//	rendimo yield --price 200000 --rent 1100
//	rendimo warm --file places.txt --category house
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"rendimo/server/config"
	"rendimo/server/internal/cache"
	"rendimo/server/internal/calculator"
	"rendimo/server/internal/database"
	"rendimo/server/internal/dvf"
	"rendimo/server/internal/estimator"
	"rendimo/server/internal/geocoding"
	"rendimo/server/internal/models"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "rendimo",
		Usage:   "Estimate French property market prices and rental yields",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
		},
		Commands: []*cli.Command{
			estimateCommand(),
			compareCommand(),
			yieldCommand(),
			warmCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func placeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "place",
			Aliases:  []string{"p"},
			Usage:    "Commune name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "postal-code",
			Usage: "Postal code, narrows homonymous communes",
		},
		&cli.StringFlag{
			Name:    "category",
			Aliases: []string{"c"},
			Value:   "flat",
			Usage:   "Property category (flat, house, other)",
		},
	}
}

func queryFrom(c *cli.Context) models.PlaceQuery {
	return models.PlaceQuery{
		Name:       c.String("place"),
		PostalCode: c.String("postal-code"),
		Category:   models.ParseCategory(c.String("category")),
	}
}

func newLogger(c *cli.Context) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(c.String("log-level")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// buildEstimator wires the pipeline from the same environment as the server.
func buildEstimator(c *cli.Context) (*estimator.Estimator, func(), error) {
	logger := newLogger(c)

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	reference, err := config.LoadReferenceTable(cfg.ReferencePath)
	if err != nil {
		return nil, nil, err
	}

	priceCache, err := cache.New(logger, cache.Options{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL})
	if err != nil {
		return nil, nil, err
	}

	resolver := geocoding.NewResolver(logger, &http.Client{Timeout: cfg.Geo.Timeout}, cfg.Geo.BaseURL)
	fetcher := dvf.NewFetcher(logger, &http.Client{Timeout: cfg.DVF.Timeout}, cfg.DVF.BaseURLs, dvf.Options{
		PageSize:      cfg.DVF.PageSize,
		MinSamples:    cfg.DVF.MinSamples,
		WidenedMonths: cfg.DVF.WidenedMonths,
	})

	cleanup := func() {}
	opts := estimator.Options{
		LookbackMonths: cfg.DVF.LookbackMonths,
		MinSamples:     cfg.DVF.MinSamples,
		Timeout:        cfg.DVF.EstimateTimeout,
	}
	if cfg.DVF.AggregatePath != "" {
		aggregates, err := database.OpenAggregates(cfg.DVF.AggregatePath)
		if err != nil {
			logger.WithError(err).Warn("Aggregate database unavailable, continuing without it")
		} else {
			opts.Aggregates = aggregates
			cleanup = func() { aggregates.Close() }
		}
	}

	return estimator.New(logger, resolver, fetcher, reference, priceCache, opts), cleanup, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEstimate(w io.Writer, est models.PriceEstimate) {
	fmt.Fprintf(w, "%s (%s): %d €/m²\n", est.Place, est.Category, est.PricePerArea)
	if est.HasBand() {
		fmt.Fprintf(w, "  range p10-p90: %d - %d €/m²\n", *est.LowerBound, *est.UpperBound)
	}
	samples := "unknown"
	if est.SampleCount.Known() {
		samples = fmt.Sprint(int(est.SampleCount))
	}
	fmt.Fprintf(w, "  samples: %s, period: %s\n", samples, est.PeriodLabel)
	if est.Confidence != nil {
		fmt.Fprintf(w, "  source: %s, confidence: %.2f\n", est.SourceLabel, *est.Confidence)
	}
}

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Estimate the market price per m² of a place",
		Flags: placeFlags(),
		Action: func(c *cli.Context) error {
			est, cleanup, err := buildEstimator(c)
			if err != nil {
				return err
			}
			defer cleanup()

			result := est.Estimate(c.Context, queryFrom(c))
			if c.Bool("json") {
				return printJSON(c.App.Writer, result)
			}
			printEstimate(c.App.Writer, result)
			return nil
		},
	}
}

func compareCommand() *cli.Command {
	flags := append(placeFlags(),
		&cli.Float64Flag{
			Name:     "price",
			Usage:    "Listing price in €",
			Required: true,
		},
		&cli.Float64Flag{
			Name:     "area",
			Usage:    "Living area in m²",
			Required: true,
		},
	)

	return &cli.Command{
		Name:  "compare",
		Usage: "Compare a listing to its local market",
		Flags: flags,
		Action: func(c *cli.Context) error {
			if err := estimator.ValidateListing(c.Float64("price"), c.Float64("area")); err != nil {
				return err
			}

			est, cleanup, err := buildEstimator(c)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := est.CompareListing(c.Context, queryFrom(c), c.Float64("price"), c.Float64("area"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, result)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Listing: %.0f €/m², market: %.0f €/m² (%+.1f%%)\n",
				result.SubjectPricePerArea, result.MarketPricePerArea, result.PctDiff)
			fmt.Fprintf(w, "Verdict: %s\n", result.Verdict)
			if result.BandPosition != "" {
				fmt.Fprintf(w, "Position in p10-p90 range: %s\n", result.BandPosition)
			}
			printEstimate(w, result.Estimate)
			return nil
		},
	}
}

func yieldCommand() *cli.Command {
	return &cli.Command{
		Name:  "yield",
		Usage: "Compute the gross rental yield of a purchase",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "price",
				Usage:    "Purchase price in €",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "rent",
				Usage:    "Monthly rent in €",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			result, err := calculator.GrossYield(c.Float64("price"), c.Float64("rent"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, result)
			}
			fmt.Fprintf(c.App.Writer, "Annual rent: %.2f €\nGross yield: %.2f%% (%s)\n",
				result.AnnualRent, result.GrossYield, result.Rating)
			return nil
		},
	}
}

// readPlaces parses one place per line, optionally followed by a comma and
// a postal code. Blank lines and lines starting with # are ignored.
func readPlaces(r io.Reader) ([]models.PlaceQuery, error) {
	var places []models.PlaceQuery
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, postal, _ := strings.Cut(line, ",")
		places = append(places, models.PlaceQuery{
			Name:       strings.TrimSpace(name),
			PostalCode: strings.TrimSpace(postal),
		})
	}
	return places, scanner.Err()
}

func warmCommand() *cli.Command {
	return &cli.Command{
		Name:  "warm",
		Usage: "Pre-compute and cache estimates for a list of places",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "File with one place per line (name[,postal code])",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "category",
				Value: cli.NewStringSlice("flat", "house"),
				Usage: "Categories to warm",
			},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			places, err := readPlaces(f)
			if err != nil {
				return fmt.Errorf("failed to read places: %w", err)
			}

			est, cleanup, err := buildEstimator(c)
			if err != nil {
				return err
			}
			defer cleanup()

			return warm(c.Context, est, places, c.StringSlice("category"), c.App.Writer)
		},
	}
}

type placeEstimator interface {
	Estimate(ctx context.Context, q models.PlaceQuery) models.PriceEstimate
}

// warm runs the estimates one after the other and reports how many came
// from each source.
func warm(ctx context.Context, est placeEstimator, places []models.PlaceQuery, categories []string, w io.Writer) error {
	bar := progressbar.NewOptions(len(places)*len(categories),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("warming"),
		progressbar.OptionShowCount(),
	)

	sources := make(map[string]int)
	for _, p := range places {
		for _, cat := range categories {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q := p
			q.Category = models.ParseCategory(cat)
			result := est.Estimate(ctx, q)
			sources[result.SourceLabel]++
			_ = bar.Add(1)
		}
	}
	_ = bar.Finish()

	fmt.Fprintf(w, "\nWarmed %d estimates: %d live, %d aggregate, %d reference\n",
		len(places)*len(categories),
		sources[models.SourceLive], sources[models.SourceAggregate], sources[models.SourceReference])
	return nil
}
