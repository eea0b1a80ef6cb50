// Package dvf queries the DVF property transactions dataset.
package dvf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rendimo/server/internal/models"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultPageSize      = 100
	DefaultMinSamples    = 3
	DefaultWidenedMonths = 36
)

var DefaultBaseURLs = []string{
	"https://data.economie.gouv.fr/api/explore/v2.1/catalog/datasets/dvf/records",
	"https://api.data.gouv.fr/api/explore/v2.1/catalog/datasets/dvf/records",
	"https://opendata.data.gouv.fr/api/explore/v2.1/catalog/datasets/dvf/records",
}

// ErrUnavailable is returned by a single query when every mirror failed.
var ErrUnavailable = errors.New("dvf endpoints unavailable")

const (
	StrategyCode   = "code"
	StrategyPostal = "postal_code"
	StrategyName   = "name"
)

// Query identifies the area to fetch transactions for. Code is the commune
// code; PostalCode and Name feed the fallbacks.
type Query struct {
	Code       string
	PostalCode string
	Name       string
	Category   models.Category
}

// Result holds the plausible records of the strategy that answered.
type Result struct {
	Records        []models.TransactionRecord
	Strategy       string
	LookbackMonths int
	Endpoint       string
}

type Options struct {
	PageSize      int
	MinSamples    int
	WidenedMonths int
	Now           func() time.Time
}

type Fetcher struct {
	logger        *logrus.Logger
	client        *http.Client
	baseURLs      []string
	pageSize      int
	minSamples    int
	widenedMonths int
	now           func() time.Time
}

func NewFetcher(logger *logrus.Logger, client *http.Client, baseURLs []string, opts Options) *Fetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if len(baseURLs) == 0 {
		baseURLs = DefaultBaseURLs
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultMinSamples
	}
	if opts.WidenedMonths <= 0 {
		opts.WidenedMonths = DefaultWidenedMonths
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Fetcher{
		logger:        logger,
		client:        client,
		baseURLs:      baseURLs,
		pageSize:      opts.PageSize,
		minSamples:    opts.MinSamples,
		widenedMonths: opts.WidenedMonths,
		now:           opts.Now,
	}
}

func (f *Fetcher) MinSamples() int {
	return f.minSamples
}

type strategy struct {
	name   string
	filter string
}

// Fetch runs the fallback chain (commune code, postal code, commune name)
// over the requested window and then over the widened one. The first
// strategy yielding at least MinSamples plausible records wins; otherwise
// the largest partial result is returned.
func (f *Fetcher) Fetch(ctx context.Context, q Query, lookbackMonths int) Result {
	label := q.Category.DatasetLabel()
	if label == "" {
		return Result{}
	}

	codes := ExpandCode(q.Code)

	windows := []int{lookbackMonths}
	if lookbackMonths < f.widenedMonths {
		windows = append(windows, f.widenedMonths)
	}

	var strategies []strategy
	if len(codes) > 0 {
		strategies = append(strategies, strategy{name: StrategyCode, filter: codeFilter(codes)})
	}
	if q.PostalCode != "" {
		strategies = append(strategies, strategy{name: StrategyPostal, filter: fmt.Sprintf("code_postal=%q", q.PostalCode)})
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		strategies = append(strategies, strategy{name: StrategyName, filter: fmt.Sprintf("nom_commune=%q", strings.ToUpper(name))})
	}

	var best Result
	for _, months := range windows {
		since := f.now().AddDate(0, 0, -months*30)

		for _, s := range strategies {
			if ctx.Err() != nil {
				return best
			}

			where := strings.Join([]string{
				s.filter,
				`nature_mutation="Vente"`,
				fmt.Sprintf("type_local=%q", label),
				fmt.Sprintf("date_mutation>=%q", since.Format("2006-01-02")),
			}, " AND ")

			records, endpoint, err := f.query(ctx, where)
			if err != nil {
				f.logger.WithError(err).WithFields(logrus.Fields{
					"strategy": s.name,
					"months":   months,
					"code":     q.Code,
				}).Warn("DVF query failed")
				continue
			}

			if s.name != StrategyCode && len(codes) > 0 {
				records = keepCodes(records, codes)
			}

			result := Result{
				Records:        records,
				Strategy:       s.name,
				LookbackMonths: months,
				Endpoint:       endpoint,
			}

			f.logger.WithFields(logrus.Fields{
				"strategy": s.name,
				"months":   months,
				"code":     q.Code,
				"records":  len(records),
				"endpoint": endpoint,
			}).Info("DVF query answered")

			if len(records) >= f.minSamples {
				return result
			}
			if len(records) > len(best.Records) {
				best = result
			}
		}
	}

	return best
}

func codeFilter(codes []string) string {
	if len(codes) == 1 {
		return fmt.Sprintf("code_commune=%q", codes[0])
	}
	quoted := make([]string, len(codes))
	for i, c := range codes {
		quoted[i] = strconv.Quote(c)
	}
	return fmt.Sprintf("code_commune IN (%s)", strings.Join(quoted, ","))
}

func keepCodes(records []models.TransactionRecord, codes []string) []models.TransactionRecord {
	allowed := make(map[string]bool, len(codes))
	for _, c := range codes {
		allowed[c] = true
	}
	kept := records[:0]
	for _, r := range records {
		if allowed[r.CommuneCode] {
			kept = append(kept, r)
		}
	}
	return kept
}

// query tries each mirror in order. The first 200 answer is authoritative,
// even when it holds no record.
func (f *Fetcher) query(ctx context.Context, where string) ([]models.TransactionRecord, string, error) {
	params := url.Values{
		"select":   []string{"valeur_fonciere,surface_reelle_bati,date_mutation,type_local,code_commune,code_postal"},
		"where":    []string{where},
		"order_by": []string{"date_mutation DESC"},
		"limit":    []string{strconv.Itoa(f.pageSize)},
	}

	var lastErr error
	for _, base := range f.baseURLs {
		body, err := f.get(ctx, base, params)
		if err != nil {
			f.logger.WithError(err).WithField("endpoint", base).Debug("DVF mirror failed, trying next")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		records, err := parseRecords(body)
		if err != nil {
			f.logger.WithError(err).WithField("endpoint", base).Error("Failed to parse DVF response")
			return nil, base, nil
		}
		return records, base, nil
	}

	return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (f *Fetcher) get(ctx context.Context, base string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "Rendimo Price Estimator/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

type recordsResponse struct {
	Results []struct {
		Price       flexFloat `json:"valeur_fonciere"`
		Area        flexFloat `json:"surface_reelle_bati"`
		Date        string    `json:"date_mutation"`
		TypeLocal   string    `json:"type_local"`
		CommuneCode string    `json:"code_commune"`
		PostalCode  string    `json:"code_postal"`
	} `json:"results"`
}

func parseRecords(body []byte) ([]models.TransactionRecord, error) {
	var payload recordsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	records := make([]models.TransactionRecord, 0, len(payload.Results))
	for _, r := range payload.Results {
		if !r.Price.valid || !r.Area.valid {
			continue
		}
		record := models.TransactionRecord{
			Price:       r.Price.value,
			Area:        r.Area.value,
			Category:    categoryFromLabel(r.TypeLocal),
			CommuneCode: r.CommuneCode,
			PostalCode:  r.PostalCode,
		}
		if len(r.Date) >= 10 {
			if d, err := time.Parse("2006-01-02", r.Date[:10]); err == nil {
				record.Date = d
			}
		}
		if !record.IsPlausible() {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func categoryFromLabel(label string) models.Category {
	switch label {
	case "Appartement":
		return models.CategoryFlat
	case "Maison":
		return models.CategoryHouse
	default:
		return models.CategoryOther
	}
}

// flexFloat accepts JSON numbers, numeric strings (with a decimal comma or
// point) and null. Unparseable or non-finite values leave valid false.
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(unquoted), ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	f.value = v
	f.valid = true
	return nil
}
