package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"rendimo/server/internal/models"
)

const (
	DefaultBaseURL = "https://geo.api.gouv.fr/communes"
	DefaultTimeout = 5 * time.Second
)

// ErrNotFound is returned whenever a place cannot be resolved to a commune,
// whatever the underlying cause.
var ErrNotFound = errors.New("commune not found")

// Resolver maps a place name to a commune through the geo.api.gouv.fr
// directory. It makes a single attempt per call.
type Resolver struct {
	logger  *logrus.Logger
	client  *http.Client
	baseURL string
}

func NewResolver(logger *logrus.Logger, client *http.Client, baseURL string) *Resolver {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Resolver{
		logger:  logger,
		client:  client,
		baseURL: baseURL,
	}
}

type communeResponse []struct {
	Code        string            `json:"code"`
	Name        string            `json:"nom"`
	PostalCodes []string          `json:"codesPostaux"`
	Centre      *geojson.Geometry `json:"centre"`
}

// Resolve returns the commune matching name and, when given, postalCode.
// Every failure mode is reported as ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, name, postalCode string) (models.Commune, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Commune{}, ErrNotFound
	}

	fields := logrus.Fields{
		"place":       name,
		"postal_code": postalCode,
	}

	params := url.Values{
		"nom":    []string{name},
		"fields": []string{"code,nom,codesPostaux,centre"},
		"limit":  []string{"1"},
	}
	if postalCode != "" {
		params.Set("codePostal", postalCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL, nil)
	if err != nil {
		return models.Commune{}, fmt.Errorf("%w: failed to create request: %v", ErrNotFound, err)
	}

	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "Rendimo Price Estimator/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("Commune lookup failed")
		return models.Commune{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.WithFields(fields).WithField("status", resp.StatusCode).Warn("Commune lookup returned non-200")
		return models.Commune{}, fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("Failed to read commune response")
		return models.Commune{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var result communeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		r.logger.WithError(err).WithFields(fields).Error("Failed to parse commune response")
		return models.Commune{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	if len(result) == 0 || result[0].Code == "" {
		r.logger.WithFields(fields).Info("No commune found")
		return models.Commune{}, ErrNotFound
	}

	first := result[0]
	commune := models.Commune{
		Code:        first.Code,
		Name:        first.Name,
		PostalCodes: first.PostalCodes,
	}
	if first.Centre != nil {
		if p, ok := first.Centre.Geometry().(orb.Point); ok {
			commune.Centre = p
		}
	}

	r.logger.WithFields(fields).WithFields(logrus.Fields{
		"code":   commune.Code,
		"source": "geo.api.gouv.fr",
	}).Info("Resolved commune")

	return commune, nil
}

// CommuneFeature renders a commune as a GeoJSON point feature.
func CommuneFeature(c models.Commune) *geojson.Feature {
	feature := geojson.NewFeature(c.Centre)
	feature.Properties = geojson.Properties{
		"code":         c.Code,
		"name":         c.Name,
		"postal_codes": c.PostalCodes,
	}
	return feature
}
