package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rendimo/server/internal/calculator"
	"rendimo/server/internal/database"
	"rendimo/server/internal/estimator"
	"rendimo/server/internal/geocoding"
	"rendimo/server/internal/models"
)

type PriceEstimator interface {
	Estimate(ctx context.Context, q models.PlaceQuery) models.PriceEstimate
}

type CommuneResolver interface {
	Resolve(ctx context.Context, name, postalCode string) (models.Commune, error)
}

type AnalysisStore interface {
	Save(ctx context.Context, a *models.Analysis) error
	Get(ctx context.Context, id string) (*models.Analysis, error)
	Recent(ctx context.Context, limit int) ([]models.Analysis, error)
}

type Handler struct {
	estimator PriceEstimator
	resolver  CommuneResolver
	store     AnalysisStore
	logger    *logrus.Logger
}

type PriceQuery struct {
	Place      string `form:"place"`
	PostalCode string `form:"postal_code"`
	Category   string `form:"category"`
}

type CompareRequest struct {
	Place      string  `json:"place"`
	PostalCode string  `json:"postal_code"`
	Category   string  `json:"category"`
	Price      float64 `json:"price"`
	Area       float64 `json:"area"`
}

type YieldRequest struct {
	PurchasePrice float64 `json:"purchase_price"`
	MonthlyRent   float64 `json:"monthly_rent"`
}

func NewHandler(est PriceEstimator, resolver CommuneResolver, store AnalysisStore, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		estimator: est,
		resolver:  resolver,
		store:     store,
		logger:    logger,
	}
}

func (r CompareRequest) query() models.PlaceQuery {
	return models.PlaceQuery{
		Name:       strings.TrimSpace(r.Place),
		PostalCode: strings.TrimSpace(r.PostalCode),
		Category:   models.ParseCategory(r.Category),
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetPriceEstimate(c *gin.Context) {
	var q PriceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	place := strings.TrimSpace(q.Place)
	if place == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "place is required"})
		return
	}

	est := h.estimator.Estimate(c.Request.Context(), models.PlaceQuery{
		Name:       place,
		PostalCode: strings.TrimSpace(q.PostalCode),
		Category:   models.ParseCategory(q.Category),
	})

	c.JSON(http.StatusOK, est)
}

func (h *Handler) CompareListing(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to parse compare request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, ok := h.compare(c, req)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, result)
}

// compare writes the error response itself and reports whether the caller
// should go on.
func (h *Handler) compare(c *gin.Context, req CompareRequest) (models.ComparisonResult, bool) {
	q := req.query()
	if q.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "place is required"})
		return models.ComparisonResult{}, false
	}

	if err := estimator.ValidateListing(req.Price, req.Area); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.ComparisonResult{}, false
	}

	est := h.estimator.Estimate(c.Request.Context(), q)

	result, err := estimator.Compare(req.Price, req.Area, est)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, estimator.ErrNoMarketPrice) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return models.ComparisonResult{}, false
	}

	return result, true
}

func (h *Handler) CalculateYield(c *gin.Context) {
	var req YieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := calculator.GrossYield(req.PurchasePrice, req.MonthlyRent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetCommune(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	commune, err := h.resolver.Resolve(c.Request.Context(), name, strings.TrimSpace(c.Query("postal_code")))
	if err != nil {
		if errors.Is(err, geocoding.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Commune not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to resolve commune")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve commune"})
		return
	}

	c.JSON(http.StatusOK, geocoding.CommuneFeature(commune))
}

var _ AnalysisStore = (*database.Store)(nil)
