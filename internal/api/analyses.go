package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rendimo/server/internal/calculator"
	"rendimo/server/internal/database"
	"rendimo/server/internal/models"
)

type AnalysisRequest struct {
	CompareRequest
	MonthlyRent *float64 `json:"monthly_rent"`
}

// CreateAnalysis estimates the market, compares the listing, optionally
// computes its gross yield and stores the outcome.
func (h *Handler) CreateAnalysis(c *gin.Context) {
	var req AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var yield *models.YieldResult
	if req.MonthlyRent != nil {
		y, err := calculator.GrossYield(req.Price, *req.MonthlyRent)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		yield = &y
	}

	result, ok := h.compare(c, req.CompareRequest)
	if !ok {
		return
	}

	q := req.query()
	analysis := &models.Analysis{
		Place:              q.Name,
		PostalCode:         q.PostalCode,
		Category:           q.Category,
		Price:              req.Price,
		Area:               req.Area,
		MonthlyRent:        req.MonthlyRent,
		PricePerArea:       result.SubjectPricePerArea,
		MarketPricePerArea: result.Estimate.PricePerArea,
		PctDiff:            result.PctDiff,
		Verdict:            result.Verdict,
		BandPosition:       string(result.BandPosition),
		SourceLabel:        result.Estimate.SourceLabel,
		Confidence:         result.Estimate.Confidence,
	}
	if yield != nil {
		analysis.GrossYield = &yield.GrossYield
	}

	if err := h.store.Save(c.Request.Context(), analysis); err != nil {
		h.logger.WithError(err).Error("Failed to save analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save analysis"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"id":      analysis.ID,
		"place":   analysis.Place,
		"verdict": analysis.Verdict,
	}).Info("Analysis stored")

	c.JSON(http.StatusCreated, gin.H{
		"analysis":   analysis,
		"comparison": result,
		"yield":      yield,
	})
}

func (h *Handler) ListAnalyses(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = database.DefaultRecentLimit
	}

	analyses, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list analyses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list analyses"})
		return
	}

	c.JSON(http.StatusOK, analyses)
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	analysis, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrAnalysisNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get analysis"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}
