package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(handler *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	SetupRoutes(router, handler)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/prices", handler.GetPriceEstimate)
		api.POST("/compare", handler.CompareListing)
		api.POST("/yield", handler.CalculateYield)
		api.GET("/communes", handler.GetCommune)

		api.POST("/analyses", handler.CreateAnalysis)
		api.GET("/analyses", handler.ListAnalyses)
		api.GET("/analyses/:id", handler.GetAnalysis)
	}
}
