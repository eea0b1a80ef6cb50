package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rendimo/server/config"
	"rendimo/server/internal/api"
	"rendimo/server/internal/cache"
	"rendimo/server/internal/database"
	"rendimo/server/internal/dvf"
	"rendimo/server/internal/estimator"
	"rendimo/server/internal/geocoding"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithError(err).Warn("Invalid log level, keeping info")
	}

	reference, err := config.LoadReferenceTable(cfg.ReferencePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load reference prices")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", cfg.Database.Path)

	store, err := database.OpenStore(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	priceCache, err := cache.New(logger, cache.Options{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache")
	}

	resolver := geocoding.NewResolver(logger, &http.Client{Timeout: cfg.Geo.Timeout}, cfg.Geo.BaseURL)
	fetcher := dvf.NewFetcher(logger, &http.Client{Timeout: cfg.DVF.Timeout}, cfg.DVF.BaseURLs, dvf.Options{
		PageSize:      cfg.DVF.PageSize,
		MinSamples:    cfg.DVF.MinSamples,
		WidenedMonths: cfg.DVF.WidenedMonths,
	})

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
			defer aggregates.Close()
			opts.Aggregates = aggregates
		}
	}

	est := estimator.New(logger, resolver, fetcher, reference, priceCache, opts)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(est, resolver, store, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Estimates are cut off at EstimateTimeout; leave room to answer.
		WriteTimeout: cfg.DVF.EstimateTimeout + 30*time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}
