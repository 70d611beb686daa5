package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appstudy "bible-study/application/study"
	"bible-study/domain/bible"
	"bible-study/infrastructure/bibleapi"
	"bible-study/infrastructure/credentials"
	infrahistory "bible-study/infrastructure/history"
	"bible-study/infrastructure/refcache"
	httpiface "bible-study/interfaces/http"
	"bible-study/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadYAML("")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Configure logging level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetReportCaller(cfg.Logging.ReportCaller)

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Server.Port,
		"host":    cfg.Server.Host,
		"api":     cfg.API.BaseURL,
		"history": cfg.History.Enabled,
	}).Info("Starting Bible study gateway")

	// Credential store: provider API keys attached to every upstream call
	keyStore, err := credentials.Open(cfg.Credentials.Path)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open credential store")
	}
	defer keyStore.Close()

	// Base API client wrapped with a circuit breaker for resilience
	baseClient := bibleapi.NewClient(cfg.API.BaseURL, keyStore, cfg.API.Timeout, cfg.API.IdleTimeout)
	circuitBreakerConfig := bibleapi.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	client := bibleapi.NewCircuitBreakerClient(baseClient, circuitBreakerConfig)

	logrus.WithFields(logrus.Fields{
		"enabled":           circuitBreakerConfig.Enabled,
		"failure_threshold": circuitBreakerConfig.FailureThreshold,
		"timeout":           circuitBreakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	// Caches: memoized translations list, bounded LRU of search responses
	translationsCache := refcache.NewTranslationsCache(func(ctx context.Context) (*bible.TranslationsResponse, error) {
		return client.ListTranslations(ctx, "")
	})
	resultCache, err := refcache.NewSearchResultCache(cfg.Cache.SearchResults)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create search result cache")
	}

	var recorder *infrahistory.Recorder
	if cfg.History.Enabled {
		recorder, err = infrahistory.NewRecorder(cfg.History.Path, cfg.History.Workers, cfg.History.BufferSize)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open history store")
		}
		if err := recorder.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start history recorder")
		}
		logrus.Info("Search history recording enabled")
	} else {
		logrus.Info("Running without search history")
	}

	var service *appstudy.Service
	var router *httpiface.Router
	if recorder != nil {
		service = appstudy.NewService(client, client, translationsCache, resultCache, recorder, cfg.API.MaxResultsCap)
		router = httpiface.NewRouter(service, keyStore, recorder, cfg.Server.CorsOrigins)
	} else {
		service = appstudy.NewService(client, client, translationsCache, resultCache, nil, cfg.API.MaxResultsCap)
		router = httpiface.NewRouter(service, keyStore, nil, cfg.Server.CorsOrigins)
	}

	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long WriteTimeout: streamed generations can run for minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for interrupt signal to trigger shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if recorder != nil {
		if err := recorder.Stop(); err != nil {
			logrus.WithError(err).Error("Failed to stop history recorder")
		}
	}
}
