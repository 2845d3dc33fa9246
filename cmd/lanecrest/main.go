package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanecrest/lanecrest/internal/app"
	"github.com/lanecrest/lanecrest/internal/conversion"
	"github.com/lanecrest/lanecrest/internal/masterdata/tariffs"
	"github.com/lanecrest/lanecrest/internal/observability"
	"github.com/lanecrest/lanecrest/internal/platform/cache"
	"github.com/lanecrest/lanecrest/internal/platform/db"
	"github.com/lanecrest/lanecrest/internal/pricing"
	"github.com/lanecrest/lanecrest/internal/quoting"
	"github.com/lanecrest/lanecrest/internal/sequence"
	"github.com/lanecrest/lanecrest/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, tariff cache disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	feeCfg, err := cfg.FeeConfig()
	if err != nil {
		logger.Error("parse fee bounds", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	allocator := sequence.NewAllocator(sequence.NewRepository(pool), logger, metrics)

	quotingRepo := quoting.NewRepository(pool)
	quotingService := quoting.NewService(quotingRepo, allocator, auditLogger, logger)

	pricingRepo := pricing.NewRepository(pool)
	pricingService := pricing.NewService(pricingRepo, auditLogger)

	tariffRepo := tariffs.NewRepository(pool)
	tariffCache := cache.NewTTLCache(redisClient, "tariffs", cfg.TariffCacheTTL)
	tariffService := tariffs.NewService(tariffRepo, tariffCache, auditLogger, logger)

	conversionRepo := conversion.NewRepository(pool)
	conversionService := conversion.NewService(conversionRepo, quotingService, tariffService,
		allocator, idempotency, auditLogger, metrics, logger, feeCfg)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		QuotingHandler:    quoting.NewHandler(quotingService),
		PricingHandler:    pricing.NewHandler(logger, pricingService),
		ConversionHandler: conversion.NewHandler(conversionService),
		TariffsHandler:    tariffs.NewHandler(tariffService),
		SequenceHandler:   sequence.NewHandler(allocator, "quote", quoting.DefaultNumberFormat),
		Pool:              pool,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
