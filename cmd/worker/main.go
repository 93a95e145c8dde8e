// Command worker consumes tip-generation tasks and writes tips back to the
// database. It runs separately from the API so slow completion calls never
// block request handling.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opcdev/opc-evaluator/internal/adapter/ai/anthropic"
	"github.com/opcdev/opc-evaluator/internal/adapter/docfetch"
	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/adapter/queue/redpanda"
	"github.com/opcdev/opc-evaluator/internal/adapter/repo/postgres"
	"github.com/opcdev/opc-evaluator/internal/config"
	"github.com/opcdev/opc-evaluator/internal/usecase"
)

const consumerGroup = "opc-evaluator-tips"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	studentRepo := postgres.NewStudentRepo(pool)
	pondRepo := postgres.NewPonderationRepo(pool)
	tipRepo := postgres.NewTipRepo(pool)

	model := anthropic.NewClient(anthropic.Options{
		APIKey:     cfg.AnthropicAPIKey,
		BaseURL:    cfg.AnthropicBaseURL,
		Version:    cfg.AnthropicVersion,
		Model:      cfg.TipModel,
		Timeout:    cfg.CompletionTimeout,
		MaxRetries: cfg.RateLimitMaxRetries,
		RetryStep:  cfg.RateLimitRetryStep,
	})
	fetcher := docfetch.NewFetcher(cfg.DocumentFetchTimeout, cfg.DocumentMaxMB)

	tipSvc := usecase.NewTipService(pondRepo, studentRepo, tipRepo, model, fetcher, usecase.TipsOptions{
		Model:             cfg.TipModel,
		ChunkSize:         cfg.TipChunkSize,
		Cooldown:          cfg.TipChunkCooldown,
		MaxTokensPerItem:  cfg.TipMaxTokensPerItem,
		PromptTokenBudget: cfg.PromptTokenBudget,
	})

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, consumerGroup, tipSvc)
	if err != nil {
		slog.Error("redpanda consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	// Metrics endpoint only; the worker serves no API.
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("worker metrics server starting", slog.Int("port", cfg.Port))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer stopped with error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
