// Command server starts the checklist evaluator HTTP API.
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

	httpserver "github.com/opcdev/opc-evaluator/internal/adapter/httpserver"
	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/adapter/queue/redpanda"
	"github.com/opcdev/opc-evaluator/internal/adapter/repo/postgres"
	"github.com/opcdev/opc-evaluator/internal/app"
	"github.com/opcdev/opc-evaluator/internal/config"
	"github.com/opcdev/opc-evaluator/internal/usecase"
)

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

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	studentRepo := postgres.NewStudentRepo(pool)
	evalRepo := postgres.NewEvaluationRepo(pool)
	pondRepo := postgres.NewPonderationRepo(pool)
	tipRepo := postgres.NewTipRepo(pool)
	statsRepo := postgres.NewStatsRepo(pool)

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue client", slog.Any("error", err))
		}
	}()

	studentSvc := usecase.NewStudentService(studentRepo)
	evalSvc := usecase.NewEvaluationService(evalRepo, studentRepo)
	finalizeSvc := usecase.NewFinalizeService(evalRepo, pondRepo, producer)
	pondSvc := usecase.NewPonderationService(pondRepo, studentRepo, tipRepo, producer)
	dashSvc := usecase.NewDashboardService(statsRepo)

	srv := httpserver.NewServer(studentSvc, evalSvc, finalizeSvc, pondSvc, dashSvc)
	auth := httpserver.NewAuthHandler(cfg)

	dbCheck := func(ctx context.Context) error { return pool.Ping(ctx) }
	handler := app.BuildRouter(cfg, srv, auth, dbCheck, nil)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
