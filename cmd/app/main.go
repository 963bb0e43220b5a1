// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ai-analysis-ops/internal/config"
	"ai-analysis-ops/internal/domain/ports/adapter"
	aiAdapters "ai-analysis-ops/internal/infra/adapters/ai"
	"ai-analysis-ops/internal/infra/adapters/notify"
	"ai-analysis-ops/internal/infra/breaker"
	pg "ai-analysis-ops/internal/infra/db/postgres"
	"ai-analysis-ops/internal/infra/logging"
	"ai-analysis-ops/internal/infra/metrics"
	red "ai-analysis-ops/internal/infra/redis"
	"ai-analysis-ops/internal/infra/sched"
	"ai-analysis-ops/internal/infra/web"
	"ai-analysis-ops/internal/infra/worker"
	"ai-analysis-ops/internal/usecase"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool := pg.MustConnectPostgres(cfg.Database.URL)
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, time.Minute)

	tm := pg.NewTxManager(pool)
	opRepo := pg.NewOperationRepo(pool)
	eventRepo := pg.NewOperationEventRepo(pool)
	queueRepo := pg.NewRetryQueueRepo(pool, tm)
	alertRepo := pg.NewAlertLogRepo(pool)
	metricRepo := pg.NewMetricRepo(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	cooldown := red.NewCooldownStore(redisClient, logger)

	// ---- Operator notifications ----
	var sink adapter.NotificationSink
	if cfg.Runtime.Dev || cfg.Telegram.Token == "" {
		sink = notify.NewNoopNotifier()
		logger.Warn().Msg("admin alerts routed to the noop notifier")
	} else {
		sink, err = notify.NewTelegramNotifier(&cfg.Telegram, logger)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
	}

	// ---- Use cases ----
	alertUC := usecase.NewAlertUseCase(alertRepo, sink, cooldown, logger)
	opsUC := usecase.NewOperationUseCase(opRepo, eventRepo, tm, logger)
	metricsUC := usecase.NewMetricsUseCase(metricRepo, logger)
	queueUC := usecase.NewRetryQueueUseCase(queueRepo, alertUC, logger)

	// ---- AI adapter behind the circuit breaker ----
	brk := breaker.New("openai", cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown,
		func(service string, failureCount int, lastError string) {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			alertUC.CircuitBreakerOpened(alertCtx, service, failureCount, lastError)
		}, logger)

	var ai adapter.AIServiceAdapter
	if cfg.Runtime.Dev || cfg.AI.OpenAIKey == "" {
		ai = aiAdapters.NewNoopAIAdapter()
		logger.Warn().Msg("AI adapter: noop (no generation will reach a real model)")
	} else {
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.Model, cfg.AI.BaseURL, cfg.AI.Timeout)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		logger.Info().Str("model", cfg.AI.Model).Msg("AI adapter: OpenAI")
	}

	executor := usecase.NewAnalysisExecutor(opsUC, ai, brk, metricsUC, logger)
	processor := usecase.NewQueueProcessor(queueUC, opsUC, executor, alertUC, metricsUC, logger)

	// ---- Background workers ----
	retryWorker := sched.NewRetryWorker(cfg.Engine.QueuePollInterval, cfg.Engine.ExecutionTimeout, processor, logger)
	reclaimWorker := sched.NewReclaimWorker(cfg.Engine.ReclaimInterval, cfg.Engine.ReclaimAge, queueUC, logger)
	aggWorker := sched.NewAggregationWorker(metricsUC, logger)

	jobs := worker.NewPool(3, logger)
	jobs.Start(ctx)
	for _, run := range []worker.Task{retryWorker.Run, reclaimWorker.Run, aggWorker.Run} {
		if err := jobs.Submit(run); err != nil {
			log.Fatalf("worker pool: %v", err)
		}
	}

	// ---- Admin API ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, 0)
	api := web.NewServer(opsUC, queueUC, metricsUC, alertUC, alertRepo, brk, auth, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("admin API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	jobs.Stop()
}
