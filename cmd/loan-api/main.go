// cmd/loan-api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/api"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/aws"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/config"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/database"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/observability"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/pipeline"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/repository"

	creditscoring "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/credit-scoring"
	sendnotification "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/send-notification"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting loan decision API...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("loan-api")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Build the in-process decision pipeline ---
	engineOpts := []pipeline.Option{pipeline.WithObservability(obs)}

	if cfg.Scoring.Provider == creditscoring.ProviderExternal {
		scoringCfg := &creditscoring.Config{
			Timeout:  time.Duration(cfg.Scoring.Timeout) * time.Millisecond,
			Provider: cfg.Scoring.Provider,
			External: creditscoring.ExternalConfig{
				BaseURL:    cfg.Scoring.External.BaseURL,
				Model:      cfg.Scoring.External.Model,
				APIKey:     cfg.Scoring.External.APIKey,
				Timeout:    time.Duration(cfg.Scoring.External.Timeout) * time.Millisecond,
				MaxRetries: cfg.Scoring.External.MaxRetries,
			},
		}
		engineOpts = append(engineOpts, pipeline.WithScoringHandler(creditscoring.NewHandler(scoringCfg, log)))
	}

	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			zapLog.Warn("tracing init failed, continuing without traces", zap.Error(err))
		} else {
			defer tracing.Shutdown()
			engineOpts = append(engineOpts, pipeline.WithTracing(tracing))
			zapLog.Info("Tracing enabled", zap.String("collector", cfg.Tracing.CollectorEndpoint))
		}
	}

	engine := pipeline.NewEngine(log, engineOpts...)

	store := repository.NewLoanRepository(pg.DB, log)
	if err := store.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema bootstrap failed", zap.Error(err))
	}
	indexer := repository.NewDecisionIndexer(esClient.Client, log)
	if err := indexer.EnsureIndex(ctx); err != nil {
		zapLog.Warn("decision index bootstrap failed", zap.Error(err))
	}

	// --- Applicant notifications, when a channel is enabled ---
	var notifier api.DecisionNotifier
	notifyCfg := sendnotification.LoadConfig(cfg)
	if notifyCfg.EmailEnabled || notifyCfg.SMSEnabled {
		var email sendnotification.EmailSender
		var sms sendnotification.SMSSender
		if notifyCfg.EmailEnabled {
			sesClient, err := aws.NewSESClient(ctx, notifyCfg.AWSRegion)
			if err != nil {
				zapLog.Fatal("failed to create SES client", zap.Error(err))
			}
			email = sesClient
		}
		if notifyCfg.SMSEnabled {
			snsClient, err := aws.NewSNSClient(ctx, notifyCfg.AWSRegion)
			if err != nil {
				zapLog.Fatal("failed to create SNS client", zap.Error(err))
			}
			sms = snsClient
		}
		notifier = sendnotification.NewHandler(notifyCfg, email, sms, log)
		zapLog.Info("Applicant notifications enabled")
	}

	handler := api.NewHandler(api.Options{
		Engine:   engine,
		Store:    store,
		Searcher: indexer,
		Notifier: notifier,
		Cache:    redisClient.Client,
		CacheTTL: time.Duration(cfg.API.CacheTTL) * time.Second,
		Health: map[string]api.HealthChecker{
			"postgres": func() error { return pg.Ping(context.Background()) },
			"redis":    func() error { return redisClient.Ping(context.Background()) },
			"elasticsearch": func() error {
				return esClient.Ping()
			},
		},
	}, log)

	router := api.NewRouter(handler, log)

	server := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.API.ListenAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}

	zapLog.Info("Loan decision API stopped gracefully")
}
