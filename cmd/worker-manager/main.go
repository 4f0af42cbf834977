// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/aws"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/camunda"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/config"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/database"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/observability"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/repository"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/pkg/registry"

	creditscoring "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/credit-scoring"
	loandecision "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/loan-decision"
	persistdecision "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/persist-decision"
	riskmonitoring "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/risk-monitoring"
	sendnotification "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/send-notification"
	validateapplication "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/validate-application"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/verification"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			zapLog.Warn("tracing init failed, continuing without traces", zap.Error(err))
		} else {
			defer tracing.Shutdown()
			zapLog.Info("Tracing enabled", zap.String("collector", cfg.Tracing.CollectorEndpoint))
		}
	}

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientFromConfig(cfg.Camunda)
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

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

	// --- Load stage registry (sanity check for deployed task types) ---
	stages, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Warn("stage registry unavailable", zap.String("path", cfg.Registry.Path), zap.Error(err))
	} else {
		zapLog.Info("Stage registry loaded",
			zap.String("version", stages.Version),
			zap.Int("stages", len(stages.Stages)),
		)
	}

	// --- Bootstrap storage used by the persist-decision worker ---
	store := repository.NewLoanRepository(pg.DB, log)
	if err := store.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema bootstrap failed", zap.Error(err))
	}
	indexer := repository.NewDecisionIndexer(esClient.Client, log)
	if err := indexer.EnsureIndex(ctx); err != nil {
		zapLog.Warn("decision index bootstrap failed", zap.Error(err))
	}

	// --- Register Loan Pipeline Workers ---
	var workers []*camunda.CamundaWorker

	// 1. validate-application
	if wcfg := config.GetWorkerConfig(cfg, "validate-application"); wcfg.Enabled {
		handler := validateapplication.NewHandler(validateapplication.LoadConfig(), log)
		workers = append(workers, startWorker(camundaClient.GetClient(), validateapplication.TaskType, wcfg, handler, zapLog))
	}

	// 2. credit-scoring
	if wcfg := config.GetWorkerConfig(cfg, "credit-scoring"); wcfg.Enabled {
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
		handler := creditscoring.NewHandler(scoringCfg, log)
		workers = append(workers, startWorker(camundaClient.GetClient(), creditscoring.TaskType, wcfg, handler, zapLog))
	}

	// 3. loan-decision
	if wcfg := config.GetWorkerConfig(cfg, "loan-decision"); wcfg.Enabled {
		handler := loandecision.NewHandler(loandecision.LoadConfig(), log)
		workers = append(workers, startWorker(camundaClient.GetClient(), loandecision.TaskType, wcfg, handler, zapLog))
	}

	// 4. verification
	if wcfg := config.GetWorkerConfig(cfg, "verification"); wcfg.Enabled {
		handler := verification.NewHandler(verification.LoadConfig(), log)
		workers = append(workers, startWorker(camundaClient.GetClient(), verification.TaskType, wcfg, handler, zapLog))
	}

	// 5. risk-monitoring
	if wcfg := config.GetWorkerConfig(cfg, "risk-monitoring"); wcfg.Enabled {
		handler := riskmonitoring.NewHandler(riskmonitoring.LoadConfig(), log)
		workers = append(workers, startWorker(camundaClient.GetClient(), riskmonitoring.TaskType, wcfg, handler, zapLog))
	}

	// 6. persist-decision
	if wcfg := config.GetWorkerConfig(cfg, "persist-decision"); wcfg.Enabled {
		handler := persistdecision.NewHandler(persistdecision.LoadConfig(), store, indexer, log)
		workers = append(workers, startWorker(camundaClient.GetClient(), persistdecision.TaskType, wcfg, handler, zapLog))
	}

	// 7. send-notification
	if wcfg := config.GetWorkerConfig(cfg, "send-notification"); wcfg.Enabled {
		notifyCfg := sendnotification.LoadConfig(cfg)

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

		handler := sendnotification.NewHandler(notifyCfg, email, sms, log)
		workers = append(workers, startWorker(camundaClient.GetClient(), sendnotification.TaskType, wcfg, handler, zapLog))
	}

	if stages != nil {
		for _, w := range workers {
			if stages.StageByTaskType(w.TaskType()) == nil {
				zapLog.Warn("registered worker has no stage registry entry",
					zap.String("taskType", w.TaskType()))
			}
		}
	}

	zapLog.Info("All loan pipeline workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			status := "ready"
			code := http.StatusOK
			if err := camundaClient.HealthCheck(r.Context()); err != nil {
				status = "not ready"
				code = http.StatusServiceUnavailable
			}
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]string{
				"status": status,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler camunda.JobHandler, log *zap.Logger) *camunda.CamundaWorker {
	w := camunda.NewWorker(client, taskType, wcfg.MaxJobsActive,
		time.Duration(wcfg.Timeout)*time.Millisecond, handler, log)
	w.Start()

	log.Info("worker registered",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return w
}
