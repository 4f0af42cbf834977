// internal/workers/loan/credit-scoring/handler.go
package creditscoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "loan.credit-scoring"
)

var ErrMissingApplication = errors.New("MISSING_APPLICATION")

type Handler struct {
	config   *Config
	provider ScoringProvider
	logger   logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	var provider ScoringProvider
	if config.Provider == ProviderExternal {
		provider = NewExternalProvider(config.External, log)
	} else {
		provider = NewRuleBasedProvider()
	}
	return NewHandlerWithProvider(config, provider, log)
}

// NewHandlerWithProvider injects an explicit provider; the in-process
// pipeline and tests use this to control the scoring path.
func NewHandlerWithProvider(config *Config, provider ScoringProvider, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		provider: provider,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
			"provider": provider.Name(),
		}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "CREDIT_SCORING_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Application == nil {
		return nil, ErrMissingApplication
	}

	output, err := h.provider.Score(ctx, input.Application)
	if err != nil {
		return nil, err
	}

	h.logger.Info("credit score calculated", map[string]interface{}{
		"applicationId": input.Application.ApplicationID,
		"score":         output.CreditScore,
		"tier":          output.CreditTier,
	})

	return output, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
