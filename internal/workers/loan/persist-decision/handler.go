// internal/workers/loan/persist-decision/handler.go
package persistdecision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "loan.persist-decision"
)

var (
	ErrMissingResult        = errors.New("MISSING_DECISION_RESULT")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
)

// DecisionStore is the slice of the repository this worker needs.
type DecisionStore interface {
	SaveDecision(ctx context.Context, result *models.DecisionResult) error
}

// DecisionIndex mirrors decisions into the search index.
type DecisionIndex interface {
	IndexDecision(ctx context.Context, result *models.DecisionResult) error
}

type Handler struct {
	config  *Config
	store   DecisionStore
	indexer DecisionIndex
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, store DecisionStore, indexer DecisionIndex, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		store:   store,
		indexer: indexer,
		errors:  apperrors.NewErrorHandler(scoped),
		logger:  scoped,
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
		// Database failures are retryable; the error handler routes them
		// through FailJob with retries instead of a terminal BPMN error.
		if errors.Is(err, ErrDatabaseInsertFailed) {
			metrics.WorkerJobsFailed.WithLabelValues(TaskType, "DATABASE_INSERT_FAILED").Inc()
			h.errors.HandleJobError(ctx, client, job, apperrors.NewDatabaseInsertFailedError(err))
			return
		}
		errorCode := "UNKNOWN_ERROR"
		if errors.Is(err, ErrMissingResult) {
			errorCode = "MISSING_DECISION_RESULT"
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// execute writes the decision to Postgres and then mirrors it into the
// search index. Index failures are logged but do not fail the job; the
// database row is the source of truth.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Result == nil {
		return nil, ErrMissingResult
	}

	if err := h.store.SaveDecision(ctx, input.Result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseInsertFailed, err)
	}

	indexed := false
	if h.indexer != nil {
		if err := h.indexer.IndexDecision(ctx, input.Result); err != nil {
			h.logger.Warn("decision indexing failed", map[string]interface{}{
				"applicationId": input.Result.ApplicationID,
				"error":         err,
			})
		} else {
			indexed = true
		}
	}

	h.logger.Info("decision persisted", map[string]interface{}{
		"applicationId": input.Result.ApplicationID,
		"decision":      input.Result.FinalDecision,
		"indexed":       indexed,
	})

	return &Output{
		Persisted:   true,
		Indexed:     indexed,
		PersistedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
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
	if _, err = cmd.Send(context.Background()); err != nil {
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

// Execute persists a decision outside of a Zeebe job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
