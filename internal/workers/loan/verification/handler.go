// internal/workers/loan/verification/handler.go
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "loan.verification"
)

var ErrMissingApplication = errors.New("MISSING_APPLICATION")

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nonDigitPattern = regexp.MustCompile(`\D`)
)

const minPhoneDigits = 10

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		h.failJob(client, job, "VERIFICATION_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// execute checks each contact and employment field. Fields either
// verify or stay pending; pending fields on a conditional approval
// surface as documentation conditions downstream.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	app := input.Application
	if app == nil {
		return nil, ErrMissingApplication
	}

	output := &Output{}

	if emailPattern.MatchString(app.Email) {
		output.markVerified("email")
	} else {
		output.markPending("email", "email address is not a valid shape")
	}

	digits := nonDigitPattern.ReplaceAllString(app.Phone, "")
	if len(digits) >= minPhoneDigits {
		output.markVerified("phone")
	} else {
		output.markPending("phone", fmt.Sprintf("phone number has %d digits, need at least %d", len(digits), minPhoneDigits))
	}

	if app.IncomeVerified {
		output.markVerified("income")
	} else {
		output.markPending("income", "income documents not yet verified")
	}

	if app.EmploymentStatus.IsWorking() {
		output.markVerified("employment")
	} else {
		output.markPending("employment", fmt.Sprintf("employment status %q cannot be verified", app.EmploymentStatus))
	}

	switch {
	case len(output.PendingFields) == 0:
		output.Status = models.VerificationVerified
	case len(output.VerifiedFields) > 0:
		output.Status = models.VerificationPending
	default:
		output.Status = models.VerificationFailed
	}

	h.logger.Info("verification completed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"status":        output.Status,
		"pendingFields": output.PendingFields,
	})

	return output, nil
}

func (o *Output) markVerified(field string) {
	o.VerifiedFields = append(o.VerifiedFields, field)
}

func (o *Output) markPending(field, note string) {
	o.PendingFields = append(o.PendingFields, field)
	o.Notes = append(o.Notes, note)
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
