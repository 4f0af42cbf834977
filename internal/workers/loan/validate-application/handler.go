// internal/workers/loan/validate-application/handler.go
package validateapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "loan.validate-application"
)

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
		h.failJob(client, job, "VALIDATION_ERROR", err.Error())
		return
	}
	if !output.Valid {
		// Invalid applications abort the process via a BPMN error, not
		// a job retry; the payload will not get better on its own.
		h.failJob(client, job, "INVALID_INPUT", formatErrors(output.Errors))
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	var errs []ValidationError

	if input.RawPayload != nil {
		schemaErrs, err := CheckSchema(input.RawPayload)
		if err != nil {
			return nil, err
		}
		errs = append(errs, schemaErrs...)
	}

	errs = append(errs, ValidateRecord(input.Application)...)

	output := &Output{
		Valid:  len(errs) == 0,
		Errors: errs,
	}

	h.logger.Info("application validated", map[string]interface{}{
		"valid":      output.Valid,
		"errorCount": len(errs),
	})

	return output, nil
}

// ValidateRecord runs the typed field checks. The in-process pipeline
// calls this directly before any stage runs.
func ValidateRecord(app *models.ApplicationRecord) []ValidationError {
	if app == nil {
		return []ValidationError{{
			Field:   "application",
			Code:    CodeMissingRequired,
			Message: "application record is required",
		}}
	}

	var errs []ValidationError

	addMissing := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Code: CodeMissingRequired, Message: message})
	}
	addRange := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Code: CodeOutOfRange, Message: message})
	}

	if strings.TrimSpace(app.ApplicantName) == "" {
		addMissing("applicant_name", "applicant name is required")
	}
	if strings.TrimSpace(app.Email) == "" {
		addMissing("email", "email is required")
	}

	switch app.EmploymentStatus {
	case models.EmploymentEmployed, models.EmploymentSelfEmployed, models.EmploymentUnemployed:
	default:
		errs = append(errs, ValidationError{
			Field:   "employment_status",
			Code:    CodeInvalidFormat,
			Message: fmt.Sprintf("unknown employment status %q", app.EmploymentStatus),
		})
	}

	if app.CreditUtilizationPct < 0 || app.CreditUtilizationPct > 100 {
		addRange("credit_utilization_pct", "credit utilization must be between 0 and 100")
	}
	if app.MonthlyIncome < 0 {
		addRange("monthly_income", "monthly income cannot be negative")
	}
	if app.RequestedAmount <= 0 {
		addRange("requested_amount", "requested amount must be positive")
	}
	if app.TenureMonths < 1 {
		addRange("tenure_months", "tenure must be at least one month")
	}
	if app.ExistingMonthlyObligations < 0 {
		addRange("existing_monthly_obligations", "existing obligations cannot be negative")
	}

	for field, count := range map[string]int{
		"credit_history_months": app.CreditHistoryMonths,
		"total_accounts":        app.TotalAccounts,
		"recent_inquiries":      app.RecentInquiries,
		"on_time_payments":      app.OnTimePayments,
		"late_payments":         app.LatePayments,
		"defaults_count":        app.DefaultsCount,
		"written_off_count":     app.WrittenOffCount,
	} {
		if count < 0 {
			addRange(field, fmt.Sprintf("%s cannot be negative", field))
		}
	}

	return errs
}

func formatErrors(errs []ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
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
