// internal/workers/loan/send-notification/handler.go
package sendnotification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "loan.send-notification"
)

var (
	ErrMissingInput           = errors.New("MISSING_NOTIFICATION_INPUT")
	ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")
)

// EmailSender delivers a plain-text email. Satisfied by aws.SESClient.
type EmailSender interface {
	SendPlainEmail(ctx context.Context, from, to, subject, body string) (string, error)
}

// SMSSender delivers a transactional SMS. Satisfied by aws.SNSClient.
type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, message, senderID string) (string, error)
}

type Handler struct {
	config *Config
	email  EmailSender
	sms    SMSSender
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		email:  email,
		sms:    sms,
		errors: apperrors.NewErrorHandler(scoped),
		logger: scoped,
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
		// Send failures are transient; the error handler routes them
		// through FailJob with retries instead of a terminal BPMN error.
		if errors.Is(err, ErrNotificationSendFailed) {
			metrics.WorkerJobsFailed.WithLabelValues(TaskType, "NOTIFICATION_SEND_FAILED").Inc()
			h.errors.HandleJobError(ctx, client, job, apperrors.NewNotificationSendFailedError("email", err))
			return
		}
		errorCode := "UNKNOWN_ERROR"
		if errors.Is(err, ErrMissingInput) {
			errorCode = "MISSING_NOTIFICATION_INPUT"
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// execute notifies the applicant of the outcome. Email goes out for every
// decision; SMS only when the risk level meets the configured priority
// threshold or the application was rejected, so applicants who need to
// act hear about it on a second channel.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Application == nil || input.Result == nil {
		return nil, ErrMissingInput
	}

	app := input.Application
	result := input.Result

	subject, body := buildMessage(app, result)
	sentAt := time.Now().UTC().Format(time.RFC3339)
	notificationID := uuid.New().String()

	emailSent := false
	smsSent := false

	if h.config.EmailEnabled && app.Email != "" && h.email != nil {
		if _, err := h.email.SendPlainEmail(ctx, h.config.FromEmail, app.Email, subject, body); err != nil {
			h.logger.Error("email send failed", map[string]interface{}{
				"error":         err,
				"applicationId": app.ApplicationID,
			})
			return nil, fmt.Errorf("%w: email: %v", ErrNotificationSendFailed, err)
		}
		emailSent = true
	}

	if h.config.SMSEnabled && app.Phone != "" && h.sms != nil && needsSMS(result, h.config.SMSThreshold) {
		if _, err := h.sms.SendSMS(ctx, app.Phone, smsText(app, result), h.config.SMSSenderID); err != nil {
			// Email already went out; an SMS failure is not worth a retry storm.
			h.logger.Warn("SMS send failed", map[string]interface{}{
				"error":         err,
				"applicationId": app.ApplicationID,
			})
		} else {
			smsSent = true
		}
	}

	status := StatusDisabled
	if emailSent || smsSent {
		status = StatusSent
	}

	h.logger.Info("notification processed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"status":        status,
		"emailSent":     emailSent,
		"smsSent":       smsSent,
	})

	return &Output{
		NotificationID: notificationID,
		Status:         status,
		EmailSent:      emailSent,
		SMSSent:        smsSent,
		SentAt:         sentAt,
	}, nil
}

// needsSMS reports whether the outcome warrants the second channel.
// Rejections always do; otherwise the risk level must meet the
// configured priority threshold, defaulting to high risk only.
func needsSMS(result *models.DecisionResult, threshold string) bool {
	if result.FinalDecision == models.DecisionRejected {
		return true
	}
	switch threshold {
	case "low":
		return true
	case "medium":
		return result.RiskLevel == models.RiskMedium || result.RiskLevel == models.RiskHigh
	default:
		return result.RiskLevel == models.RiskHigh
	}
}

func buildMessage(app *models.ApplicationRecord, result *models.DecisionResult) (string, string) {
	var subject string
	var b strings.Builder

	fmt.Fprintf(&b, "Dear %s,\n\n", app.ApplicantName)

	switch result.FinalDecision {
	case models.DecisionApproved:
		subject = fmt.Sprintf("Loan application %s approved", app.ApplicationID)
		fmt.Fprintf(&b, "Your loan application has been approved for %.2f at %.1f%% over %d months.\n",
			result.ApprovedAmount, result.InterestRate, app.TenureMonths)
		fmt.Fprintf(&b, "Estimated monthly payment: %.2f.\n", result.MonthlyPayment)
	case models.DecisionConditional:
		subject = fmt.Sprintf("Loan application %s conditionally approved", app.ApplicationID)
		fmt.Fprintf(&b, "Your loan application has been conditionally approved for %.2f at %.1f%%.\n",
			result.ApprovedAmount, result.InterestRate)
		if len(result.Conditions) > 0 {
			b.WriteString("\nOutstanding conditions:\n")
			for _, c := range result.Conditions {
				fmt.Fprintf(&b, "  - %s\n", c)
			}
		}
	default:
		subject = fmt.Sprintf("Loan application %s decision", app.ApplicationID)
		b.WriteString("We are unable to approve your loan application at this time.\n")
		if len(result.RejectionReasons) > 0 {
			b.WriteString("\nReasons:\n")
			for _, r := range result.RejectionReasons {
				fmt.Fprintf(&b, "  - %s\n", r)
			}
		}
	}

	fmt.Fprintf(&b, "\n%s\n", result.Rationale)
	return subject, b.String()
}

func smsText(app *models.ApplicationRecord, result *models.DecisionResult) string {
	return fmt.Sprintf("Loan application %s: %s. Check your email for details.",
		app.ApplicationID, result.FinalDecision)
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

// Execute sends notifications outside of a Zeebe job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
