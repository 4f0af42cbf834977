// internal/workers/loan/risk-monitoring/handler.go
package riskmonitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "loan.risk-monitoring"
)

const (
	mediumRiskThreshold = 30
	highRiskThreshold   = 60

	perDefaultPenalty  = 15
	perWriteOffPenalty = 25
)

var ErrMissingApplication = errors.New("MISSING_APPLICATION")

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
		h.failJob(client, job, "RISK_MONITORING_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// execute builds an additive 0-100 risk score. Each contributing
// factor is recorded so the analytics layer can explain the level.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	app := input.Application
	if app == nil {
		return nil, ErrMissingApplication
	}

	score := 0
	var factors []string

	switch {
	case input.CreditScore < 600:
		score += 40
		factors = append(factors, fmt.Sprintf("credit score %d is below 600", input.CreditScore))
	case input.CreditScore < 650:
		score += 25
		factors = append(factors, fmt.Sprintf("credit score %d is below 650", input.CreditScore))
	case input.CreditScore < 700:
		score += 10
		factors = append(factors, fmt.Sprintf("credit score %d is below 700", input.CreditScore))
	}

	switch {
	case app.CreditUtilizationPct > 80:
		score += 20
		factors = append(factors, fmt.Sprintf("credit utilization %.1f%% is above 80%%", app.CreditUtilizationPct))
	case app.CreditUtilizationPct > 50:
		score += 10
		factors = append(factors, fmt.Sprintf("credit utilization %.1f%% is above 50%%", app.CreditUtilizationPct))
	}

	if app.DefaultsCount > 0 {
		score += perDefaultPenalty * app.DefaultsCount
		factors = append(factors, fmt.Sprintf("%d prior default(s)", app.DefaultsCount))
	}
	if app.WrittenOffCount > 0 {
		score += perWriteOffPenalty * app.WrittenOffCount
		factors = append(factors, fmt.Sprintf("%d written-off account(s)", app.WrittenOffCount))
	}
	if app.LatePayments > 5 {
		score += 10
		factors = append(factors, fmt.Sprintf("%d late payments on record", app.LatePayments))
	}
	if app.RecentInquiries > 6 {
		score += 10
		factors = append(factors, fmt.Sprintf("%d recent credit inquiries", app.RecentInquiries))
	}
	if input.VerificationStatus != models.VerificationVerified {
		score += 10
		factors = append(factors, fmt.Sprintf("verification status is %q", input.VerificationStatus))
	}

	if score > 100 {
		score = 100
	}

	level := classifyRiskLevel(score)

	output := &Output{
		RiskScore:          score,
		RiskLevel:          level,
		RiskFactors:        factors,
		RecommendedActions: recommendedActions(level),
	}

	h.logger.Info("risk assessment completed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"riskScore":     score,
		"riskLevel":     level,
	})

	return output, nil
}

func classifyRiskLevel(score int) models.RiskLevel {
	switch {
	case score < mediumRiskThreshold:
		return models.RiskLow
	case score < highRiskThreshold:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func recommendedActions(level models.RiskLevel) []string {
	switch level {
	case models.RiskHigh:
		return []string{
			"route to manual underwriting review",
			"request updated income and liability documents",
			"schedule a 30-day account review",
		}
	case models.RiskMedium:
		return []string{
			"enable quarterly account monitoring",
			"flag for review on any missed payment",
		}
	default:
		return []string{
			"standard annual review cycle",
		}
	}
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
