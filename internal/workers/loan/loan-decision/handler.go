// internal/workers/loan/loan-decision/handler.go
package loandecision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "loan.loan-decision"
)

const (
	minScoreFull        = 700
	minScoreReduced     = 650
	minScoreConditional = 550

	conservativeDTI = 0.35
	moderateDTI     = 0.40
	maxDTI          = 0.50

	reducedFraction     = 0.80
	conditionalFraction = 0.60

	// Unemployed applicants are only considered for small loans.
	unemployedAmountCap = 10000

	selfEmployedSurcharge = 0.5
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
		h.failJob(client, job, "LOAN_DECISION_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	app := input.Application
	if app == nil {
		return nil, ErrMissingApplication
	}
	score := input.CreditScore

	// Income of zero means DTI is undefined; treat it as the worst
	// case and reject rather than divide by zero.
	if app.MonthlyIncome == 0 {
		return h.reject(input, 1.0, []string{"income not verifiable"}), nil
	}

	rate := interestRate(score, app.EmploymentStatus)
	estimatedPayment := annuityPayment(app.RequestedAmount, rate, app.TenureMonths)
	dti := (estimatedPayment + app.ExistingMonthlyObligations) / app.MonthlyIncome

	var reasons []string
	if app.EmploymentStatus == models.EmploymentUnemployed && app.RequestedAmount > unemployedAmountCap {
		reasons = append(reasons, fmt.Sprintf("unemployed applicants are not eligible for loans above %.0f", float64(unemployedAmountCap)))
	}
	if dti > maxDTI {
		reasons = append(reasons, fmt.Sprintf("debt-to-income ratio %.2f exceeds the %.2f ceiling", dti, maxDTI))
	}
	if score < minScoreConditional {
		reasons = append(reasons, fmt.Sprintf("credit score %d is below the minimum threshold %d", score, minScoreConditional))
	}
	if len(reasons) > 0 {
		return h.reject(input, dti, reasons), nil
	}

	output := &Output{
		InterestRate: rate,
		DTIRatio:     round2(dti),
	}

	switch {
	case score >= minScoreFull && dti <= conservativeDTI:
		output.Decision = models.DecisionApproved
		output.ApprovedAmount = app.RequestedAmount
	case score >= minScoreReduced && dti <= moderateDTI:
		output.Decision = models.DecisionApproved
		output.ApprovedAmount = round2(app.RequestedAmount * reducedFraction)
	default:
		output.Decision = models.DecisionConditional
		output.ApprovedAmount = round2(app.RequestedAmount * conditionalFraction)
		output.Conditions = []string{
			"income verification required",
			"provide collateral or add a co-applicant",
			"submit bank statements for the last 6 months",
		}
	}

	output.MonthlyPayment = annuityPayment(output.ApprovedAmount, rate, app.TenureMonths)
	output.Rationale = h.buildRationale(input, output)

	h.logger.Info("loan decision made", map[string]interface{}{
		"applicationId":  app.ApplicationID,
		"decision":       output.Decision,
		"approvedAmount": output.ApprovedAmount,
		"interestRate":   output.InterestRate,
		"dti":            output.DTIRatio,
	})

	return output, nil
}

func (h *Handler) reject(input *Input, dti float64, reasons []string) *Output {
	output := &Output{
		Decision:         models.DecisionRejected,
		DTIRatio:         round2(dti),
		RejectionReasons: reasons,
	}
	output.Rationale = h.buildRationale(input, output)

	h.logger.Info("loan decision made", map[string]interface{}{
		"applicationId": input.Application.ApplicationID,
		"decision":      output.Decision,
		"reasons":       reasons,
	})

	return output
}

func (h *Handler) buildRationale(input *Input, output *Output) string {
	app := input.Application

	var scoreDesc string
	if input.ScoringDegraded {
		scoreDesc = "credit score unavailable (scoring stage failed, evaluated with degraded inputs)"
	} else {
		scoreDesc = fmt.Sprintf("credit score %d (%s)", input.CreditScore, input.CreditTier)
	}

	switch output.Decision {
	case models.DecisionApproved:
		if output.ApprovedAmount < app.RequestedAmount {
			return fmt.Sprintf("%s with DTI %.2f supports approval at a reduced amount of %.2f (%.0f%% of requested) over %d months at %.2f%%",
				scoreDesc, output.DTIRatio, output.ApprovedAmount, reducedFraction*100, app.TenureMonths, output.InterestRate)
		}
		return fmt.Sprintf("%s with DTI %.2f supports full approval of %.2f over %d months at %.2f%%",
			scoreDesc, output.DTIRatio, output.ApprovedAmount, app.TenureMonths, output.InterestRate)
	case models.DecisionConditional:
		return fmt.Sprintf("%s with DTI %.2f allows a conditional offer of %.2f (%.0f%% of requested), subject to the listed conditions",
			scoreDesc, output.DTIRatio, output.ApprovedAmount, conditionalFraction*100)
	default:
		return fmt.Sprintf("%s; application rejected: %v", scoreDesc, output.RejectionReasons)
	}
}

// interestRate is the annual percentage rate for a score band, with a
// surcharge for self-employed applicants.
func interestRate(score int, employment models.EmploymentStatus) float64 {
	var rate float64
	switch {
	case score >= 750:
		rate = 8.5
	case score >= 700:
		rate = 9.5
	case score >= 650:
		rate = 11.0
	case score >= 600:
		rate = 13.0
	default:
		rate = 15.5
	}
	if employment == models.EmploymentSelfEmployed {
		rate += selfEmployedSurcharge
	}
	return rate
}

// annuityPayment is the standard amortized monthly installment for a
// principal at an annual percentage rate over the given tenure.
func annuityPayment(principal, annualRatePct float64, months int) float64 {
	if principal <= 0 || months <= 0 {
		return 0
	}
	monthly := annualRatePct / 100 / 12
	if monthly == 0 {
		return round2(principal / float64(months))
	}
	factor := math.Pow(1+monthly, float64(months))
	return round2(principal * monthly * factor / (factor - 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
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
