// internal/pipeline/pipeline.go

// Package pipeline runs the four decision stages in-process. The Zeebe
// workers expose the same stages to BPMN flows; this engine is the
// library entry point used by the HTTP API and by embedding callers.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/observability"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
	creditscoring "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/credit-scoring"
	loandecision "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/loan-decision"
	riskmonitoring "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/risk-monitoring"
	validateapplication "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/validate-application"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/verification"
)

// Engine evaluates loan applications through the staged pipeline:
// credit scoring, loan decision, verification and risk monitoring.
// Verification has no data dependency on scoring, so it runs
// concurrently with the scoring and decision stages.
type Engine struct {
	scoring      *creditscoring.Handler
	decision     *loandecision.Handler
	verification *verification.Handler
	risk         *riskmonitoring.Handler
	logger       logger.Logger
	tracing      *observability.Tracing
	obs          *observability.Observability
}

// Option customizes an Engine.
type Option func(*Engine)

// WithScoringHandler replaces the default scoring handler, e.g. to use
// the external provider or a stub.
func WithScoringHandler(h *creditscoring.Handler) Option {
	return func(e *Engine) { e.scoring = h }
}

// WithTracing enables span emission around each stage.
func WithTracing(t *observability.Tracing) Option {
	return func(e *Engine) { e.tracing = t }
}

// WithObservability enables OTel counters for stage executions and
// final decisions, alongside the Prometheus collectors the engine
// always records.
func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func NewEngine(log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		scoring:      creditscoring.NewHandler(creditscoring.LoadConfig(), log),
		decision:     loandecision.NewHandler(loandecision.LoadConfig(), log),
		verification: verification.NewHandler(verification.LoadConfig(), log),
		risk:         riskmonitoring.NewHandler(riskmonitoring.LoadConfig(), log),
		logger:       log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type verificationResult struct {
	output   *verification.Output
	err      error
	duration time.Duration
}

// Evaluate runs the full pipeline for one application. Invalid input
// aborts before any stage runs. Individual stage failures degrade the
// result instead of failing the evaluation; the returned DecisionResult
// records per-stage status so callers can see what was degraded.
func (e *Engine) Evaluate(ctx context.Context, app *models.ApplicationRecord) (*models.DecisionResult, error) {
	start := time.Now()

	if fieldErrors := validateapplication.ValidateRecord(app); len(fieldErrors) > 0 {
		return nil, errors.NewInvalidInputError(
			fmt.Sprintf("application failed validation with %d field error(s)", len(fieldErrors)),
			fieldErrors,
		)
	}

	if e.tracing != nil {
		var span trace.Span
		ctx, span = e.tracing.StartSpan(ctx, "pipeline.evaluate",
			attribute.String("application.id", app.ApplicationID))
		defer span.End()
	}

	result := &models.DecisionResult{
		ApplicationID: app.ApplicationID,
	}

	// Verification is independent of scoring; run it alongside.
	verifCh := make(chan verificationResult, 1)
	go func() {
		vStart := time.Now()
		out, err := e.verification.Execute(ctx, &verification.Input{Application: app})
		verifCh <- verificationResult{output: out, err: err, duration: time.Since(vStart)}
	}()

	// Stage 1: credit scoring.
	scoreOut, scoringDegraded := e.runScoring(ctx, app, result)

	// Stage 2: loan decision.
	decisionOut := e.runDecision(ctx, app, scoreOut, scoringDegraded, result)

	// Stage 3: verification (join).
	verifStatus := e.joinVerification(ctx, <-verifCh, result)

	// Stage 4: risk monitoring.
	riskOut := e.runRisk(ctx, app, scoreOut.CreditScore, verifStatus, result)

	e.assemble(result, app, scoreOut, decisionOut, verifStatus, riskOut)

	result.PipelineDurationMS = time.Since(start).Milliseconds()
	result.CompletedAt = time.Now().UTC()

	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	metrics.PipelineEvaluations.WithLabelValues(string(result.FinalDecision)).Inc()
	if e.obs != nil {
		e.obs.RecordDecision(ctx, string(result.FinalDecision))
	}

	e.logger.Info("pipeline evaluation complete", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"decision":      result.FinalDecision,
		"creditScore":   result.CreditScore,
		"riskLevel":     result.RiskLevel,
		"durationMs":    result.PipelineDurationMS,
	})

	return result, nil
}

// runScoring executes the scoring stage. On failure the pipeline
// continues with a zero score flagged as degraded; the decision stage
// turns that into a rejection with a degraded rationale.
func (e *Engine) runScoring(ctx context.Context, app *models.ApplicationRecord, result *models.DecisionResult) (*creditscoring.Output, bool) {
	stageStart := time.Now()
	out, err := e.scoring.Execute(ctx, &creditscoring.Input{Application: app})
	duration := time.Since(stageStart)

	if err != nil {
		e.logger.Warn("credit scoring failed, continuing degraded", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         err,
		})
		e.recordStage(ctx, result, models.StageCreditScoring, models.StageDegraded, nil, err.Error(), duration)
		return &creditscoring.Output{
			CreditScore: 0,
			CreditTier:  models.TierVeryPoor,
			Provider:    "none",
		}, true
	}

	e.recordStage(ctx, result, models.StageCreditScoring, models.StageCompleted, out, "", duration)
	return out, false
}

// runDecision executes the decision stage. A decision failure rejects
// the application rather than leaving it undecided.
func (e *Engine) runDecision(ctx context.Context, app *models.ApplicationRecord, score *creditscoring.Output, degraded bool, result *models.DecisionResult) *loandecision.Output {
	stageStart := time.Now()
	out, err := e.decision.Execute(ctx, &loandecision.Input{
		Application:     app,
		CreditScore:     score.CreditScore,
		CreditTier:      score.CreditTier,
		ScoringDegraded: degraded,
	})
	duration := time.Since(stageStart)

	if err != nil {
		e.logger.Warn("loan decision failed, rejecting by default", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         err,
		})
		out = &loandecision.Output{
			Decision:         models.DecisionRejected,
			RejectionReasons: []string{"decision stage unavailable"},
			Rationale:        "the decision stage could not be completed; the application was rejected by default",
		}
		e.recordStage(ctx, result, models.StageLoanDecision, models.StageFailed, out, err.Error(), duration)
		return out
	}

	e.recordStage(ctx, result, models.StageLoanDecision, models.StageCompleted, out, "", duration)
	return out
}

// joinVerification collects the concurrent verification stage. On
// failure the status degrades to pending, which downstream treats as
// "documents still outstanding" rather than an error.
func (e *Engine) joinVerification(ctx context.Context, vr verificationResult, result *models.DecisionResult) models.VerificationStatus {
	if vr.err != nil {
		e.logger.Warn("verification failed, treating as pending", map[string]interface{}{
			"error": vr.err,
		})
		e.recordStage(ctx, result, models.StageVerification, models.StageDegraded, nil, vr.err.Error(), vr.duration)
		return models.VerificationPending
	}

	e.recordStage(ctx, result, models.StageVerification, models.StageCompleted, vr.output, "", vr.duration)
	return vr.output.Status
}

// runRisk executes the risk monitoring stage. On failure the result
// carries a medium risk level so downstream consumers neither ignore
// the application nor escalate it blindly.
func (e *Engine) runRisk(ctx context.Context, app *models.ApplicationRecord, creditScore int, verifStatus models.VerificationStatus, result *models.DecisionResult) *riskmonitoring.Output {
	stageStart := time.Now()
	out, err := e.risk.Execute(ctx, &riskmonitoring.Input{
		Application:        app,
		CreditScore:        creditScore,
		VerificationStatus: verifStatus,
	})
	duration := time.Since(stageStart)

	if err != nil {
		e.logger.Warn("risk monitoring failed, continuing degraded", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         err,
		})
		out = &riskmonitoring.Output{
			RiskScore:          50,
			RiskLevel:          models.RiskMedium,
			RiskFactors:        []string{"risk monitoring unavailable"},
			RecommendedActions: []string{"re-run risk monitoring before disbursal"},
		}
		e.recordStage(ctx, result, models.StageRiskMonitoring, models.StageDegraded, out, err.Error(), duration)
		return out
	}

	e.recordStage(ctx, result, models.StageRiskMonitoring, models.StageCompleted, out, "", duration)
	return out
}

// assemble folds the stage outputs into the final result. Pending
// verification fields become extra conditions on conditional approvals.
func (e *Engine) assemble(result *models.DecisionResult, app *models.ApplicationRecord, score *creditscoring.Output, decision *loandecision.Output, verifStatus models.VerificationStatus, risk *riskmonitoring.Output) {
	result.FinalDecision = decision.Decision
	result.ApprovedAmount = decision.ApprovedAmount
	result.InterestRate = decision.InterestRate
	result.MonthlyPayment = decision.MonthlyPayment
	result.DTIRatio = decision.DTIRatio
	result.Rationale = decision.Rationale
	result.RejectionReasons = decision.RejectionReasons

	result.CreditScore = score.CreditScore
	result.CreditTier = score.CreditTier

	result.RiskScore = risk.RiskScore
	result.RiskLevel = risk.RiskLevel

	conditions := append([]string{}, decision.Conditions...)
	if decision.Decision == models.DecisionConditional {
		if verifStage := result.StageByName(models.StageVerification); verifStage != nil {
			if out, ok := verifStage.Output.(*verification.Output); ok {
				for _, field := range out.PendingFields {
					conditions = append(conditions, fmt.Sprintf("provide documentation for unverified field: %s", field))
				}
			}
		}
	}
	result.Conditions = conditions
}

func (e *Engine) recordStage(ctx context.Context, result *models.DecisionResult, stage string, status models.StageStatus, output interface{}, errMsg string, duration time.Duration) {
	metrics.PipelineStageDuration.WithLabelValues(stage, string(status)).Observe(duration.Seconds())
	if e.obs != nil {
		e.obs.RecordStage(ctx, stage, string(status))
	}

	result.Stages = append(result.Stages, models.StageResult{
		Stage:      stage,
		Status:     status,
		Output:     output,
		Error:      errMsg,
		DurationMS: duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
}
