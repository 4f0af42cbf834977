// internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/observability"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
	creditscoring "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/workers/loan/credit-scoring"
)

// ==========================
// Test Helper Functions
// ==========================

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

type failingProvider struct{}

func (p *failingProvider) Name() string { return "failing" }

func (p *failingProvider) Score(ctx context.Context, app *models.ApplicationRecord) (*creditscoring.Output, error) {
	return nil, errors.New("provider unavailable")
}

func strongApplication() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ApplicationID:        "app-strong-001",
		ApplicantName:        "Priya Sharma",
		Email:                "priya.sharma@example.com",
		Phone:                "9876543210",
		CreditHistoryMonths:  96,
		TotalAccounts:        6,
		CreditUtilizationPct: 15,
		RecentInquiries:      0,
		OnTimePayments:       95,
		LatePayments:         1,
		MonthlyIncome:        9500,
		EmploymentStatus:     models.EmploymentEmployed,
		IncomeVerified:       true,
		RequestedAmount:      100000,
		TenureMonths:         120,
	}
}

func distressedApplication() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ApplicationID:        "app-distressed-001",
		ApplicantName:        "Rahul Verma",
		Email:                "rahul.verma@example.com",
		Phone:                "9123456789",
		CreditHistoryMonths:  6,
		TotalAccounts:        2,
		CreditUtilizationPct: 85,
		RecentInquiries:      8,
		OnTimePayments:       20,
		LatePayments:         15,
		DefaultsCount:        2,
		WrittenOffCount:      1,
		MonthlyIncome:        2000,
		EmploymentStatus:     models.EmploymentEmployed,
		RequestedAmount:      50000,
		TenureMonths:         36,
	}
}

func midRangeApplication() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ApplicationID:              "app-mid-001",
		ApplicantName:              "Anita Desai",
		Email:                      "anita.desai@example.com",
		Phone:                      "9988776655",
		CreditHistoryMonths:        30,
		TotalAccounts:              3,
		CreditUtilizationPct:       62,
		RecentInquiries:            1,
		OnTimePayments:             28,
		LatePayments:               2,
		MonthlyIncome:              4000,
		EmploymentStatus:           models.EmploymentEmployed,
		IncomeVerified:             true,
		RequestedAmount:            50000,
		TenureMonths:               60,
		ExistingMonthlyObligations: 500,
	}
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	return NewEngine(newTestLogger(t), opts...)
}

// ==========================
// End-to-End Scenarios
// ==========================

func TestEngine_Evaluate_StrongApplicantFullApproval(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Evaluate(context.Background(), strongApplication())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, result.FinalDecision)
	assert.Equal(t, 774, result.CreditScore)
	assert.Equal(t, models.TierExcellent, result.CreditTier)
	assert.Equal(t, 100000.0, result.ApprovedAmount)
	assert.Equal(t, 8.5, result.InterestRate)
	assert.InDelta(t, 1239.86, result.MonthlyPayment, 0.5)
	assert.InDelta(t, 0.13, result.DTIRatio, 0.01)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.Equal(t, 0, result.RiskScore)
	assert.Empty(t, result.RejectionReasons)

	require.Len(t, result.Stages, 4)
	for _, stage := range result.Stages {
		assert.Equal(t, models.StageCompleted, stage.Status, "stage %s", stage.Stage)
	}
}

func TestEngine_Evaluate_DistressedApplicantRejected(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Evaluate(context.Background(), distressedApplication())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, result.FinalDecision)
	assert.Equal(t, 300, result.CreditScore)
	assert.Equal(t, models.TierVeryPoor, result.CreditTier)
	assert.Equal(t, 0.0, result.ApprovedAmount)
	assert.Equal(t, models.RiskHigh, result.RiskLevel)
	assert.Equal(t, 100, result.RiskScore)
	assert.NotEmpty(t, result.RejectionReasons)

	joined := strings.Join(result.RejectionReasons, "; ")
	assert.Contains(t, joined, "below the minimum threshold")
}

func TestEngine_Evaluate_WithObservability(t *testing.T) {
	obs := observability.New("pipeline-test")
	defer obs.Shutdown()

	engine := newEngine(t, WithObservability(obs))

	result, err := engine.Evaluate(context.Background(), strongApplication())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, result.FinalDecision)
}

func TestEngine_Evaluate_OverextendedRequestRejected(t *testing.T) {
	engine := newEngine(t)

	app := distressedApplication()
	app.ApplicationID = "app-distressed-002"
	app.MonthlyIncome = 3000
	app.RequestedAmount = 150000

	result, err := engine.Evaluate(context.Background(), app)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, result.FinalDecision)
	assert.Equal(t, 300, result.CreditScore)
	assert.Equal(t, models.TierVeryPoor, result.CreditTier)
	assert.Equal(t, models.RiskHigh, result.RiskLevel)
	assert.Equal(t, 100, result.RiskScore)

	joined := strings.Join(result.RejectionReasons, "; ")
	assert.Contains(t, joined, "below the minimum threshold")
	assert.Contains(t, joined, "exceeds the 0.50 ceiling")
}

func TestEngine_Evaluate_MidRangeApplicantConditional(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Evaluate(context.Background(), midRangeApplication())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionConditional, result.FinalDecision)
	assert.Equal(t, 608, result.CreditScore)
	assert.Equal(t, models.TierFair, result.CreditTier)
	assert.Equal(t, 30000.0, result.ApprovedAmount)
	assert.Equal(t, 13.0, result.InterestRate)
	assert.InDelta(t, 682.6, result.MonthlyPayment, 1.0)
	assert.Equal(t, models.RiskMedium, result.RiskLevel)
	assert.Equal(t, 35, result.RiskScore)
	assert.Contains(t, result.Conditions, "income verification required")
}

func TestEngine_Evaluate_NoPaymentHistoryRejected(t *testing.T) {
	engine := newEngine(t)

	app := &models.ApplicationRecord{
		ApplicationID:        "app-thin-001",
		ApplicantName:        "Vikram Rao",
		Email:                "vikram.rao@example.com",
		Phone:                "9001122334",
		CreditHistoryMonths:  12,
		TotalAccounts:        1,
		CreditUtilizationPct: 40,
		RecentInquiries:      1,
		OnTimePayments:       0,
		LatePayments:         0,
		MonthlyIncome:        3000,
		EmploymentStatus:     models.EmploymentEmployed,
		RequestedAmount:      20000,
		TenureMonths:         36,
	}

	result, err := engine.Evaluate(context.Background(), app)

	require.NoError(t, err)
	// No payment history contributes nothing; the thin file lands at the floor band.
	assert.Equal(t, 434, result.CreditScore)
	assert.Equal(t, models.DecisionRejected, result.FinalDecision)
	assert.Equal(t, models.TierVeryPoor, result.CreditTier)
}

func TestEngine_Evaluate_ZeroIncomeRejected(t *testing.T) {
	engine := newEngine(t)

	app := strongApplication()
	app.MonthlyIncome = 0
	app.IncomeVerified = false

	result, err := engine.Evaluate(context.Background(), app)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, result.FinalDecision)
	assert.Equal(t, 1.0, result.DTIRatio)
	assert.Contains(t, strings.Join(result.RejectionReasons, "; "), "income not verifiable")
}

// ==========================
// Error Taxonomy
// ==========================

func TestEngine_Evaluate_InvalidInputAborts(t *testing.T) {
	engine := newEngine(t)

	app := strongApplication()
	app.ApplicantName = ""
	app.RequestedAmount = -1

	result, err := engine.Evaluate(context.Background(), app)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestEngine_Evaluate_NilApplicationAborts(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Evaluate(context.Background(), nil)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestEngine_Evaluate_ScoringFailureDegrades(t *testing.T) {
	log := newTestLogger(t)
	scoring := creditscoring.NewHandlerWithProvider(creditscoring.LoadConfig(), &failingProvider{}, log)
	engine := NewEngine(log, WithScoringHandler(scoring))

	result, err := engine.Evaluate(context.Background(), strongApplication())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, result.FinalDecision)
	assert.Contains(t, result.Rationale, "degraded")

	stage := result.StageByName(models.StageCreditScoring)
	require.NotNil(t, stage)
	assert.Equal(t, models.StageDegraded, stage.Status)
	assert.NotEmpty(t, stage.Error)

	// The remaining stages still ran.
	assert.NotNil(t, result.StageByName(models.StageLoanDecision))
	assert.NotNil(t, result.StageByName(models.StageVerification))
	assert.NotNil(t, result.StageByName(models.StageRiskMonitoring))
}

// ==========================
// Determinism
// ==========================

func TestEngine_Evaluate_Deterministic(t *testing.T) {
	engine := newEngine(t)

	apps := []*models.ApplicationRecord{
		strongApplication(),
		distressedApplication(),
		midRangeApplication(),
	}

	for _, app := range apps {
		first, err := engine.Evaluate(context.Background(), app)
		require.NoError(t, err)
		second, err := engine.Evaluate(context.Background(), app)
		require.NoError(t, err)

		assert.Equal(t, first.FinalDecision, second.FinalDecision)
		assert.Equal(t, first.CreditScore, second.CreditScore)
		assert.Equal(t, first.ApprovedAmount, second.ApprovedAmount)
		assert.Equal(t, first.InterestRate, second.InterestRate)
		assert.Equal(t, first.MonthlyPayment, second.MonthlyPayment)
		assert.Equal(t, first.DTIRatio, second.DTIRatio)
		assert.Equal(t, first.RiskScore, second.RiskScore)
		assert.Equal(t, first.RiskLevel, second.RiskLevel)
	}
}
