// internal/repository/loan_test.go
package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
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

func createTestApplication() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ApplicationID:        "app-001",
		ApplicantName:        "Priya Sharma",
		Email:                "priya@example.com",
		Phone:                "+91 98765 43210",
		CreditHistoryMonths:  96,
		TotalAccounts:        6,
		CreditUtilizationPct: 15,
		OnTimePayments:       95,
		LatePayments:         1,
		MonthlyIncome:        9500,
		EmploymentStatus:     models.EmploymentEmployed,
		IncomeVerified:       true,
		RequestedAmount:      100000,
		TenureMonths:         120,
	}
}

func createTestDecisionResult() *models.DecisionResult {
	return &models.DecisionResult{
		ApplicationID:  "app-001",
		FinalDecision:  models.DecisionApproved,
		ApprovedAmount: 100000,
		InterestRate:   8.5,
		MonthlyPayment: 1239.86,
		CreditScore:    774,
		CreditTier:     models.TierExcellent,
		RiskLevel:      models.RiskLow,
		RiskScore:      0,
		DTIRatio:       0.13,
		Stages: []models.StageResult{
			{Stage: models.StageCreditScoring, Status: models.StageCompleted, DurationMS: 2},
			{Stage: models.StageLoanDecision, Status: models.StageCompleted, DurationMS: 1},
		},
		PipelineDurationMS: 5,
		CompletedAt:        time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

// ==========================
// CreateApplication
// ==========================

func TestLoanRepository_CreateApplication_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	mock.ExpectExec(`INSERT INTO loan_applications`).
		WithArgs(
			"app-001",
			"Priya Sharma",
			"priya@example.com",
			"employed",
			9500.0,
			100000.0,
			sqlmock.AnyArg(), // JSON payload
			"submitted",
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewLoanRepository(db, newTestLogger(t))
	err = repo.CreateApplication(context.Background(), createTestApplication())

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_CreateApplication_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewLoanRepository(db, newTestLogger(t))
	err = repo.CreateApplication(context.Background(), createTestApplication())

	require.Error(t, err)
	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDuplicateApplication, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// SaveDecision
// ==========================

func TestLoanRepository_SaveDecision_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	result := createTestDecisionResult()

	mock.ExpectBegin()
	for range result.Stages {
		mock.ExpectExec(`INSERT INTO stage_results`).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectExec(`INSERT INTO analytics_snapshots`).
		WithArgs(
			"app-001",
			"approved",
			774,
			"Excellent",
			0,
			"low",
			0.13,
			100000.0,
			8.5,
			int64(5),
			result.CompletedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE loan_applications`).
		WithArgs("app-001", "decided", "approved", sqlmock.AnyArg(), result.CompletedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewLoanRepository(db, newTestLogger(t))
	err = repo.SaveDecision(context.Background(), result)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_SaveDecision_RollbackOnStageInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stage_results`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	repo := NewLoanRepository(db, newTestLogger(t))
	err = repo.SaveDecision(context.Background(), createTestDecisionResult())

	require.Error(t, err)
	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDatabaseInsertFailed, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// GetDecision
// ==========================

func TestLoanRepository_GetDecision_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stored := createTestDecisionResult()
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT decision_result FROM loan_applications`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"decision_result"}).AddRow(raw))

	repo := NewLoanRepository(db, newTestLogger(t))
	result, err := repo.GetDecision(context.Background(), "app-001")

	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, result.FinalDecision)
	assert.Equal(t, 774, result.CreditScore)
	assert.Len(t, result.Stages, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoanRepository_GetDecision_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT decision_result FROM loan_applications`).
		WithArgs("missing-app").
		WillReturnRows(sqlmock.NewRows([]string{"decision_result"}))

	repo := NewLoanRepository(db, newTestLogger(t))
	result, err := repo.GetDecision(context.Background(), "missing-app")

	require.Error(t, err)
	assert.Nil(t, result)
	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeApplicationNotFound, stdErr.Code)
}

// ==========================
// UpdateStatus
// ==========================

func TestLoanRepository_UpdateStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE loan_applications SET status`).
		WithArgs("missing-app", "decided", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLoanRepository(db, newTestLogger(t))
	err = repo.UpdateStatus(context.Background(), "missing-app", "decided")

	require.Error(t, err)
	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeApplicationNotFound, stdErr.Code)
}
