// internal/repository/loan.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/errors"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
)

// LoanRepository persists applications, per-stage results and decision
// analytics in PostgreSQL.
type LoanRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLoanRepository(db *sql.DB, log logger.Logger) *LoanRepository {
	return &LoanRepository{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "loan_repository"}),
	}
}

// CreateApplication inserts a new application row. A second submission with
// the same application ID is rejected as a duplicate.
func (r *LoanRepository) CreateApplication(ctx context.Context, app *models.ApplicationRecord) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM loan_applications
			WHERE id = $1
		)`, app.ApplicationID).Scan(&exists)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("duplicate check failed: %w", err))
	}
	if exists {
		return errors.NewDuplicateApplicationError(app.ApplicationID)
	}

	payload, err := json.Marshal(app)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("marshal application: %w", err))
	}

	createdAt := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO loan_applications (
			id, applicant_name, applicant_email, employment_status,
			monthly_income, requested_amount, application_data,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		app.ApplicationID,
		app.ApplicantName,
		app.Email,
		string(app.EmploymentStatus),
		app.MonthlyIncome,
		app.RequestedAmount,
		payload,
		"submitted",
		createdAt,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("insert application: %w", err))
	}

	r.logger.Info("application record created", map[string]interface{}{
		"applicationId": app.ApplicationID,
	})
	return nil
}

// SaveDecision stores the decision result: per-stage rows, an analytics
// snapshot, and the decision fields on the application row. The writes run
// in one transaction so a partially-saved decision never survives.
func (r *LoanRepository) SaveDecision(ctx context.Context, result *models.DecisionResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	for _, stage := range result.Stages {
		output, merr := json.Marshal(stage.Output)
		if merr != nil {
			return errors.NewDatabaseInsertFailedError(fmt.Errorf("marshal stage output %s: %w", stage.Stage, merr))
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_results (
				application_id, stage, status, output, error, duration_ms, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			result.ApplicationID,
			stage.Stage,
			string(stage.Status),
			output,
			nullableString(stage.Error),
			stage.DurationMS,
			completedAt,
		)
		if err != nil {
			return errors.NewDatabaseInsertFailedError(fmt.Errorf("insert stage result %s: %w", stage.Stage, err))
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analytics_snapshots (
			application_id, decision, credit_score, credit_tier,
			risk_score, risk_level, dti_ratio, approved_amount,
			interest_rate, pipeline_duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		result.ApplicationID,
		string(result.FinalDecision),
		result.CreditScore,
		string(result.CreditTier),
		result.RiskScore,
		string(result.RiskLevel),
		result.DTIRatio,
		result.ApprovedAmount,
		result.InterestRate,
		result.PipelineDurationMS,
		completedAt,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("insert analytics snapshot: %w", err))
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("marshal decision result: %w", err))
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $2, decision = $3, decision_result = $4, updated_at = $5
		WHERE id = $1`,
		result.ApplicationID,
		"decided",
		string(result.FinalDecision),
		resultJSON,
		completedAt,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("update application: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("commit: %w", err))
	}

	r.logger.Info("decision persisted", map[string]interface{}{
		"applicationId": result.ApplicationID,
		"decision":      result.FinalDecision,
	})
	return nil
}

// GetDecision loads the stored decision result for an application.
func (r *LoanRepository) GetDecision(ctx context.Context, applicationID string) (*models.DecisionResult, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT decision_result FROM loan_applications
		WHERE id = $1 AND decision_result IS NOT NULL`,
		applicationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseConnectionFailedError(fmt.Errorf("query decision: %w", err))
	}

	var result models.DecisionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal decision result for %s: %w", applicationID, err)
	}
	return &result, nil
}

// GetApplication loads the original application payload.
func (r *LoanRepository) GetApplication(ctx context.Context, applicationID string) (*models.ApplicationRecord, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT application_data FROM loan_applications
		WHERE id = $1`,
		applicationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseConnectionFailedError(fmt.Errorf("query application: %w", err))
	}

	var app models.ApplicationRecord
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil, fmt.Errorf("unmarshal application %s: %w", applicationID, err)
	}
	return &app, nil
}

// UpdateStatus moves an application through its lifecycle states.
func (r *LoanRepository) UpdateStatus(ctx context.Context, applicationID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loan_applications SET status = $2, updated_at = $3 WHERE id = $1`,
		applicationID, status, time.Now().UTC())
	if err != nil {
		return errors.NewDatabaseInsertFailedError(fmt.Errorf("update status: %w", err))
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return errors.NewApplicationNotFoundError(applicationID)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
