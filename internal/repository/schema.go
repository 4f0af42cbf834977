// internal/repository/schema.go
package repository

import (
	"context"
	"fmt"
	"strings"
)

// Table DDL mirrors what the decision pipeline writes: one row per
// application, one row per stage execution, and a flat analytics
// snapshot per final decision.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS loan_applications (
		id VARCHAR(64) PRIMARY KEY,
		applicant_name VARCHAR(255) NOT NULL,
		applicant_email VARCHAR(255) NOT NULL,
		employment_status VARCHAR(32) NOT NULL,
		monthly_income NUMERIC(14,2) NOT NULL,
		requested_amount NUMERIC(14,2) NOT NULL,
		application_data JSONB NOT NULL,
		status VARCHAR(32) NOT NULL,
		decision VARCHAR(32),
		decision_result JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stage_results (
		id BIGSERIAL PRIMARY KEY,
		application_id VARCHAR(64) NOT NULL REFERENCES loan_applications(id),
		stage VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		output JSONB,
		error TEXT,
		duration_ms BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id BIGSERIAL PRIMARY KEY,
		application_id VARCHAR(64) NOT NULL REFERENCES loan_applications(id),
		decision VARCHAR(32) NOT NULL,
		credit_score INT NOT NULL,
		credit_tier VARCHAR(32) NOT NULL,
		risk_score INT NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		dti_ratio NUMERIC(6,4) NOT NULL,
		approved_amount NUMERIC(14,2) NOT NULL,
		interest_rate NUMERIC(6,3) NOT NULL,
		pipeline_duration_ms BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_results_application ON stage_results (application_id)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_applications_status ON loan_applications (status)`,
}

// EnsureSchema creates the pipeline tables when they do not exist yet.
// Statements are idempotent, so running it on every startup is safe.
func (r *LoanRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			name := stmt[:strings.IndexByte(stmt, '(')]
			return fmt.Errorf("apply schema statement %q: %w", strings.TrimSpace(name), err)
		}
	}
	return nil
}
