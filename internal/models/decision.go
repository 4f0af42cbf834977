// internal/models/decision.go
package models

import "time"

type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionRejected    Decision = "rejected"
	DecisionConditional Decision = "conditional"
)

type CreditTier string

const (
	TierExcellent CreditTier = "Excellent"
	TierVeryGood  CreditTier = "Very Good"
	TierGood      CreditTier = "Good"
	TierFair      CreditTier = "Fair"
	TierPoor      CreditTier = "Poor"
	TierVeryPoor  CreditTier = "Very Poor"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPending  VerificationStatus = "pending"
	VerificationFailed   VerificationStatus = "failed"
)

type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageDegraded  StageStatus = "degraded"
)

// Stage names as they appear in StageResult and the stage_results table.
const (
	StageCreditScoring  = "credit_scoring"
	StageLoanDecision   = "loan_decision"
	StageVerification   = "verification"
	StageRiskMonitoring = "risk_monitoring"
)

// StageResult records one stage execution. Output holds the stage's
// typed output struct and is serialized as-is.
type StageResult struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	Output     interface{} `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
	Timestamp  time.Time   `json:"timestamp"`
}

// DecisionResult is the aggregate outcome of one pipeline evaluation.
type DecisionResult struct {
	ApplicationID  string   `json:"application_id"`
	FinalDecision  Decision `json:"final_decision"`
	ApprovedAmount float64  `json:"approved_amount"`
	InterestRate   float64  `json:"interest_rate"`
	MonthlyPayment float64  `json:"monthly_payment"`

	CreditScore int        `json:"credit_score"`
	CreditTier  CreditTier `json:"credit_tier"`
	RiskLevel   RiskLevel  `json:"risk_level"`
	RiskScore   int        `json:"risk_score"`
	DTIRatio    float64    `json:"dti_ratio"`

	Rationale        string   `json:"rationale"`
	Conditions       []string `json:"conditions,omitempty"`
	RejectionReasons []string `json:"rejection_reasons,omitempty"`

	Stages []StageResult `json:"stages"`

	PipelineDurationMS int64     `json:"pipeline_duration_ms"`
	CompletedAt        time.Time `json:"completed_at"`
}

// StageByName returns the stage result with the given name, or nil.
func (d *DecisionResult) StageByName(name string) *StageResult {
	for i := range d.Stages {
		if d.Stages[i].Stage == name {
			return &d.Stages[i]
		}
	}
	return nil
}
