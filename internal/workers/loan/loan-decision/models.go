// internal/workers/loan/loan-decision/models.go
package loandecision

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

type Input struct {
	Application *models.ApplicationRecord `json:"application"`
	CreditScore int                       `json:"credit_score"`
	CreditTier  models.CreditTier         `json:"credit_tier"`
	// ScoringDegraded marks that the score came from a failed scoring
	// stage and the decision was made on degraded inputs.
	ScoringDegraded bool `json:"scoring_degraded,omitempty"`
}

type Output struct {
	Decision         models.Decision `json:"decision"`
	ApprovedAmount   float64         `json:"approved_amount"`
	InterestRate     float64         `json:"interest_rate"`
	MonthlyPayment   float64         `json:"monthly_payment"`
	DTIRatio         float64         `json:"dti_ratio"`
	Conditions       []string        `json:"conditions,omitempty"`
	RejectionReasons []string        `json:"rejection_reasons,omitempty"`
	Rationale        string          `json:"rationale"`
}
