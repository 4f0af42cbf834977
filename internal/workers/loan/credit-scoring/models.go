// internal/workers/loan/credit-scoring/models.go
package creditscoring

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

type Input struct {
	Application *models.ApplicationRecord `json:"application"`
}

type Output struct {
	CreditScore int               `json:"credit_score"`
	CreditTier  models.CreditTier `json:"credit_tier"`
	Breakdown   ScoreBreakdown    `json:"breakdown"`
	Provider    string            `json:"provider"`
}

// ScoreBreakdown exposes the additive components behind a score so the
// rationale and analytics layers can explain the number.
type ScoreBreakdown struct {
	Base        int `json:"base"`
	History     int `json:"history"`
	Payment     int `json:"payment"`
	Utilization int `json:"utilization"`
	Inquiries   int `json:"inquiries"`
	Derogatory  int `json:"derogatory"`
}
