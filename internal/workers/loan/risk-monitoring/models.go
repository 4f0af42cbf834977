// internal/workers/loan/risk-monitoring/models.go
package riskmonitoring

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

type Input struct {
	Application        *models.ApplicationRecord `json:"application"`
	CreditScore        int                       `json:"credit_score"`
	VerificationStatus models.VerificationStatus `json:"verification_status"`
}

type Output struct {
	RiskScore          int              `json:"risk_score"`
	RiskLevel          models.RiskLevel `json:"risk_level"`
	RiskFactors        []string         `json:"risk_factors,omitempty"`
	RecommendedActions []string         `json:"recommended_actions"`
}
