// internal/workers/loan/verification/models.go
package verification

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

type Input struct {
	Application *models.ApplicationRecord `json:"application"`
}

type Output struct {
	Status         models.VerificationStatus `json:"status"`
	VerifiedFields []string                  `json:"verified_fields,omitempty"`
	PendingFields  []string                  `json:"pending_fields,omitempty"`
	Notes          []string                  `json:"notes,omitempty"`
}
